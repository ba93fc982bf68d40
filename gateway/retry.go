package gateway

import (
	"context"
	"errors"
	"time"
)

// TransientError marks a failure that may succeed on another attempt, such
// as a network error or a 5xx from the gateway.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient gateway error: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te) || errors.Is(err, context.DeadlineExceeded)
}

// RetryPolicy bounds every call to the gateway: at most MaxAttempts tries,
// each capped by Timeout, separated by a linearly growing Backoff.
type RetryPolicy struct {
	MaxAttempts int
	Timeout     time.Duration
	Backoff     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Timeout: 10 * time.Second, Backoff: 500 * time.Millisecond}
}

// Budget is the longest Do can take when every attempt times out, or zero
// when attempts are not bounded by Timeout.
func (p RetryPolicy) Budget() time.Duration {
	if p.Timeout <= 0 {
		return 0
	}
	attempts := max(p.MaxAttempts, 1)
	total := time.Duration(attempts) * p.Timeout
	for i := 1; i < attempts; i++ {
		total += p.Backoff * time.Duration(i)
	}
	return total
}

// Do runs fn until it succeeds, returns a non-transient error, the attempts
// run out, or ctx is done. The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 1; i <= attempts; i++ {
		err = p.attempt(ctx, fn)
		if err == nil || !IsTransient(err) || i == attempts {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Backoff * time.Duration(i)):
		}
	}
	return err
}

func (p RetryPolicy) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.Timeout <= 0 {
		return fn(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return fn(actx)
}
