package services

import (
	"context"
	"time"

	"github.com/tunguyen02/mobile-backend/models"
	aws_pkg "github.com/tunguyen02/mobile-backend/pkg/aws"
	"github.com/tunguyen02/mobile-backend/repository"
	"go.uber.org/zap"
)

const (
	sweepLockKey   = "fulfillment:expiry-sweeper"
	sweepBatchSize = 200
)

// ExpirySweeper expires Gateway payments left Pending past the payment
// window and cancels their orders. Each record is re-checked under lock, so
// a payment settled while the sweep runs is left alone.
type ExpirySweeper struct {
	store    repository.Store
	interval time.Duration
	window   time.Duration
	locker   Locker
	fx       *sideEffects
	now      func() time.Time
	logger   *zap.Logger
}

func NewExpirySweeper(
	store repository.Store,
	interval, window time.Duration,
	locker Locker,
	events EventPublisher,
	metrics MetricsRecorder,
	logger *zap.Logger,
) *ExpirySweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &ExpirySweeper{
		store:    store,
		interval: interval,
		window:   window,
		locker:   locker,
		fx:       &sideEffects{events: events, metrics: metrics, logger: logger},
		now:      time.Now,
		logger:   logger,
	}
}

// WithClock replaces the clock used to compute the cutoff.
func (s *ExpirySweeper) WithClock(now func() time.Time) *ExpirySweeper {
	s.now = now
	return s
}

// Start sweeps once immediately and then on every tick until ctx is done.
func (s *ExpirySweeper) Start(ctx context.Context) {
	s.logger.Info("Expiry sweeper started",
		zap.Duration("interval", s.interval), zap.Duration("window", s.window))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.sweepWithLock(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("Expiry sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

func (s *ExpirySweeper) sweepWithLock(ctx context.Context) {
	if s.locker != nil {
		ok, err := s.locker.TryLock(ctx, sweepLockKey, s.interval)
		if err != nil {
			s.logger.Warn("Sweep lock unavailable, sweeping without it", zap.Error(err))
		} else if !ok {
			s.logger.Debug("Another replica holds the sweep lock")
			return
		} else {
			defer func() {
				if err := s.locker.Unlock(context.Background(), sweepLockKey); err != nil {
					s.logger.Warn("Failed to release sweep lock", zap.Error(err))
				}
			}()
		}
	}
	s.SweepOnce(ctx)
}

// SweepOnce processes one batch of overdue payments. A failure on one
// record is logged and does not stop the rest.
func (s *ExpirySweeper) SweepOnce(ctx context.Context) (expired, failed int) {
	cutoff := s.now().Add(-s.window)
	candidates, err := s.store.Payments().FindExpirable(ctx, cutoff, sweepBatchSize)
	if err != nil {
		s.logger.Error("Failed to query overdue payments", zap.Error(err))
		return 0, 0
	}

	for _, p := range candidates {
		if ctx.Err() != nil {
			break
		}
		done, err := s.expireOne(ctx, p, cutoff)
		if err != nil {
			failed++
			s.logger.Error("Failed to expire payment",
				zap.String("order_id", p.OrderID.String()), zap.Error(err))
			continue
		}
		if done {
			expired++
		}
	}

	if expired > 0 || failed > 0 {
		s.logger.Info("Expiry sweep finished", zap.Int("expired", expired), zap.Int("failed", failed))
	}
	return expired, failed
}

func (s *ExpirySweeper) expireOne(ctx context.Context, candidate models.Payment, cutoff time.Time) (bool, error) {
	var expired bool
	var userID string
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		order, err := tx.Orders().FindByIDForUpdate(ctx, candidate.OrderID)
		if err != nil {
			return err
		}
		payment, err := tx.Payments().FindByOrderIDForUpdate(ctx, candidate.OrderID)
		if err != nil {
			return err
		}
		if payment.Method != models.PaymentMethodGateway ||
			payment.Status != models.PaymentPending ||
			!payment.CreatedAt.Before(cutoff) {
			return nil
		}

		switch order.ShippingStatus {
		case models.ShippingPending, models.ShippingProcessing:
			if err := order.TransitionTo(models.ShippingCancelled); err != nil {
				return err
			}
			if err := tx.Orders().Update(ctx, order); err != nil {
				return err
			}
		case models.ShippingCancelled:
		default:
			s.logger.Warn("Unpaid order already in fulfilment, leaving it for staff",
				zap.String("order_id", order.ID.String()),
				zap.String("shipping_status", string(order.ShippingStatus)))
			return nil
		}

		if err := payment.TransitionTo(models.PaymentExpired); err != nil {
			return err
		}
		expired, userID = true, order.UserID.String()
		return tx.Payments().Update(ctx, payment)
	})
	if err != nil || !expired {
		return false, err
	}

	orderID := candidate.OrderID.String()
	s.logger.Info("Payment expired", zap.String("order_id", orderID))
	s.fx.publish(
		models.DomainEvent{Type: models.EventPaymentExpired, OrderID: orderID, UserID: userID, PaymentID: candidate.ID.String()},
		models.DomainEvent{Type: models.EventOrderCancelled, OrderID: orderID, UserID: userID},
	)
	s.fx.count(aws_pkg.MetricPaymentsExpired, 0)
	return true, nil
}
