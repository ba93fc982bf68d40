package services

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tunguyen02/mobile-backend/gateway"
	"github.com/tunguyen02/mobile-backend/models"
	"go.uber.org/zap"
)

const RoleAdmin = "admin"

// Identity is the caller as resolved by the API gateway.
type Identity struct {
	UserID uuid.UUID
	Email  string
	Role   string
}

func (i Identity) IsStaff() bool { return i.Role == RoleAdmin }

// PaymentGateway is the part of the gateway client the services depend on.
type PaymentGateway interface {
	BuildPaymentURL(req gateway.PaymentRequest) (*gateway.PaymentURL, error)
	VerifyCallback(params url.Values) (*gateway.Callback, error)
	Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error)
}

// Notifier sends the order confirmation. Delivery is fire-and-forget.
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, order *models.Order, payment *models.Payment, email string) error
}

// EventPublisher emits domain events after a commit.
type EventPublisher interface {
	PublishEvent(ctx context.Context, evt models.DomainEvent) error
}

// MetricsRecorder is satisfied by *aws.MetricsClient.
type MetricsRecorder interface {
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
	RecordValue(ctx context.Context, metricName string, value float64, dimensions map[string]string) error
}

// eventQueueSize bounds the domain events waiting to be published.
const eventQueueSize = 1024

// sideEffects runs post-commit work that must never fail the caller.
// Domain events go through one queue per service and are published in the
// order they were queued.
type sideEffects struct {
	notifier Notifier
	events   EventPublisher
	metrics  MetricsRecorder
	logger   *zap.Logger

	once  sync.Once
	queue chan models.DomainEvent
}

func (s *sideEffects) publish(evts ...models.DomainEvent) {
	if s.events == nil {
		return
	}
	s.once.Do(func() {
		s.queue = make(chan models.DomainEvent, eventQueueSize)
		go s.drain()
	})
	for _, evt := range evts {
		if evt.Timestamp.IsZero() {
			evt.Timestamp = time.Now()
		}
		select {
		case s.queue <- evt:
		default:
			s.logger.Warn("Domain event queue full, dropping event",
				zap.String("type", evt.Type), zap.String("order_id", evt.OrderID))
		}
	}
}

func (s *sideEffects) drain() {
	for evt := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.events.PublishEvent(ctx, evt); err != nil {
			s.logger.Warn("Failed to publish domain event",
				zap.String("type", evt.Type), zap.String("order_id", evt.OrderID), zap.Error(err))
		}
		cancel()
	}
}

func (s *sideEffects) count(metric string, value float64) {
	if s.metrics == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		dims := map[string]string{"Service": "fulfillment-service"}
		_ = s.metrics.RecordCount(ctx, metric, dims)
		if value > 0 {
			_ = s.metrics.RecordValue(ctx, metric+"Amount", value, dims)
		}
	}()
}

func (s *sideEffects) confirm(order *models.Order, payment *models.Payment, email string) {
	if s.notifier == nil || email == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.notifier.SendOrderConfirmation(ctx, order, payment, email); err != nil {
			s.logger.Warn("Order confirmation not sent",
				zap.String("order_id", order.ID.String()), zap.Error(err))
		}
	}()
}
