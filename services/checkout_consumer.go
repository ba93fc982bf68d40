package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tunguyen02/mobile-backend/models"
	aws_pkg "github.com/tunguyen02/mobile-backend/pkg/aws"
	"go.uber.org/zap"
)

const (
	// checkoutDoneTTL is how long a handled checkout is remembered.
	checkoutDoneTTL = 24 * time.Hour
	// checkoutClaimTTL bounds how long a consumer that died mid-checkout
	// blocks redelivery of its message.
	checkoutClaimTTL = 2 * time.Minute
)

var errCheckoutInProgress = errors.New("checkout is being handled by another consumer")

// MessageSource is satisfied by *aws.SQSConsumer.
type MessageSource interface {
	StartPolling(ctx context.Context, handler aws_pkg.MessageHandler) error
}

// CheckoutConsumer turns checkout events from the cart service into orders.
// Returning an error leaves the message on the queue for redelivery.
type CheckoutConsumer struct {
	source MessageSource
	orders OrderService
	locker Locker
	logger *zap.Logger
}

func NewCheckoutConsumer(source MessageSource, orders OrderService, locker Locker, logger *zap.Logger) *CheckoutConsumer {
	return &CheckoutConsumer{source: source, orders: orders, locker: locker, logger: logger}
}

func (c *CheckoutConsumer) Start(ctx context.Context) {
	c.logger.Info("Checkout consumer started")
	err := c.source.StartPolling(ctx, c.HandleMessage)
	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Error("Checkout polling stopped", zap.Error(err))
	}
}

func (c *CheckoutConsumer) HandleMessage(ctx context.Context, body string) error {
	var envelope struct {
		Message string `json:"Message"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err == nil && envelope.Message != "" {
		body = envelope.Message
	}

	var evt models.CheckoutEvent
	if err := json.Unmarshal([]byte(body), &evt); err != nil {
		c.logger.Warn("Dropping malformed checkout event", zap.Error(err))
		return nil
	}
	if evt.Event != "" && evt.Event != models.CheckoutRequestedEvent {
		c.logger.Debug("Ignoring event", zap.String("event", evt.Event))
		return nil
	}
	userID, err := uuid.Parse(evt.UserID)
	if err != nil {
		c.logger.Warn("Dropping checkout event with invalid user id", zap.String("user_id", evt.UserID))
		return nil
	}

	var doneKey, claimKey string
	if evt.IdempotencyKey != "" && c.locker != nil {
		doneKey = "fulfillment:checkout:" + evt.IdempotencyKey
		claimKey = doneKey + ":claim"
		done, err := c.locker.Held(ctx, doneKey)
		if err != nil {
			return err
		}
		if done {
			c.logger.Info("Checkout event already handled", zap.String("idempotency_key", evt.IdempotencyKey))
			return nil
		}
		claimed, err := c.locker.TryLock(ctx, claimKey, checkoutClaimTTL)
		if err != nil {
			return err
		}
		if !claimed {
			// Left on the queue: the claim expires if its holder died.
			return errCheckoutInProgress
		}
		defer func() {
			if err := c.locker.Unlock(context.WithoutCancel(ctx), claimKey); err != nil {
				c.logger.Warn("Failed to release checkout claim", zap.Error(err))
			}
		}()
	}

	req := &models.CreateOrderRequest{
		ShippingInfo:  evt.ShippingInfo,
		PaymentMethod: evt.PaymentMethod,
		Items:         evt.Items,
		ClientIP:      evt.ClientIP,
	}
	resp, svcErr := c.orders.CreateOrder(ctx, Identity{UserID: userID, Email: evt.Email}, req)
	if svcErr != nil {
		retryable := svcErr.Kind == KindInternal || svcErr.Kind == KindGateway
		c.logger.Warn("Checkout event not turned into an order",
			zap.String("user_id", evt.UserID),
			zap.String("kind", string(svcErr.Kind)),
			zap.String("error", svcErr.Message),
			zap.Bool("retry", retryable))
		if !retryable {
			c.markHandled(ctx, doneKey)
			return nil
		}
		return svcErr
	}

	c.markHandled(ctx, doneKey)
	c.logger.Info("Order created from checkout event",
		zap.String("order_id", resp.Order.ID.String()), zap.String("user_id", evt.UserID))
	return nil
}

// markHandled records the checkout as done so redeliveries are acked
// without creating a second order.
func (c *CheckoutConsumer) markHandled(ctx context.Context, doneKey string) {
	if doneKey == "" {
		return
	}
	if _, err := c.locker.TryLock(context.WithoutCancel(ctx), doneKey, checkoutDoneTTL); err != nil {
		c.logger.Warn("Failed to record handled checkout", zap.String("key", doneKey), zap.Error(err))
	}
}
