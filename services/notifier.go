package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tunguyen02/mobile-backend/models"
	aws_pkg "github.com/tunguyen02/mobile-backend/pkg/aws"
)

const orderConfirmationType = "order.confirmation"

// SNSNotifier hands order confirmations to the notification service, which
// renders and sends the email.
type SNSNotifier struct {
	publisher aws_pkg.SNSPublisher
	topicArn  string
}

func NewSNSNotifier(publisher aws_pkg.SNSPublisher, topicArn string) *SNSNotifier {
	return &SNSNotifier{publisher: publisher, topicArn: topicArn}
}

func (n *SNSNotifier) SendOrderConfirmation(ctx context.Context, order *models.Order, payment *models.Payment, email string) error {
	msg := models.OrderConfirmation{
		Type:          orderConfirmationType,
		OrderID:       order.ID.String(),
		UserID:        order.UserID.String(),
		Email:         email,
		Items:         order.Items,
		Subtotal:      order.Subtotal,
		ShippingFee:   order.ShippingFee,
		Total:         order.Total,
		PaymentMethod: payment.Method,
		ShippingInfo:  order.Shipping,
		Timestamp:     time.Now(),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return n.publisher.Publish(ctx, n.topicArn, body)
}
