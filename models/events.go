package models

import "time"

// From cart-service → fulfillment, optionally wrapped in an SNS envelope.
type CheckoutEvent struct {
	Event          string        `json:"event"` // expected: "checkout.requested"
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
	UserID         string        `json:"user_id"`
	Email          string        `json:"email,omitempty"`
	ShippingInfo   ShippingInfo  `json:"shipping_info"`
	PaymentMethod  PaymentMethod `json:"payment_method"`
	Items          []CartLine    `json:"items"`
	ClientIP       string        `json:"client_ip,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
}

const CheckoutRequestedEvent = "checkout.requested"

const (
	EventOrderCreated     = "order.created"
	EventOrderCancelled   = "order.cancelled"
	EventPaymentCompleted = "payment.completed"
	EventPaymentExpired   = "payment.expired"
	EventRefundRequested  = "refund.requested"
	EventRefundProcessed  = "refund.processed"
	EventRefundFailed     = "refund.failed"
	EventRefundRejected   = "refund.rejected"
)

// DomainEvent is published to Kafka after a state change commits.
type DomainEvent struct {
	Type      string    `json:"type"`
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id,omitempty"`
	PaymentID string    `json:"payment_id,omitempty"`
	RefundID  string    `json:"refund_id,omitempty"`
	Amount    int64     `json:"amount,omitempty"`
	Status    string    `json:"status,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderConfirmation is sent to the notification service over SNS.
type OrderConfirmation struct {
	Type          string        `json:"type"`
	OrderID       string        `json:"order_id"`
	UserID        string        `json:"user_id"`
	Email         string        `json:"email"`
	Items         []OrderItem   `json:"items"`
	Subtotal      int64         `json:"subtotal"`
	ShippingFee   int64         `json:"shipping_fee"`
	Total         int64         `json:"total"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	ShippingInfo  ShippingInfo  `json:"shipping_info"`
	Timestamp     time.Time     `json:"timestamp"`
}
