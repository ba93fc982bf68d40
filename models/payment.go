package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type PaymentMethod string

const (
	PaymentMethodCOD     PaymentMethod = "COD"
	PaymentMethodGateway PaymentMethod = "Gateway"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCOD || m == PaymentMethodGateway
}

type PaymentStatus string

const (
	PaymentPending       PaymentStatus = "Pending"
	PaymentCompleted     PaymentStatus = "Completed"
	PaymentExpired       PaymentStatus = "Expired"
	PaymentRefundPending PaymentStatus = "Refund_Pending"
	PaymentRefunded      PaymentStatus = "Refunded"
	PaymentRefundFailed  PaymentStatus = "Refund_Failed"
)

// Payment is stored apart from its Order so the callback audit trail
// survives order mutations.
type Payment struct {
	ID                   uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID              uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"orderId"`
	UserID               uuid.UUID      `gorm:"type:uuid;not null;index" json:"userId"`
	Method               PaymentMethod  `gorm:"type:varchar(20);not null" json:"paymentMethod"`
	Amount               int64          `gorm:"not null" json:"amountPaid"`
	Status               PaymentStatus  `gorm:"type:varchar(20);not null;default:'Pending';index" json:"paymentStatus"`
	TransactionRef       *string        `gorm:"index" json:"transactionRef,omitempty"`
	GatewayTransactionNo *string        `json:"gatewayTransactionNo,omitempty"`
	CallbackPayload      datatypes.JSON `gorm:"type:jsonb" json:"-"`
	PaidAt               *time.Time     `json:"paidAt,omitempty"`

	RefundAmount         *int64     `json:"-"`
	RefundTransactionRef *string    `json:"-"`
	RefundedAt           *time.Time `json:"-"`
	RefundNote           *string    `json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// RefundInfo is the settlement record of a refunded payment.
type RefundInfo struct {
	Amount         int64     `json:"refundAmount"`
	TransactionRef string    `json:"refundTransactionId"`
	RefundedAt     time.Time `json:"refundAt"`
	Note           string    `json:"refundNote,omitempty"`
}

// Refund returns the settlement record, or nil until the payment reached
// Refunded.
func (p *Payment) Refund() *RefundInfo {
	if p.Status != PaymentRefunded || p.RefundedAt == nil {
		return nil
	}
	info := &RefundInfo{RefundedAt: *p.RefundedAt}
	if p.RefundAmount != nil {
		info.Amount = *p.RefundAmount
	}
	if p.RefundTransactionRef != nil {
		info.TransactionRef = *p.RefundTransactionRef
	}
	if p.RefundNote != nil {
		info.Note = *p.RefundNote
	}
	return info
}

// RecordRefund fills the settlement record in one step.
func (p *Payment) RecordRefund(amount int64, ref, note string, at time.Time) {
	p.RefundAmount = &amount
	p.RefundTransactionRef = &ref
	p.RefundNote = &note
	p.RefundedAt = &at
}
