package models

import (
	"time"

	"github.com/google/uuid"
)

type RefundStatus string

const (
	RefundPending   RefundStatus = "Pending"
	RefundApproved  RefundStatus = "Approved"
	RefundRejected  RefundStatus = "Rejected"
	RefundProcessed RefundStatus = "Processed"
	RefundFailed    RefundStatus = "Failed"
)

type Refund struct {
	ID             uuid.UUID    `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID        uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex" json:"orderId"`
	PaymentID      uuid.UUID    `gorm:"type:uuid;not null" json:"paymentId"`
	UserID         uuid.UUID    `gorm:"type:uuid;not null;index" json:"userId"`
	Amount         int64        `gorm:"not null" json:"amount"`
	Reason         string       `gorm:"not null" json:"reason"`
	Status         RefundStatus `gorm:"type:varchar(20);not null;default:'Pending';index" json:"status"`
	AdminNote      string       `json:"adminNote,omitempty"`
	TransactionRef *string      `json:"transactionRef,omitempty"`
	ProcessedAt    *time.Time   `json:"processedAt,omitempty"`
	CreatedAt      time.Time    `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time    `gorm:"autoUpdateTime" json:"updatedAt"`
}

type CreateRefundRequest struct {
	OrderID string `json:"orderId" binding:"required"`
	Reason  string `json:"reason" binding:"required,max=500"`
}

type RefundDecisionRequest struct {
	Note string `json:"note" binding:"max=500"`
}
