package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ShippingStatus string

const (
	ShippingPending    ShippingStatus = "Pending"
	ShippingProcessing ShippingStatus = "Processing"
	ShippingShipping   ShippingStatus = "Shipping"
	ShippingCompleted  ShippingStatus = "Completed"
	ShippingCancelled  ShippingStatus = "Cancelled"
)

// DefaultShippingFee is charged when the caller does not override it.
const DefaultShippingFee int64 = 30000

// ShippingInfo is the delivery destination captured at checkout.
type ShippingInfo struct {
	FullName string `json:"fullName" gorm:"not null" validate:"required,max=120"`
	Phone    string `json:"phone" gorm:"not null" validate:"required,min=8,max=20"`
	Address  string `json:"address" gorm:"not null" validate:"required,max=255"`
	City     string `json:"city" validate:"max=120"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
}

type Order struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"userId"`
	Items          []OrderItem    `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
	Shipping       ShippingInfo   `gorm:"embedded;embeddedPrefix:shipping_" json:"shippingInfo"`
	Subtotal       int64          `gorm:"not null" json:"subtotal"`
	ShippingFee    int64          `gorm:"not null" json:"shippingFee"`
	Total          int64          `gorm:"not null" json:"total"`
	ShippingStatus ShippingStatus `gorm:"type:varchar(20);not null;default:'Pending';index" json:"shippingStatus"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

type OrderItem struct {
	ID                uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID           uuid.UUID  `gorm:"type:uuid;not null;index" json:"orderId"`
	ProductID         uuid.UUID  `gorm:"type:uuid;not null" json:"productId"`
	Name              string     `json:"name"`
	Quantity          int        `gorm:"not null" json:"quantity"`
	UnitPrice         int64      `gorm:"not null" json:"unitPrice"`
	OriginalUnitPrice int64      `gorm:"not null" json:"originalUnitPrice"`
	IsFlashSale       bool       `gorm:"not null;default:false" json:"isFlashSale"`
	FlashSaleID       *uuid.UUID `gorm:"type:uuid" json:"flashSaleId,omitempty"`
}

// Recalculate derives subtotal and total from the line items. Total is never
// assigned anywhere else.
func (o *Order) Recalculate() {
	var subtotal int64
	for _, it := range o.Items {
		subtotal += it.UnitPrice * int64(it.Quantity)
	}
	o.Subtotal = subtotal
	o.Total = o.Subtotal + o.ShippingFee
}

// BeforeSave keeps the derived totals in sync on every write.
func (o *Order) BeforeSave(tx *gorm.DB) error {
	if len(o.Items) > 0 {
		o.Recalculate()
	} else {
		o.Total = o.Subtotal + o.ShippingFee
	}
	return nil
}
