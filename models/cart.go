package models

import (
	"time"

	"github.com/google/uuid"
)

// CartItem is a persisted cart line. Clearing a cart removes every row for
// the user.
type CartItem struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"userId"`
	ProductID   uuid.UUID  `gorm:"type:uuid;not null" json:"productId"`
	Quantity    int        `gorm:"not null" json:"quantity"`
	FlashSaleID *uuid.UUID `gorm:"type:uuid" json:"flashSaleId,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"createdAt"`
}

// CartLine is one line handed to the pricing snapshot.
type CartLine struct {
	ProductID string            `json:"productId" validate:"required,uuid"`
	Quantity  int               `json:"quantity"`
	FlashSale *FlashSaleContext `json:"flashSale,omitempty"`
}

// FlashSaleContext marks a line as bought under a flash-sale offer.
type FlashSaleContext struct {
	FlashSaleID   string `json:"flashSaleId" validate:"required,uuid"`
	DiscountPrice int64  `json:"discountPrice,omitempty"`
}
