package models

import (
	"time"

	"github.com/google/uuid"
)

// FlashSale is a campaign window grouping discounted product offers.
type FlashSale struct {
	ID        uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name      string             `gorm:"not null" json:"name"`
	StartTime time.Time          `gorm:"not null;index" json:"startTime"`
	EndTime   time.Time          `gorm:"not null;index" json:"endTime"`
	IsActive  bool               `gorm:"not null;default:true" json:"isActive"`
	Products  []FlashSaleProduct `gorm:"foreignKey:FlashSaleID;constraint:OnDelete:CASCADE" json:"products"`
	CreatedAt time.Time          `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time          `gorm:"autoUpdateTime" json:"updatedAt"`
}

// FlashSaleProduct is one offer line. SoldCount never exceeds Quantity.
type FlashSaleProduct struct {
	ID            uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	FlashSaleID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_flash_sale_product" json:"flashSaleId"`
	ProductID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_flash_sale_product" json:"productId"`
	DiscountPrice int64     `gorm:"not null" json:"discountPrice"`
	Quantity      int       `gorm:"not null" json:"quantity"`
	SoldCount     int       `gorm:"not null;default:0" json:"soldCount"`
}

// ActiveAt reports whether the campaign accepts orders at t.
func (f *FlashSale) ActiveAt(t time.Time) bool {
	return f.IsActive && !t.Before(f.StartTime) && t.Before(f.EndTime)
}

// Remaining is the number of units still available at the discount price.
func (p *FlashSaleProduct) Remaining() int {
	return p.Quantity - p.SoldCount
}

type FlashSaleProductInput struct {
	ProductID     string `json:"productId" validate:"required,uuid"`
	DiscountPrice int64  `json:"discountPrice" validate:"required,gt=0"`
	Quantity      int    `json:"quantity" validate:"required,gt=0"`
}

type FlashSaleRequest struct {
	Name      string                  `json:"name" validate:"required,max=200"`
	StartTime time.Time               `json:"startTime" validate:"required"`
	EndTime   time.Time               `json:"endTime" validate:"required"`
	IsActive  *bool                   `json:"isActive,omitempty"`
	Products  []FlashSaleProductInput `json:"products" validate:"required,min=1,dive"`
}
