package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// ErrOfferExhausted is returned when a flash-sale reservation would push
// soldCount past the offer's cap.
var ErrOfferExhausted = errors.New("flash sale offer exhausted")

// Store groups the repositories that take part in one unit of work.
type Store interface {
	Orders() OrderRepository
	Payments() PaymentRepository
	Refunds() RefundRepository
	FlashSales() FlashSaleRepository
	Carts() CartRepository

	// WithTx runs fn against a Store bound to a single transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

// GormStore implements Store on top of a *gorm.DB.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Orders() OrderRepository         { return NewGormOrderRepository(s.db) }
func (s *GormStore) Payments() PaymentRepository     { return NewGormPaymentRepository(s.db) }
func (s *GormStore) Refunds() RefundRepository       { return NewGormRefundRepository(s.db) }
func (s *GormStore) FlashSales() FlashSaleRepository { return NewGormFlashSaleRepository(s.db) }
func (s *GormStore) Carts() CartRepository           { return NewGormCartRepository(s.db) }

func (s *GormStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func paginate(page, limit int) (offset int, size int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	return (page - 1) * limit, limit
}
