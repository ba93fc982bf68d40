package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tunguyen02/mobile-backend/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PaymentRepository defines the interface for payment data access
type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	FindByOrderIDForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	FindByOrderIDs(ctx context.Context, orderIDs []uuid.UUID) ([]models.Payment, error)
	// FindExpirable returns Gateway payments still Pending that were created
	// before cutoff, oldest first. Payments whose order is already Shipping
	// or Completed are left out so they cannot crowd out a batch.
	FindExpirable(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error)
	Update(ctx context.Context, payment *models.Payment) error
	DeleteByOrderID(ctx context.Context, orderID uuid.UUID) error
}

type GormPaymentRepository struct {
	db *gorm.DB
}

func NewGormPaymentRepository(db *gorm.DB) PaymentRepository {
	return &GormPaymentRepository{db: db}
}

// Create inserts the payment. The unique index on order_id rejects a second
// payment for the same order.
func (r *GormPaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *GormPaymentRepository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *GormPaymentRepository) FindByOrderIDForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ?", orderID).
		First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *GormPaymentRepository) FindByOrderIDs(ctx context.Context, orderIDs []uuid.UUID) ([]models.Payment, error) {
	var payments []models.Payment
	if len(orderIDs) == 0 {
		return payments, nil
	}
	err := r.db.WithContext(ctx).Where("order_id IN ?", orderIDs).Find(&payments).Error
	return payments, err
}

func (r *GormPaymentRepository) FindExpirable(ctx context.Context, cutoff time.Time, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Joins("JOIN orders ON orders.id = payments.order_id").
		Where("payments.method = ? AND payments.status = ? AND payments.created_at < ?",
			models.PaymentMethodGateway, models.PaymentPending, cutoff).
		Where("orders.shipping_status IN ?", models.ExpirableShippingStatuses()).
		Order("payments.created_at ASC").
		Limit(limit).
		Find(&payments).Error
	return payments, err
}

func (r *GormPaymentRepository) Update(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Save(payment).Error
}

func (r *GormPaymentRepository) DeleteByOrderID(ctx context.Context, orderID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("order_id = ?", orderID).Delete(&models.Payment{}).Error
}
