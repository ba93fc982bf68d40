package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/tunguyen02/mobile-backend/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RefundRepository interface {
	Create(ctx context.Context, refund *models.Refund) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Refund, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Refund, error)
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Refund, error)
	FindByUserID(ctx context.Context, userID uuid.UUID, page, limit int) ([]models.Refund, int64, error)
	// FindAll lists refunds, optionally filtered by status, newest first.
	FindAll(ctx context.Context, status models.RefundStatus, page, limit int) ([]models.Refund, int64, error)
	Update(ctx context.Context, refund *models.Refund) error
}

type GormRefundRepository struct {
	db *gorm.DB
}

func NewGormRefundRepository(db *gorm.DB) RefundRepository {
	return &GormRefundRepository{db: db}
}

func (r *GormRefundRepository) Create(ctx context.Context, refund *models.Refund) error {
	return r.db.WithContext(ctx).Create(refund).Error
}

func (r *GormRefundRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Refund, error) {
	var refund models.Refund
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&refund).Error; err != nil {
		return nil, err
	}
	return &refund, nil
}

func (r *GormRefundRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Refund, error) {
	var refund models.Refund
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&refund).Error; err != nil {
		return nil, err
	}
	return &refund, nil
}

func (r *GormRefundRepository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Refund, error) {
	var refund models.Refund
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&refund).Error; err != nil {
		return nil, err
	}
	return &refund, nil
}

func (r *GormRefundRepository) FindByUserID(ctx context.Context, userID uuid.UUID, page, limit int) ([]models.Refund, int64, error) {
	var refunds []models.Refund
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Refund{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset, size := paginate(page, limit)
	if err := query.Offset(offset).Limit(size).Order("created_at DESC").Find(&refunds).Error; err != nil {
		return nil, 0, err
	}
	return refunds, total, nil
}

func (r *GormRefundRepository) FindAll(ctx context.Context, status models.RefundStatus, page, limit int) ([]models.Refund, int64, error) {
	var refunds []models.Refund
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Refund{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset, size := paginate(page, limit)
	if err := query.Offset(offset).Limit(size).Order("created_at DESC").Find(&refunds).Error; err != nil {
		return nil, 0, err
	}
	return refunds, total, nil
}

func (r *GormRefundRepository) Update(ctx context.Context, refund *models.Refund) error {
	return r.db.WithContext(ctx).Save(refund).Error
}
