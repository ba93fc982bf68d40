package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tunguyen02/mobile-backend/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrCapBelowSold is returned when an edit would set an offer's cap below
// the units already sold.
var ErrCapBelowSold = errors.New("flash sale cap below sold count")

// FlashSaleRepository is the flash-sale ledger. SoldCount is only ever
// changed through Reserve.
type FlashSaleRepository interface {
	Create(ctx context.Context, sale *models.FlashSale) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.FlashSale, error)
	// FindByIDForUpdate locks the campaign and all of its offer rows.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.FlashSale, error)
	FindAll(ctx context.Context) ([]models.FlashSale, error)
	FindActive(ctx context.Context, now time.Time) ([]models.FlashSale, error)
	FindOffer(ctx context.Context, saleID, productID uuid.UUID) (*models.FlashSale, *models.FlashSaleProduct, error)
	// Reserve adds qty to soldCount only if the result stays within the cap.
	// It returns ErrOfferExhausted otherwise.
	Reserve(ctx context.Context, saleID, productID uuid.UUID, qty int) error
	Update(ctx context.Context, sale *models.FlashSale) error
	SetOfferTerms(ctx context.Context, offerID uuid.UUID, discountPrice int64, quantity int) error
	AddOffer(ctx context.Context, offer *models.FlashSaleProduct) error
	RemoveOffer(ctx context.Context, offerID uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type GormFlashSaleRepository struct {
	db *gorm.DB
}

func NewGormFlashSaleRepository(db *gorm.DB) FlashSaleRepository {
	return &GormFlashSaleRepository{db: db}
}

func (r *GormFlashSaleRepository) Create(ctx context.Context, sale *models.FlashSale) error {
	return r.db.WithContext(ctx).Create(sale).Error
}

func (r *GormFlashSaleRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.FlashSale, error) {
	var sale models.FlashSale
	if err := r.db.WithContext(ctx).Preload("Products").Where("id = ?", id).First(&sale).Error; err != nil {
		return nil, err
	}
	return &sale, nil
}

func (r *GormFlashSaleRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.FlashSale, error) {
	var sale models.FlashSale
	locked := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
	if err := locked.Where("id = ?", id).First(&sale).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("flash_sale_id = ?", id).
		Find(&sale.Products).Error; err != nil {
		return nil, err
	}
	return &sale, nil
}

func (r *GormFlashSaleRepository) FindAll(ctx context.Context) ([]models.FlashSale, error) {
	var sales []models.FlashSale
	err := r.db.WithContext(ctx).Preload("Products").Order("start_time DESC").Find(&sales).Error
	return sales, err
}

func (r *GormFlashSaleRepository) FindActive(ctx context.Context, now time.Time) ([]models.FlashSale, error) {
	var sales []models.FlashSale
	err := r.db.WithContext(ctx).
		Preload("Products").
		Where("is_active = ? AND start_time <= ? AND end_time > ?", true, now, now).
		Order("end_time ASC").
		Find(&sales).Error
	return sales, err
}

func (r *GormFlashSaleRepository) FindOffer(ctx context.Context, saleID, productID uuid.UUID) (*models.FlashSale, *models.FlashSaleProduct, error) {
	var sale models.FlashSale
	if err := r.db.WithContext(ctx).Where("id = ?", saleID).First(&sale).Error; err != nil {
		return nil, nil, err
	}
	var offer models.FlashSaleProduct
	if err := r.db.WithContext(ctx).
		Where("flash_sale_id = ? AND product_id = ?", saleID, productID).
		First(&offer).Error; err != nil {
		return nil, nil, err
	}
	return &sale, &offer, nil
}

// Reserve is a single conditional UPDATE so that concurrent commits against
// the same offer cannot both pass the cap.
func (r *GormFlashSaleRepository) Reserve(ctx context.Context, saleID, productID uuid.UUID, qty int) error {
	res := r.db.WithContext(ctx).
		Model(&models.FlashSaleProduct{}).
		Where("flash_sale_id = ? AND product_id = ? AND sold_count + ? <= quantity", saleID, productID, qty).
		UpdateColumn("sold_count", gorm.Expr("sold_count + ?", qty))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrOfferExhausted
	}
	return nil
}

// Update saves the campaign row only; offers are edited individually.
func (r *GormFlashSaleRepository) Update(ctx context.Context, sale *models.FlashSale) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(sale).Error
}

// SetOfferTerms changes price and cap without touching sold_count.
func (r *GormFlashSaleRepository) SetOfferTerms(ctx context.Context, offerID uuid.UUID, discountPrice int64, quantity int) error {
	res := r.db.WithContext(ctx).
		Model(&models.FlashSaleProduct{}).
		Where("id = ? AND sold_count <= ?", offerID, quantity).
		UpdateColumns(map[string]interface{}{
			"discount_price": discountPrice,
			"quantity":       quantity,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCapBelowSold
	}
	return nil
}

func (r *GormFlashSaleRepository) AddOffer(ctx context.Context, offer *models.FlashSaleProduct) error {
	return r.db.WithContext(ctx).Create(offer).Error
}

func (r *GormFlashSaleRepository) RemoveOffer(ctx context.Context, offerID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", offerID).Delete(&models.FlashSaleProduct{}).Error
}

func (r *GormFlashSaleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.FlashSale{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
