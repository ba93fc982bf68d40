package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tunguyen02/mobile-backend/models"
	"github.com/tunguyen02/mobile-backend/repository"
	"go.uber.org/zap"
)

type FlashSaleService interface {
	CreateFlashSale(ctx context.Context, req *models.FlashSaleRequest) (*models.FlashSale, *ServiceError)
	ListFlashSales(ctx context.Context) ([]models.FlashSale, *ServiceError)
	ListActiveFlashSales(ctx context.Context) ([]models.FlashSale, *ServiceError)
	GetFlashSale(ctx context.Context, id string) (*models.FlashSale, *ServiceError)
	UpdateFlashSale(ctx context.Context, id string, req *models.FlashSaleRequest) (*models.FlashSale, *ServiceError)
	DeleteFlashSale(ctx context.Context, id string) *ServiceError
}

type flashSaleServiceImpl struct {
	store   repository.Store
	catalog Catalog
	now     func() time.Time
	logger  *zap.Logger
}

func NewFlashSaleService(store repository.Store, catalog Catalog, logger *zap.Logger) FlashSaleService {
	return &flashSaleServiceImpl{store: store, catalog: catalog, now: time.Now, logger: logger}
}

type offerTerms struct {
	productID     uuid.UUID
	discountPrice int64
	quantity      int
}

// checkRequest validates the window and every offer against the catalog.
// A discount must undercut the catalog price and the cap cannot exceed the
// stock on hand.
func (s *flashSaleServiceImpl) checkRequest(ctx context.Context, req *models.FlashSaleRequest) ([]offerTerms, *ServiceError) {
	if svcErr := validateStruct(req); svcErr != nil {
		return nil, svcErr
	}
	if !req.StartTime.Before(req.EndTime) {
		return nil, validationError("startTime must be before endTime")
	}

	seen := make(map[uuid.UUID]bool, len(req.Products))
	terms := make([]offerTerms, 0, len(req.Products))
	for _, in := range req.Products {
		productID, err := uuid.Parse(in.ProductID)
		if err != nil {
			return nil, validationError("invalid product id %q", in.ProductID)
		}
		if seen[productID] {
			return nil, validationError("product %s is listed twice", productID)
		}
		seen[productID] = true

		product, err := s.catalog.GetProduct(ctx, productID)
		if errors.Is(err, ErrProductNotFound) {
			return nil, validationError("product %s does not exist", productID)
		}
		if err != nil {
			s.logger.Error("Catalog lookup failed", zap.String("product_id", productID.String()), zap.Error(err))
			return nil, gatewayError("Product catalog unavailable")
		}
		if in.DiscountPrice >= product.Price {
			return nil, validationError("discount price for product %s must be below %d", productID, product.Price)
		}
		if in.Quantity > product.Stock {
			return nil, validationError("quantity for product %s exceeds stock %d", productID, product.Stock)
		}
		terms = append(terms, offerTerms{productID: productID, discountPrice: in.DiscountPrice, quantity: in.Quantity})
	}
	return terms, nil
}

func (s *flashSaleServiceImpl) CreateFlashSale(ctx context.Context, req *models.FlashSaleRequest) (*models.FlashSale, *ServiceError) {
	terms, svcErr := s.checkRequest(ctx, req)
	if svcErr != nil {
		return nil, svcErr
	}

	sale := &models.FlashSale{
		ID:        uuid.New(),
		Name:      req.Name,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		IsActive:  true,
	}
	if req.IsActive != nil {
		sale.IsActive = *req.IsActive
	}
	for _, t := range terms {
		sale.Products = append(sale.Products, models.FlashSaleProduct{
			ID:            uuid.New(),
			FlashSaleID:   sale.ID,
			ProductID:     t.productID,
			DiscountPrice: t.discountPrice,
			Quantity:      t.quantity,
		})
	}

	if err := s.store.FlashSales().Create(ctx, sale); err != nil {
		s.logger.Error("Failed to create flash sale", zap.Error(err))
		return nil, internalError("Failed to create flash sale")
	}
	s.logger.Info("Flash sale created", zap.String("flash_sale_id", sale.ID.String()), zap.Int("offers", len(sale.Products)))
	return sale, nil
}

func (s *flashSaleServiceImpl) ListFlashSales(ctx context.Context) ([]models.FlashSale, *ServiceError) {
	sales, err := s.store.FlashSales().FindAll(ctx)
	if err != nil {
		s.logger.Error("Failed to list flash sales", zap.Error(err))
		return nil, internalError("Failed to list flash sales")
	}
	return sales, nil
}

func (s *flashSaleServiceImpl) ListActiveFlashSales(ctx context.Context) ([]models.FlashSale, *ServiceError) {
	sales, err := s.store.FlashSales().FindActive(ctx, s.now())
	if err != nil {
		s.logger.Error("Failed to list active flash sales", zap.Error(err))
		return nil, internalError("Failed to list flash sales")
	}
	return sales, nil
}

func (s *flashSaleServiceImpl) GetFlashSale(ctx context.Context, id string) (*models.FlashSale, *ServiceError) {
	saleID, svcErr := parseID(id, "flash sale")
	if svcErr != nil {
		return nil, svcErr
	}
	sale, err := s.store.FlashSales().FindByID(ctx, saleID)
	if err != nil {
		if isNotFound(err) {
			return nil, notFoundError("Flash sale not found")
		}
		s.logger.Error("Failed to fetch flash sale", zap.String("flash_sale_id", id), zap.Error(err))
		return nil, internalError("Failed to fetch flash sale")
	}
	return sale, nil
}

// UpdateFlashSale replaces the campaign terms. Offers keep their sold
// count; an offer with sales cannot be removed or capped below it.
func (s *flashSaleServiceImpl) UpdateFlashSale(ctx context.Context, id string, req *models.FlashSaleRequest) (*models.FlashSale, *ServiceError) {
	saleID, svcErr := parseID(id, "flash sale")
	if svcErr != nil {
		return nil, svcErr
	}
	terms, svcErr := s.checkRequest(ctx, req)
	if svcErr != nil {
		return nil, svcErr
	}

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		sale, err := tx.FlashSales().FindByIDForUpdate(ctx, saleID)
		if err != nil {
			if isNotFound(err) {
				return notFoundError("Flash sale not found")
			}
			return err
		}

		existing := make(map[uuid.UUID]models.FlashSaleProduct, len(sale.Products))
		for _, p := range sale.Products {
			existing[p.ProductID] = p
		}
		for _, t := range terms {
			offer, ok := existing[t.productID]
			delete(existing, t.productID)
			if !ok {
				if err := tx.FlashSales().AddOffer(ctx, &models.FlashSaleProduct{
					ID:            uuid.New(),
					FlashSaleID:   saleID,
					ProductID:     t.productID,
					DiscountPrice: t.discountPrice,
					Quantity:      t.quantity,
				}); err != nil {
					return err
				}
				continue
			}
			err := tx.FlashSales().SetOfferTerms(ctx, offer.ID, t.discountPrice, t.quantity)
			if errors.Is(err, repository.ErrCapBelowSold) {
				return validationError("quantity for product %s cannot be below the %d units already sold", t.productID, offer.SoldCount)
			}
			if err != nil {
				return err
			}
		}
		for productID, offer := range existing {
			if offer.SoldCount > 0 {
				return invalidStateError("product %s cannot be removed, %d units already sold", productID, offer.SoldCount)
			}
			if err := tx.FlashSales().RemoveOffer(ctx, offer.ID); err != nil {
				return err
			}
		}

		sale.Name = req.Name
		sale.StartTime = req.StartTime
		sale.EndTime = req.EndTime
		if req.IsActive != nil {
			sale.IsActive = *req.IsActive
		}
		return tx.FlashSales().Update(ctx, sale)
	})
	if err != nil {
		return nil, asServiceError(err, s.logger, "Failed to update flash sale", zap.String("flash_sale_id", id))
	}

	s.logger.Info("Flash sale updated", zap.String("flash_sale_id", id))
	return s.GetFlashSale(ctx, id)
}

func (s *flashSaleServiceImpl) DeleteFlashSale(ctx context.Context, id string) *ServiceError {
	saleID, svcErr := parseID(id, "flash sale")
	if svcErr != nil {
		return svcErr
	}
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		sale, err := tx.FlashSales().FindByIDForUpdate(ctx, saleID)
		if err != nil {
			if isNotFound(err) {
				return notFoundError("Flash sale not found")
			}
			return err
		}
		for _, p := range sale.Products {
			if p.SoldCount > 0 {
				return invalidStateError("flash sale has sales and cannot be deleted, deactivate it instead")
			}
		}
		return tx.FlashSales().Delete(ctx, saleID)
	})
	if err != nil {
		return asServiceError(err, s.logger, "Failed to delete flash sale", zap.String("flash_sale_id", id))
	}
	s.logger.Info("Flash sale deleted", zap.String("flash_sale_id", id))
	return nil
}
