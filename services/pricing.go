package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tunguyen02/mobile-backend/models"
	"go.uber.org/zap"
)

// OfferFinder looks up one flash-sale offer line.
type OfferFinder interface {
	FindOffer(ctx context.Context, saleID, productID uuid.UUID) (*models.FlashSale, *models.FlashSaleProduct, error)
}

type PricedLine struct {
	ProductID         uuid.UUID
	Name              string
	Quantity          int
	UnitPrice         int64
	OriginalUnitPrice int64
	IsFlashSale       bool
	FlashSaleID       *uuid.UUID
}

// dropFlashSale reprices the line at the catalog price captured in the
// snapshot.
func (l *PricedLine) dropFlashSale() {
	l.UnitPrice = l.OriginalUnitPrice
	l.IsFlashSale = false
	l.FlashSaleID = nil
}

type PriceSnapshot struct {
	Lines       []PricedLine
	Subtotal    int64
	ShippingFee int64
	Total       int64
}

func (s *PriceSnapshot) recalculate() {
	var subtotal int64
	for _, l := range s.Lines {
		subtotal += l.UnitPrice * int64(l.Quantity)
	}
	s.Subtotal = subtotal
	s.Total = s.Subtotal + s.ShippingFee
}

// Pricing resolves the authoritative unit price of every cart line.
type Pricing struct {
	catalog     Catalog
	offers      OfferFinder
	shippingFee int64
	now         func() time.Time
	logger      *zap.Logger
}

func NewPricing(catalog Catalog, offers OfferFinder, shippingFee int64, logger *zap.Logger) *Pricing {
	return &Pricing{
		catalog:     catalog,
		offers:      offers,
		shippingFee: shippingFee,
		now:         time.Now,
		logger:      logger,
	}
}

// Snapshot prices the cart. A line whose flash-sale offer is unknown,
// outside its window, or short of units is priced at the catalog price.
func (p *Pricing) Snapshot(ctx context.Context, lines []models.CartLine, shippingOverride *int64) (*PriceSnapshot, *ServiceError) {
	if len(lines) == 0 {
		return nil, validationError("cart is empty")
	}

	snap := &PriceSnapshot{ShippingFee: p.shippingFee, Lines: make([]PricedLine, 0, len(lines))}
	if shippingOverride != nil {
		if *shippingOverride < 0 {
			return nil, validationError("shipping fee cannot be negative")
		}
		snap.ShippingFee = *shippingOverride
	}

	now := p.now()
	for _, line := range lines {
		productID, err := uuid.Parse(line.ProductID)
		if err != nil {
			return nil, validationError("invalid product id %q", line.ProductID)
		}
		if line.Quantity <= 0 {
			return nil, validationError("quantity for product %s must be positive", productID)
		}

		product, err := p.catalog.GetProduct(ctx, productID)
		if errors.Is(err, ErrProductNotFound) {
			return nil, validationError("product %s no longer exists", productID)
		}
		if err != nil {
			p.logger.Error("Catalog lookup failed", zap.String("product_id", productID.String()), zap.Error(err))
			return nil, gatewayError("Product catalog unavailable")
		}
		if line.Quantity > product.Stock {
			return nil, validationError("insufficient stock for product %s", productID)
		}

		priced := PricedLine{
			ProductID:         productID,
			Name:              product.Name,
			Quantity:          line.Quantity,
			UnitPrice:         product.Price,
			OriginalUnitPrice: product.Price,
		}
		if line.FlashSale != nil {
			p.applyFlashSale(ctx, &priced, line.FlashSale, now)
		}
		snap.Lines = append(snap.Lines, priced)
	}

	snap.recalculate()
	return snap, nil
}

func (p *Pricing) applyFlashSale(ctx context.Context, line *PricedLine, fs *models.FlashSaleContext, now time.Time) {
	saleID, err := uuid.Parse(fs.FlashSaleID)
	if err != nil || p.offers == nil {
		return
	}
	sale, offer, err := p.offers.FindOffer(ctx, saleID, line.ProductID)
	if err != nil {
		if !isNotFound(err) {
			p.logger.Warn("Flash sale lookup failed, using catalog price",
				zap.String("flash_sale_id", saleID.String()), zap.Error(err))
		}
		return
	}
	if !sale.ActiveAt(now) || offer.Remaining() < line.Quantity {
		p.logger.Info("Flash sale offer not applicable, using catalog price",
			zap.String("flash_sale_id", saleID.String()),
			zap.String("product_id", line.ProductID.String()),
			zap.Int("remaining", offer.Remaining()))
		return
	}
	if fs.DiscountPrice != 0 && fs.DiscountPrice != offer.DiscountPrice {
		p.logger.Info("Client flash sale price differs from ledger",
			zap.Int64("client_price", fs.DiscountPrice), zap.Int64("ledger_price", offer.DiscountPrice))
	}

	line.UnitPrice = offer.DiscountPrice
	line.IsFlashSale = true
	line.FlashSaleID = &saleID
}
