package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tunguyen02/mobile-backend/models"
	"github.com/tunguyen02/mobile-backend/services"
)

func saleRequest(offers ...models.FlashSaleProductInput) *models.FlashSaleRequest {
	return &models.FlashSaleRequest{
		Name:      "Weekend deals",
		StartTime: time.Now().Add(-time.Hour),
		EndTime:   time.Now().Add(time.Hour),
		Products:  offers,
	}
}

func TestCreateFlashSale(t *testing.T) {
	phone := services.Product{ID: uuid.New(), Name: "Phone", Price: 1000, Stock: 10}
	f := newFixture(t, phone)
	svc := services.NewFlashSaleService(f.store, f.catalog, f.logger)

	sale, svcErr := svc.CreateFlashSale(context.Background(), saleRequest(
		models.FlashSaleProductInput{ProductID: phone.ID.String(), DiscountPrice: 800, Quantity: 5}))
	require.Nil(t, svcErr)
	assert.True(t, sale.IsActive)
	require.Len(t, sale.Products, 1)
	assert.Equal(t, 0, sale.Products[0].SoldCount)

	active, svcErr := svc.ListActiveFlashSales(context.Background())
	require.Nil(t, svcErr)
	assert.Len(t, active, 1)
}

func TestCreateFlashSale_Validation(t *testing.T) {
	phone := services.Product{ID: uuid.New(), Name: "Phone", Price: 1000, Stock: 10}
	f := newFixture(t, phone)
	svc := services.NewFlashSaleService(f.store, f.catalog, f.logger)

	cases := []struct {
		name string
		req  *models.FlashSaleRequest
	}{
		{"no offers", saleRequest()},
		{"unknown product", saleRequest(models.FlashSaleProductInput{ProductID: uuid.NewString(), DiscountPrice: 1, Quantity: 1})},
		{"not a discount", saleRequest(models.FlashSaleProductInput{ProductID: phone.ID.String(), DiscountPrice: 1000, Quantity: 1})},
		{"cap above stock", saleRequest(models.FlashSaleProductInput{ProductID: phone.ID.String(), DiscountPrice: 900, Quantity: 11})},
		{"duplicate product", saleRequest(
			models.FlashSaleProductInput{ProductID: phone.ID.String(), DiscountPrice: 900, Quantity: 1},
			models.FlashSaleProductInput{ProductID: phone.ID.String(), DiscountPrice: 800, Quantity: 1})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, svcErr := svc.CreateFlashSale(context.Background(), tc.req)
			require.NotNil(t, svcErr)
			assert.Equal(t, services.KindValidation, svcErr.Kind)
		})
	}

	inverted := saleRequest(models.FlashSaleProductInput{ProductID: phone.ID.String(), DiscountPrice: 900, Quantity: 1})
	inverted.StartTime, inverted.EndTime = inverted.EndTime, inverted.StartTime
	_, svcErr := svc.CreateFlashSale(context.Background(), inverted)
	require.NotNil(t, svcErr)
	assert.Equal(t, services.KindValidation, svcErr.Kind)
}

func TestUpdateFlashSale_KeepsSoldCount(t *testing.T) {
	phone := services.Product{ID: uuid.New(), Name: "Phone", Price: 1000, Stock: 10}
	tablet := services.Product{ID: uuid.New(), Name: "Tablet", Price: 2000, Stock: 10}
	f := newFixture(t, phone, tablet)
	svc := services.NewFlashSaleService(f.store, f.catalog, f.logger)

	sale := activeSale(phone.ID, 800, 5)
	sale.Products[0].SoldCount = 3
	f.store.putSale(sale)

	_, svcErr := svc.UpdateFlashSale(context.Background(), sale.ID.String(), saleRequest(
		models.FlashSaleProductInput{ProductID: phone.ID.String(), DiscountPrice: 800, Quantity: 2}))
	require.NotNil(t, svcErr)
	assert.Equal(t, services.KindValidation, svcErr.Kind)
	assert.Equal(t, 5, f.store.offer(sale.ID, phone.ID).Quantity)

	_, svcErr = svc.UpdateFlashSale(context.Background(), sale.ID.String(), saleRequest(
		models.FlashSaleProductInput{ProductID: tablet.ID.String(), DiscountPrice: 1500, Quantity: 2}))
	require.NotNil(t, svcErr)
	assert.Equal(t, services.KindInvalidState, svcErr.Kind)

	updated, svcErr := svc.UpdateFlashSale(context.Background(), sale.ID.String(), saleRequest(
		models.FlashSaleProductInput{ProductID: phone.ID.String(), DiscountPrice: 750, Quantity: 8},
		models.FlashSaleProductInput{ProductID: tablet.ID.String(), DiscountPrice: 1500, Quantity: 2}))
	require.Nil(t, svcErr)
	assert.Len(t, updated.Products, 2)
	offer := f.store.offer(sale.ID, phone.ID)
	assert.Equal(t, int64(750), offer.DiscountPrice)
	assert.Equal(t, 8, offer.Quantity)
	assert.Equal(t, 3, offer.SoldCount)
}

func TestDeleteFlashSale(t *testing.T) {
	f := newFixture(t)
	svc := services.NewFlashSaleService(f.store, f.catalog, f.logger)

	sold := activeSale(uuid.New(), 800, 5)
	sold.Products[0].SoldCount = 1
	f.store.putSale(sold)
	unsold := activeSale(uuid.New(), 800, 5)
	f.store.putSale(unsold)

	svcErr := svc.DeleteFlashSale(context.Background(), sold.ID.String())
	require.NotNil(t, svcErr)
	assert.Equal(t, services.KindInvalidState, svcErr.Kind)

	require.Nil(t, svc.DeleteFlashSale(context.Background(), unsold.ID.String()))
	_, svcErr = svc.GetFlashSale(context.Background(), unsold.ID.String())
	require.NotNil(t, svcErr)
	assert.Equal(t, services.KindNotFound, svcErr.Kind)
}
