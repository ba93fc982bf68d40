package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tunguyen02/mobile-backend/models"
	"github.com/tunguyen02/mobile-backend/services"
)

type FlashSaleController struct {
	flashSaleService services.FlashSaleService
}

func NewFlashSaleController(flashSaleService services.FlashSaleService) *FlashSaleController {
	return &FlashSaleController{flashSaleService: flashSaleService}
}

func (fc *FlashSaleController) CreateFlashSale(ctx *gin.Context) {
	var req models.FlashSaleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	sale, svcErr := fc.flashSaleService.CreateFlashSale(ctx.Request.Context(), &req)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"flashSale": sale})
}

func (fc *FlashSaleController) ListFlashSales(ctx *gin.Context) {
	sales, svcErr := fc.flashSaleService.ListFlashSales(ctx.Request.Context())
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"flashSales": sales})
}

// ListActiveFlashSales is public; the storefront polls it.
func (fc *FlashSaleController) ListActiveFlashSales(ctx *gin.Context) {
	sales, svcErr := fc.flashSaleService.ListActiveFlashSales(ctx.Request.Context())
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"flashSales": sales})
}

func (fc *FlashSaleController) GetFlashSale(ctx *gin.Context) {
	sale, svcErr := fc.flashSaleService.GetFlashSale(ctx.Request.Context(), ctx.Param("id"))
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"flashSale": sale})
}

func (fc *FlashSaleController) UpdateFlashSale(ctx *gin.Context) {
	var req models.FlashSaleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	sale, svcErr := fc.flashSaleService.UpdateFlashSale(ctx.Request.Context(), ctx.Param("id"), &req)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"flashSale": sale})
}

func (fc *FlashSaleController) DeleteFlashSale(ctx *gin.Context) {
	if svcErr := fc.flashSaleService.DeleteFlashSale(ctx.Request.Context(), ctx.Param("id")); svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "Flash sale deleted"})
}
