package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tunguyen02/mobile-backend/models"
	"github.com/tunguyen02/mobile-backend/services"
)

type RefundController struct {
	refundService services.RefundService
}

func NewRefundController(refundService services.RefundService) *RefundController {
	return &RefundController{refundService: refundService}
}

func (rc *RefundController) CreateRefund(ctx *gin.Context) {
	user, ok := identity(ctx)
	if !ok {
		return
	}
	var req models.CreateRefundRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	refund, svcErr := rc.refundService.CreateRefundRequest(ctx.Request.Context(), user, &req)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"refund": refund})
}

func (rc *RefundController) ListMyRefunds(ctx *gin.Context) {
	user, ok := identity(ctx)
	if !ok {
		return
	}
	page, limit := parsePaginationParams(ctx)
	resp, svcErr := rc.refundService.ListMyRefunds(ctx.Request.Context(), user, page, limit)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// ListAllRefunds handles GET /refunds?status= (admin only).
func (rc *RefundController) ListAllRefunds(ctx *gin.Context) {
	page, limit := parsePaginationParams(ctx)
	resp, svcErr := rc.refundService.ListAllRefunds(ctx.Request.Context(), ctx.Query("status"), page, limit)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

func (rc *RefundController) GetRefund(ctx *gin.Context) {
	user, ok := identity(ctx)
	if !ok {
		return
	}
	refund, svcErr := rc.refundService.GetRefund(ctx.Request.Context(), user, ctx.Param("id"))
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"refund": refund})
}

func (rc *RefundController) ApproveRefund(ctx *gin.Context) {
	admin, ok := identity(ctx)
	if !ok {
		return
	}
	var req models.RefundDecisionRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			badRequest(ctx, err)
			return
		}
	}
	refund, svcErr := rc.refundService.ApproveRefund(ctx.Request.Context(), admin, ctx.Param("id"), req.Note)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"refund": refund})
}

func (rc *RefundController) RejectRefund(ctx *gin.Context) {
	var req models.RefundDecisionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	refund, svcErr := rc.refundService.RejectRefund(ctx.Request.Context(), ctx.Param("id"), req.Note)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"refund": refund})
}
