package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tunguyen02/mobile-backend/models"
	"github.com/tunguyen02/mobile-backend/services"
)

type OrderController struct {
	orderService services.OrderService
}

func NewOrderController(orderService services.OrderService) *OrderController {
	return &OrderController{orderService: orderService}
}

// CreateOrder handles POST /orders. Items may be omitted to check out the
// caller's persisted cart.
func (oc *OrderController) CreateOrder(ctx *gin.Context) {
	user, ok := identity(ctx)
	if !ok {
		return
	}
	var req models.CreateOrderRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	req.ClientIP = ctx.ClientIP()
	if req.ShippingInfo.Email == "" {
		req.ShippingInfo.Email = user.Email
	}

	resp, svcErr := oc.orderService.CreateOrder(ctx.Request.Context(), user, &req)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusCreated, resp)
}

// GetOrder handles GET /orders/:id for the owner or staff.
func (oc *OrderController) GetOrder(ctx *gin.Context) {
	user, ok := identity(ctx)
	if !ok {
		return
	}
	detail, svcErr := oc.orderService.GetOrder(ctx.Request.Context(), user, ctx.Param("id"))
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, detail)
}

func (oc *OrderController) ListMyOrders(ctx *gin.Context) {
	user, ok := identity(ctx)
	if !ok {
		return
	}
	page, limit := parsePaginationParams(ctx)
	resp, svcErr := oc.orderService.ListMyOrders(ctx.Request.Context(), user, page, limit)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

func (oc *OrderController) ListAllOrders(ctx *gin.Context) {
	page, limit := parsePaginationParams(ctx)
	resp, svcErr := oc.orderService.ListAllOrders(ctx.Request.Context(), page, limit)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

func (oc *OrderController) CountOrders(ctx *gin.Context) {
	n, svcErr := oc.orderService.CountOrders(ctx.Request.Context())
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"count": n})
}

// ChangeOrderStatus handles PUT /orders/:id/status (admin only).
func (oc *OrderController) ChangeOrderStatus(ctx *gin.Context) {
	var req models.ChangeOrderStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	detail, svcErr := oc.orderService.ChangeOrderStatus(ctx.Request.Context(), ctx.Param("id"), &req)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, detail)
}

// CancelOrder handles POST /orders/:id/cancel by the owner.
func (oc *OrderController) CancelOrder(ctx *gin.Context) {
	user, ok := identity(ctx)
	if !ok {
		return
	}
	resp, svcErr := oc.orderService.CancelOrderByUser(ctx.Request.Context(), user, ctx.Param("id"))
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// ChangePaymentMethod handles PUT /orders/:id/payment-method.
func (oc *OrderController) ChangePaymentMethod(ctx *gin.Context) {
	user, ok := identity(ctx)
	if !ok {
		return
	}
	var req models.ChangePaymentMethodRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	payment, svcErr := oc.orderService.ChangePaymentMethod(ctx.Request.Context(), user, ctx.Param("id"), req.PaymentMethod)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"payment": payment})
}

// DeleteOrder handles DELETE /orders/:id (admin only).
func (oc *OrderController) DeleteOrder(ctx *gin.Context) {
	if svcErr := oc.orderService.DeleteOrder(ctx.Request.Context(), ctx.Param("id")); svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "Order deleted"})
}
