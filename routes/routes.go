package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/tunguyen02/mobile-backend/controllers"
	"github.com/tunguyen02/mobile-backend/middleware"
)

type Controllers struct {
	Orders     *controllers.OrderController
	Payments   *controllers.PaymentController
	Refunds    *controllers.RefundController
	FlashSales *controllers.FlashSaleController
}

// Register mounts every route. callbackLimit guards the unauthenticated
// gateway callbacks.
func Register(r *gin.Engine, c Controllers, callbackLimit gin.HandlerFunc) {
	auth := middleware.AuthMiddleware()
	admin := middleware.AdminOnly()

	orders := r.Group("/orders", auth)
	orders.POST("", c.Orders.CreateOrder)
	orders.GET("/me", c.Orders.ListMyOrders)
	orders.GET("/:id", c.Orders.GetOrder)
	orders.POST("/:id/cancel", c.Orders.CancelOrder)
	orders.PUT("/:id/payment-method", c.Orders.ChangePaymentMethod)
	orders.POST("/:id/repay", c.Payments.Repay)

	adminOrders := orders.Group("", admin)
	adminOrders.GET("", c.Orders.ListAllOrders)
	adminOrders.GET("/count", c.Orders.CountOrders)
	adminOrders.PUT("/:id/status", c.Orders.ChangeOrderStatus)
	adminOrders.DELETE("/:id", c.Orders.DeleteOrder)

	callbacks := r.Group("/payments/vnpay", callbackLimit)
	callbacks.GET("/ipn", c.Payments.IPN)
	callbacks.GET("/return", c.Payments.Return)

	refunds := r.Group("/refunds", auth)
	refunds.POST("", c.Refunds.CreateRefund)
	refunds.GET("/me", c.Refunds.ListMyRefunds)
	refunds.GET("/:id", c.Refunds.GetRefund)

	adminRefunds := refunds.Group("", admin)
	adminRefunds.GET("", c.Refunds.ListAllRefunds)
	adminRefunds.POST("/:id/approve", c.Refunds.ApproveRefund)
	adminRefunds.POST("/:id/reject", c.Refunds.RejectRefund)

	r.GET("/flash-sales/active", c.FlashSales.ListActiveFlashSales)
	r.GET("/flash-sales/:id", c.FlashSales.GetFlashSale)

	adminSales := r.Group("/flash-sales", auth, admin)
	adminSales.POST("", c.FlashSales.CreateFlashSale)
	adminSales.GET("", c.FlashSales.ListFlashSales)
	adminSales.PUT("/:id", c.FlashSales.UpdateFlashSale)
	adminSales.DELETE("/:id", c.FlashSales.DeleteFlashSale)
}
