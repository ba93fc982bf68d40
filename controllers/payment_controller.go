package controllers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tunguyen02/mobile-backend/models"
	"github.com/tunguyen02/mobile-backend/services"
)

type PaymentController struct {
	paymentService services.PaymentService
	frontendURL    string
}

func NewPaymentController(paymentService services.PaymentService, frontendURL string) *PaymentController {
	return &PaymentController{
		paymentService: paymentService,
		frontendURL:    strings.TrimSuffix(frontendURL, "/"),
	}
}

// IPN handles the gateway's server-to-server notification. The gateway
// expects HTTP 200 with a RspCode body whatever the outcome.
func (pc *PaymentController) IPN(ctx *gin.Context) {
	resp := pc.paymentService.HandleIPN(ctx.Request.Context(), ctx.Request.URL.Query())
	ctx.JSON(http.StatusOK, resp)
}

// Return handles the browser redirect back from the gateway and forwards
// the customer to the storefront's order page.
func (pc *PaymentController) Return(ctx *gin.Context) {
	res := pc.paymentService.HandleReturn(ctx.Request.Context(), ctx.Request.URL.Query())
	ctx.Redirect(http.StatusFound, pc.redirectTarget(res))
}

func (pc *PaymentController) redirectTarget(res services.ReturnResult) string {
	if !res.Found {
		return pc.frontendURL + "/?payment=unknown"
	}
	q := url.Values{"status": {res.Status}}
	return pc.frontendURL + "/order/details/" + res.OrderID.String() + "?" + q.Encode()
}

// Repay handles POST /orders/:id/repay.
func (pc *PaymentController) Repay(ctx *gin.Context) {
	user, ok := identity(ctx)
	if !ok {
		return
	}
	var req models.RepayRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			badRequest(ctx, err)
			return
		}
	}
	paymentURL, svcErr := pc.paymentService.Repay(ctx.Request.Context(), user, ctx.Param("id"), &req, ctx.ClientIP())
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"paymentUrl": paymentURL})
}
