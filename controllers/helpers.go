package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/tunguyen02/mobile-backend/middleware"
	"github.com/tunguyen02/mobile-backend/services"
)

func respondError(ctx *gin.Context, svcErr *services.ServiceError) {
	ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
}

func badRequest(ctx *gin.Context, err error) {
	ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
}

// identity fails the request with 401 when no caller is attached.
func identity(ctx *gin.Context) (services.Identity, bool) {
	id, err := middleware.GetIdentity(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return services.Identity{}, false
	}
	return id, true
}

// parsePaginationParams reads page and limit, defaulting to 1 and 10 and
// capping limit at 100.
func parsePaginationParams(ctx *gin.Context) (int, int) {
	const (
		defaultPage  = 1
		defaultLimit = 10
		maxLimit     = 100
	)
	page, limit := defaultPage, defaultLimit
	if p, err := strconv.Atoi(ctx.Query("page")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(ctx.Query("limit")); err == nil && l > 0 {
		limit = min(l, maxLimit)
	}
	return page, limit
}
