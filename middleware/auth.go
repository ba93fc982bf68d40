package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tunguyen02/mobile-backend/services"
)

const identityKey = "identity"

// AuthMiddleware trusts the identity headers injected by the API gateway,
// falling back to the cookies it sets.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := headerOrCookie(c, "X-User-ID", "user_id")
		role := headerOrCookie(c, "X-User-Role", "user_role")
		email := headerOrCookie(c, "X-User-Email", "user_email")

		id, err := uuid.Parse(userID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		c.Set(identityKey, services.Identity{UserID: id, Role: role, Email: email})
		c.Next()
	}
}

func headerOrCookie(c *gin.Context, header, cookie string) string {
	if v := c.GetHeader(header); v != "" {
		return v
	}
	if v, err := c.Cookie(cookie); err == nil {
		return v
	}
	return ""
}

// GetIdentity returns the caller set by AuthMiddleware.
func GetIdentity(c *gin.Context) (services.Identity, error) {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(services.Identity); ok {
			return id, nil
		}
	}
	return services.Identity{}, errors.New("identity not found in context")
}

// AdminOnly restricts a group to staff. It must run after AuthMiddleware.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := GetIdentity(c)
		if err != nil || !id.IsStaff() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin role required"})
			return
		}
		c.Next()
	}
}
