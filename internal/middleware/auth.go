package middleware

import (
	"net/http"
	"strings"

	"github.com/aman-churiwal/edge-gateway/internal/service"
	"github.com/gin-gonic/gin"
)

// Context keys set by the auth stages.
const (
	ContextUserID   = "user_id"
	ContextTenantID = "tenant_id"
)

// TokenValidator turns a bearer token into a principal.
type TokenValidator interface {
	ValidateToken(token string) (service.Principal, error)
}

// Validates JWT token and requires authentication
func RequireAuth(auth TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
			})
			c.Abort()
			return
		}

		token, ok := bearer(authHeader)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid authorization header format. Use: Bearer <token>",
			})
			c.Abort()
			return
		}

		principal, err := auth.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			c.Abort()
			return
		}

		setPrincipal(c, principal)
		c.Next()
	}
}

// OptionalAuth records the principal of a valid bearer token and lets
// anonymous or badly authenticated requests through unchanged.
func OptionalAuth(auth TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearer(c.GetHeader("Authorization")); ok {
			if principal, err := auth.ValidateToken(token); err == nil {
				setPrincipal(c, principal)
			}
		}
		c.Next()
	}
}

func bearer(header string) (string, bool) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func setPrincipal(c *gin.Context, p service.Principal) {
	c.Set(ContextUserID, p.UserID)
	c.Set(ContextTenantID, p.TenantID)
}
