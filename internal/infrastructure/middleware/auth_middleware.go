package middleware

import (
	"net/http"
	"strings"

	"chatnet/internal/core/domain"
	"chatnet/internal/core/services"

	"github.com/gin-gonic/gin"
)

const (
	contextUserIDKey   = "user_id"
	contextUsernameKey = "username"
)

func AuthMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		c.Set(contextUserIDKey, claims.UserID())
		c.Set(contextUsernameKey, claims.Username)
		c.Next()
	}
}

// UserIDFromContext returns the verified identity set by AuthMiddleware.
func UserIDFromContext(c *gin.Context) (domain.UserID, bool) {
	val, exists := c.Get(contextUserIDKey)
	if !exists {
		return "", false
	}
	id, ok := val.(domain.UserID)
	return id, ok
}
