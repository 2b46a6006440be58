package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Context keys set by SessionMiddleware.
const (
	ContextUserEmail = "user_email"
	ContextUserName  = "user_name"
)

// SessionMiddleware reads an optional bearer session token and stores the caller's
// identity in the gin context. Requests without a valid token continue
// anonymously.
func SessionMiddleware(service *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if ok && token != "" {
			if claims, err := service.Authenticate(strings.TrimSpace(token)); err == nil {
				c.Set(ContextUserEmail, claims.Email)
				c.Set(ContextUserName, claims.Name)
			}
		}
		c.Next()
	}
}

// RequireSession rejects requests that Session did not identify.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextUserEmail) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Next()
	}
}
