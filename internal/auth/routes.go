package auth

import "github.com/gin-gonic/gin"

// RegisterRoutes registers the OAuth routes under rg (normally /api/auth).
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	authGroup := rg.Group("/auth")
	{
		authGroup.GET("/google/url", h.googleURL)
		authGroup.GET("/google/callback", h.googleCallback)
		authGroup.GET("/me", SessionMiddleware(h.service), RequireSession(), h.me)
	}
}
