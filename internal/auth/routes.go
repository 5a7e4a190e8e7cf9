package auth

import "github.com/gin-gonic/gin"

// RegisterRoutes registers Auth routes
func RegisterRoutes(r *gin.RouterGroup, handler *Handler) {
	authGroup := r.Group("/auth")
	{
		authGroup.GET("/ping", handler.Ping)
		authGroup.POST("/challenge", handler.Challenge)
		authGroup.POST("/session", handler.Session)
		authGroup.GET("/me", RequireWallet(handler.Service), handler.Me)
	}
}
