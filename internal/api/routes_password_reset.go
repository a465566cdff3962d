package api

import (
	"github.com/gin-gonic/gin"

	"github.com/epetcare/notifier/internal/handlers"
)

func registerPasswordResetRoutes(api *gin.RouterGroup, handler *handlers.PasswordResetHandler) {
	group := api.Group("/auth/password-reset")
	{
		group.POST("/request", handler.Request)
		group.POST("/verify", handler.Verify)
		group.POST("/confirm", handler.Confirm)
	}
}
