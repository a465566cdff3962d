package api

import (
	"github.com/gin-gonic/gin"

	"github.com/epetcare/notifier/internal/handlers"
)

func registerSweepRoutes(api *gin.RouterGroup, handler *handlers.SweepHandler) {
	api.POST("/admin/sweep", handler.Run)
}
