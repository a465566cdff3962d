package api

import (
	"github.com/gin-gonic/gin"

	"github.com/epetcare/notifier/internal/handlers"
)

func registerEventRoutes(api *gin.RouterGroup, handler *handlers.EventHandler) {
	api.POST("/events", handler.Record)

	clinic := api.Group("/clinic")
	{
		clinic.POST("/appointments", handler.CreateAppointment)
		clinic.POST("/appointments/:id/cancel", handler.CancelAppointment)
		clinic.POST("/appointments/:id/status", handler.UpdateAppointmentStatus)
		clinic.POST("/records", handler.AddMedicalRecord)
		clinic.POST("/prescriptions", handler.IssuePrescription)
	}
}
