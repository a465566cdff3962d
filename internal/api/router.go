package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/epetcare/notifier/internal/handlers"
	"github.com/epetcare/notifier/internal/middleware"
	"github.com/epetcare/notifier/internal/services"
	"github.com/epetcare/notifier/internal/sweep"
)

// Dependencies bundles the services the router exposes over HTTP.
type Dependencies struct {
	Notifications *services.NotificationService
	Recorder      *services.EventRecorder
	PasswordReset *services.PasswordResetService
	Sweeper       *sweep.Sweeper
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.Notifications == nil {
		return nil, fmt.Errorf("notification service must be provided")
	}
	if deps.Recorder == nil {
		return nil, fmt.Errorf("event recorder must be provided")
	}
	if deps.PasswordReset == nil {
		return nil, fmt.Errorf("password reset service must be provided")
	}
	if deps.Sweeper == nil {
		return nil, fmt.Errorf("sweeper must be provided")
	}

	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	r.GET("/health", handlers.Health())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	notificationHandler, err := handlers.NewNotificationHandler(deps.Notifications, deps.Sweeper)
	if err != nil {
		return nil, err
	}
	registerNotificationRoutes(api, notificationHandler)

	eventHandler, err := handlers.NewEventHandler(deps.Recorder)
	if err != nil {
		return nil, err
	}
	registerEventRoutes(api, eventHandler)

	resetHandler, err := handlers.NewPasswordResetHandler(deps.PasswordReset)
	if err != nil {
		return nil, err
	}
	registerPasswordResetRoutes(api, resetHandler)

	sweepHandler, err := handlers.NewSweepHandler(deps.Sweeper)
	if err != nil {
		return nil, err
	}
	registerSweepRoutes(api, sweepHandler)

	return r, nil
}
