package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/subwatch/subwatch/internal/app"
	iauth "github.com/subwatch/subwatch/internal/auth"
	"github.com/subwatch/subwatch/internal/handlers"
	"github.com/subwatch/subwatch/internal/middleware"
	"github.com/subwatch/subwatch/internal/services"
)

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config, delivery *services.DeliveryService) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if delivery == nil {
		return nil, fmt.Errorf("delivery service must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	// Public endpoints
	r.GET("/health", handlers.Health(db))
	if cfg.Monitoring.Prometheus.Enabled {
		r.GET(cfg.Monitoring.Prometheus.Endpoint, gin.WrapH(promhttp.Handler()))
	}

	pushHandler, err := handlers.NewPushHandler(db, cfg.Push.VAPIDPublicKey)
	if err != nil {
		return nil, err
	}
	r.GET("/api/push/public-key", pushHandler.PublicKey)

	// Authenticated routes
	api := r.Group("/api")
	api.Use(middleware.Auth(jwt))

	notificationHandler, err := handlers.NewNotificationHandler(db)
	if err != nil {
		return nil, err
	}
	notifications := api.Group("/notifications")
	{
		notifications.GET("", notificationHandler.List)
		notifications.GET("/unread-count", notificationHandler.UnreadCount)
		notifications.POST("/read-all", notificationHandler.MarkAllRead)
		notifications.POST("/:id/read", notificationHandler.MarkRead)
		notifications.DELETE("/read", notificationHandler.DeleteAllRead)
		notifications.DELETE("/:id", notificationHandler.Delete)
	}

	pushRoutes := api.Group("/push")
	{
		pushRoutes.POST("/subscribe", pushHandler.Subscribe)
		pushRoutes.POST("/unsubscribe", pushHandler.Unsubscribe)
	}

	preferenceHandler, err := handlers.NewPreferenceHandler(db)
	if err != nil {
		return nil, err
	}
	preferences := api.Group("/preferences")
	{
		preferences.GET("", preferenceHandler.Get)
		preferences.PUT("", preferenceHandler.Set)
	}

	// Admin routes
	adminHandler, err := handlers.NewAdminHandler(db, delivery)
	if err != nil {
		return nil, err
	}
	admin := api.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	{
		admin.POST("/notifications/broadcast", adminHandler.Broadcast)
		admin.GET("/notifications/stats", adminHandler.Stats)
	}

	return r, nil
}
