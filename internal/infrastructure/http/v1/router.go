// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"certflow/internal/domain/fulfillment"
	"certflow/internal/domain/metastore"
	"certflow/internal/domain/orders"
	"certflow/internal/domain/permissions"
	"certflow/internal/infrastructure/http/v1/handlers"
	"certflow/internal/infrastructure/http/v1/middleware"
	"certflow/internal/infrastructure/storage/postgres"
	"certflow/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	Pool *postgres.Pool

	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	Fulfillment *fulfillment.Service
	Orders      orders.Source
	Metadata    metastore.Store
	Permissions permissions.Table

	// DownloadBaseURL prefixes archive file names in the downloads listing.
	DownloadBaseURL string
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth)
	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	fulfillHandler := handlers.NewFulfillmentHandler(cfg.Fulfillment, cfg.Metadata, cfg.Permissions)
	downloadsHandler := handlers.NewDownloadsHandler(cfg.Orders, cfg.Metadata, cfg.DownloadBaseURL)

	// API v1 (JWT bearer)
	apiV1 := router.Group("/api/v1")
	apiV1.Use(middleware.Auth(cfg.JWTValidator))
	{
		ordersGroup := apiV1.Group("/orders")
		{
			// Platform webhook: runs the pipeline after payment.
			ordersGroup.POST("/:id/fulfill", fulfillHandler.Fulfill)

			// Admin view of recorded numbers and grants.
			ordersGroup.GET("/:id/certificates", middleware.AdminOnly(), fulfillHandler.Certificates)
		}

		apiV1.GET("/accounts/:userID/downloads", downloadsHandler.List)
	}

	return router
}
