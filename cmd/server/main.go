// Package main is the entry point for the certflow API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"certflow/internal/core/category"
	"certflow/internal/domain/allocator"
	"certflow/internal/domain/archive"
	"certflow/internal/domain/auth"
	"certflow/internal/domain/catalog"
	"certflow/internal/domain/fulfillment"
	v1 "certflow/internal/infrastructure/http/v1"
	"certflow/internal/infrastructure/storage/postgres"
	"certflow/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	log.Info("starting certflow server")

	// --- Database ---
	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(mustEnv("DATABASE_URL")))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txManager := postgres.NewTxManager(pool)

	// --- Repositories ---
	counterStore := postgres.NewCounterStore(txManager)
	certFiles := postgres.NewCertFileRepository(txManager)
	orderRepo := postgres.NewOrderRepository(txManager)
	metaStore := postgres.NewMetadataStore(txManager)
	permRepo := postgres.NewPermissionRepository(txManager)
	outbox := postgres.NewOutboxPublisher(txManager)

	// --- Variation map ---
	// JSON object of variation UUID -> category, e.g. {"<uuid>": "5-year"}.
	variations, err := category.ParseVariationMap(mustEnv("VARIATION_CATEGORY_MAP"))
	if err != nil {
		log.Fatalw("invalid VARIATION_CATEGORY_MAP", "error", err)
	}
	log.Infow("variation map loaded", "entries", len(variations))

	// --- Fulfillment pipeline ---
	destDir := mustEnv("ARCHIVE_DEST_DIR")
	baseURL := mustEnv("ARCHIVE_BASE_URL")

	zipBuilder, err := archive.NewZipBuilder(destDir)
	if err != nil {
		log.Fatalw("archive destination unusable", "dir", destDir, "error", err)
	}

	fulfillCfg := fulfillment.DefaultConfig(destDir, baseURL)
	if d := getEnvDuration("ARCHIVE_BUILD_TIMEOUT", 0); d > 0 {
		fulfillCfg.BuildTimeout = d
	}

	fulfillService := fulfillment.NewService(
		orderRepo,
		allocator.New(counterStore),
		catalog.NewResolver(certFiles),
		zipBuilder,
		metaStore,
		permRepo,
		variations,
		outbox,
		fulfillCfg,
	).WithTxManager(txManager)

	// --- JWT ---
	jwtService := auth.NewJWTService(auth.DefaultJWTConfig(mustEnv("WEBHOOK_JWT_SECRET")))

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Pool:            pool,
		Logger:          log,
		JWTValidator:    jwtService,
		Fulfillment:     fulfillService,
		Orders:          orderRepo,
		Metadata:        metaStore,
		Permissions:     permRepo,
		DownloadBaseURL: baseURL,
	})

	// --- HTTP Server ---
	port := getEnv("APP_PORT", "8080")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
