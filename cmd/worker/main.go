// Package main is the entry point for the certflow background worker.
// It drains the fulfillment outbox and hands archive attachments to the
// mail pipeline.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"certflow/internal/domain/mailer"
	"certflow/internal/domain/orders"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting certflow worker")

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(mustEnv("DATABASE_URL")))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool)
	orderRepo := postgres.NewOrderRepository(txManager)
	metaStore := postgres.NewMetadataStore(txManager)

	handler := &fulfilledHandler{
		orders:      orderRepo,
		attachments: mailer.NewAttachmentProvider(metaStore, mustEnv("ARCHIVE_DEST_DIR")),
		dispatcher:  mailer.LogDispatcher{},
		log:         log.WithComponent("worker"),
	}

	relay := postgres.NewOutboxRelay(pool.Unwrap(), getEnvInt("OUTBOX_BATCH_SIZE", 50), handler)
	interval := getEnvDuration("WORKER_POLL_INTERVAL", 10*time.Second)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runRelay(ctx, relay, interval, log)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

func runRelay(ctx context.Context, relay *postgres.OutboxRelay, interval time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			processed, err := relay.ProcessBatch(ctx)
			if err != nil {
				log.Warnw("outbox batch failed", "error", err)
				continue
			}
			if processed > 0 {
				log.Infow("outbox batch processed", "messages", processed)
			}
		}
	}
}

// fulfilledHandler turns OrderFulfilled messages into customer email with
// the certificate archive attached.
type fulfilledHandler struct {
	orders      orders.Source
	attachments *mailer.AttachmentProvider
	dispatcher  mailer.Dispatcher
	log         *logger.Logger
}

func (h *fulfilledHandler) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	if msg.EventType != postgres.EventOrderFulfilled {
		h.log.Warnw("skipping unknown event type", "event_type", msg.EventType)
		return nil
	}

	var payload postgres.OrderFulfilledPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	order, err := h.orders.GetByID(ctx, payload.OrderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", payload.OrderID, err)
	}

	attachments, err := h.attachments.Attachments(ctx, mailer.TypeCompletedOrder, order)
	if err != nil {
		return fmt.Errorf("resolve attachments: %w", err)
	}

	return h.dispatcher.Send(ctx, mailer.Message{
		Type:        mailer.TypeCompletedOrder,
		OrderID:     order.ID,
		Recipient:   order.Email,
		Attachments: attachments,
	})
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

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
