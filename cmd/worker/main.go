package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/noah-isme/qbank-api/internal/app"
	"github.com/noah-isme/qbank-api/pkg/config"
	"github.com/noah-isme/qbank-api/pkg/logger"
)

// The worker consumes generation jobs pushed to Redis by the API when
// DISPATCH_MODE=redis.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg, "worker")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := app.New(ctx, cfg, logr, app.Options{RequireRedis: true})
	if err != nil {
		logr.Sugar().Fatalw("failed to build worker", "error", err)
	}
	defer container.Close()

	logr.Sugar().Infow("worker starting", "queue_key", cfg.Generation.QueueKey, "workers", cfg.Generation.Workers)
	if err := container.ConsumeRedis(ctx); err != nil {
		logr.Sugar().Errorw("worker stopped", "error", err)
	}
}
