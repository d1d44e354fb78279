package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ignite/subscriptions/internal/app"
	"github.com/ignite/subscriptions/internal/config"
	"github.com/ignite/subscriptions/internal/observability"
	"github.com/ignite/subscriptions/internal/pkg/logger"
)

func main() {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	lg, err := logger.New(logger.Options{Mode: cfg.Log.Mode, Level: cfg.Log.Level, RedactPII: cfg.Log.RedactPII})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer lg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(cfg.Tracing, "worker", lg)
	if err != nil {
		lg.Error("tracing init failed", "error", err.Error())
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	a, err := app.New(ctx, cfg, lg)
	if err != nil {
		lg.Error("startup failed", "error", err.Error())
		os.Exit(1)
	}
	defer a.Close()

	w, err := a.DeliveryWorker(ctx)
	if err != nil {
		lg.Error("delivery worker init failed", "error", err.Error())
		os.Exit(1)
	}

	lg.Info("delivery worker running",
		"stream", cfg.SubscriptionCreatedSubject(),
		"group", cfg.Events.SubscriptionCreatedGroup)

	// Blocks until SIGINT or SIGTERM.
	a.Supervisor().Run(ctx, "delivery-worker", w.Start)

	lg.Info("worker stopped")
}
