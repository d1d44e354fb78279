package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ignite/subscriptions/internal/api"
	"github.com/ignite/subscriptions/internal/app"
	"github.com/ignite/subscriptions/internal/config"
	"github.com/ignite/subscriptions/internal/observability"
	"github.com/ignite/subscriptions/internal/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// checkPortAvailable verifies that the target address is not already in use.
func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("address %s is already in use: %w", addr, err)
	}
	return ln.Close()
}

func main() {
	cfg, err := config.LoadFromEnv(configPath())
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

	if err := run(cfg, lg); err != nil {
		lg.Error("server exited with error", "error", err.Error())
		lg.Sync()
		os.Exit(1)
	}
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config/config.yaml"
}

func run(cfg *config.Config, lg *logger.Logger) error {
	addr := cfg.Application.Addr()
	if err := checkPortAvailable(addr); err != nil {
		return fmt.Errorf("pre-flight check: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(cfg.Tracing, "server", lg)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			lg.Warn("tracing shutdown failed", "error", err.Error())
		}
	}()

	a, err := app.New(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer a.Close()

	var wg sync.WaitGroup
	if cfg.Worker.Embedded {
		w, err := a.DeliveryWorker(ctx)
		if err != nil {
			return fmt.Errorf("delivery worker: %w", err)
		}
		sup := a.Supervisor()
		wg.Add(1)
		go func() {
			defer wg.Done()
			sup.Run(ctx, "delivery-worker", w.Start)
		}()
		lg.Info("embedded delivery worker started", "group", cfg.Events.SubscriptionCreatedGroup)
	}

	router := api.NewRouter(api.Deps{
		Subscriptions: a.Subscriptions,
		Health: api.NewHealthChecker(map[string]api.CheckFunc{
			"database": a.Store.Ping,
			"redis":    a.PingRedis,
		}, lg),
		Metrics: promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}),
		Log:     lg,
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("starting server", "addr", addr, "base_url", cfg.ApplicationBaseURL(), "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			stop()
			wg.Wait()
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Warn("server shutdown error", "error", err.Error())
	}
	wg.Wait()

	lg.Info("server stopped")
	return nil
}
