// Package app assembles the runtime dependencies shared by the server and
// worker binaries.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignite/subscriptions/internal/config"
	"github.com/ignite/subscriptions/internal/events"
	"github.com/ignite/subscriptions/internal/mailer"
	"github.com/ignite/subscriptions/internal/metrics"
	"github.com/ignite/subscriptions/internal/pkg/logger"
	"github.com/ignite/subscriptions/internal/repository/memory"
	"github.com/ignite/subscriptions/internal/repository/postgres"
	"github.com/ignite/subscriptions/internal/service/subscription"
	"github.com/ignite/subscriptions/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// App holds the long-lived collaborators built from configuration.
type App struct {
	Config        *config.Config
	Log           *logger.Logger
	Registry      *prometheus.Registry
	Metrics       *metrics.Metrics
	DB            *sql.DB // nil with the memory store
	Store         subscription.Store
	Redis         *redis.Client
	Publisher     *events.Publisher
	Subscriptions *subscription.Service
}

// New connects to storage and Redis and builds the subscription service.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.New(a.Registry)

	switch cfg.Storage.Driver {
	case "memory":
		a.Store = memory.New()
		log.Warn("using in-memory subscription store; data is lost on restart")
	default:
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.DB = db
		a.Store = postgres.NewSubscriptionStore(db)
	}

	a.Redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	a.Publisher = events.NewPublisher(a.Redis, cfg.SubscriptionCreatedSubject(),
		events.WithMaxLen(cfg.Events.MaxLen))

	a.Subscriptions = subscription.NewService(a.Store, a.Publisher,
		subscription.WithLogger(log),
		subscription.WithMetrics(a.Metrics),
	)
	return a, nil
}

// DeliveryWorker builds the confirmation email worker as one member of the
// configured consumer group.
func (a *App) DeliveryWorker(ctx context.Context) (*worker.DeliveryWorker, error) {
	m, err := mailer.New(ctx, a.Config.Email)
	if err != nil {
		return nil, err
	}
	composer, err := mailer.NewComposer(a.Config.ApplicationBaseURL(), a.Config.Email.Subject, a.Config.Email.TextTemplate)
	if err != nil {
		return nil, fmt.Errorf("confirmation template: %w", err)
	}
	consumer := events.NewConsumer(a.Redis, events.ConsumerOptions{
		Stream:    a.Config.SubscriptionCreatedSubject(),
		Group:     a.Config.Events.SubscriptionCreatedGroup,
		Consumer:  events.DefaultConsumerName(),
		Block:     a.Config.Events.Block(),
		ClaimIdle: a.Config.Events.ClaimIdle(),
	}, a.Log)
	if err := consumer.EnsureGroup(ctx); err != nil {
		return nil, err
	}
	return worker.NewDeliveryWorker(consumer, m, composer, a.Subscriptions, a.Log, a.Metrics), nil
}

// Supervisor builds a task supervisor from the worker settings.
func (a *App) Supervisor() *worker.Supervisor {
	return worker.NewSupervisor(a.Config.Worker.RestartBackoff(), a.Config.Worker.MaxRestartBackoff(), a.Log, a.Metrics)
}

// PingRedis reports whether the event channel is reachable.
func (a *App) PingRedis(ctx context.Context) error {
	return a.Redis.Ping(ctx).Err()
}

// Close releases connections.
func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
