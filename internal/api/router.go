package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ignite/subscriptions/internal/domain"
	"github.com/ignite/subscriptions/internal/pkg/httputil"
	"github.com/ignite/subscriptions/internal/pkg/logger"
	"github.com/ignite/subscriptions/internal/service/subscription"
)

// Subscriptions is the part of the subscription service the API calls.
type Subscriptions interface {
	Register(ctx context.Context, sub domain.NewSubscriber) (subscription.RegisterOutcome, error)
	Confirm(ctx context.Context, token string) (subscription.ConfirmOutcome, error)
}

// Deps are the collaborators NewRouter wires into handlers.
type Deps struct {
	Subscriptions Subscriptions
	Health        *HealthChecker
	// Metrics serves /metrics when non-nil.
	Metrics        http.Handler
	Log            *logger.Logger
	AllowedOrigins []string
}

// NewRouter builds the HTTP router.
func NewRouter(d Deps) *chi.Mux {
	log := d.Log
	if log == nil {
		log = logger.Nop()
	}
	rs := httputil.NewResponder(log)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(tracing)

	// The subscription form may be hosted on another origin.
	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	health := d.Health
	if health == nil {
		health = NewHealthChecker(nil, log)
	}
	r.Get("/health_check", health.HandleHealth)

	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	h := &subscriptionHandlers{svc: d.Subscriptions, rs: rs, log: log}
	r.Post("/subscriptions", h.register)
	r.Get("/subscriptions/confirm", h.confirm)

	return r
}
