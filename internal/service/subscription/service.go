package subscription

import (
	"fmt"

	"github.com/ignite/subscriptions/internal/domain"
	"github.com/ignite/subscriptions/internal/metrics"
	"github.com/ignite/subscriptions/internal/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/ignite/subscriptions/internal/service/subscription"

// Service implements the subscription lifecycle. It is safe for concurrent
// use; correctness across instances relies on the Store's row locks.
type Service struct {
	store     Store
	publisher Publisher
	log       *logger.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	newToken  func() string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger. The default discards output.
func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTokenGenerator replaces the confirmation token source.
func WithTokenGenerator(fn func() string) Option {
	return func(s *Service) { s.newToken = fn }
}

// NewService creates a subscription service backed by store and publisher.
func NewService(store Store, publisher Publisher, opts ...Option) *Service {
	s := &Service{
		store:     store,
		publisher: publisher,
		log:       logger.Nop(),
		tracer:    otel.Tracer(tracerName),
		newToken:  domain.NewSubscriptionToken,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) storageError(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, op)
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
