// Package observability sets up OpenTelemetry tracing for the server and
// worker binaries.
package observability

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ignite/subscriptions/internal/config"
	"github.com/ignite/subscriptions/internal/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// InitTracing installs a global tracer provider that exports spans to stdout.
// When tracing is disabled the global no-op provider is left in place and the
// returned shutdown does nothing.
func InitTracing(cfg config.TracingConfig, component string, log *logger.Logger) (ShutdownFunc, error) {
	return initTracing(cfg, component, os.Stdout, log)
}

func initTracing(cfg config.TracingConfig, component string, w io.Writer, log *logger.Logger) (ShutdownFunc, error) {
	if log == nil {
		log = logger.Nop()
	}
	if !cfg.Enabled {
		return noopShutdown, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return noopShutdown, fmt.Errorf("create stdout exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.component", component),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler(cfg.SampleRatio))),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info("tracing initialized", "service", cfg.ServiceName, "component", component)
	return tp.Shutdown, nil
}

func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.TraceIDRatioBased(ratio)
}
