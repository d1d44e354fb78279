package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/ignite/subscriptions/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitTracing_Disabled(t *testing.T) {
	before := otel.GetTracerProvider()

	shutdown, err := InitTracing(config.TracingConfig{}, "server", nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.Equal(t, before, otel.GetTracerProvider())
}

func TestInitTracing_ExportsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	shutdown, err := initTracing(config.TracingConfig{Enabled: true, ServiceName: "subscriptions"}, "server", &buf, nil)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "register")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), `"Name":"register"`)
	assert.Contains(t, buf.String(), "subscriptions")
}

func TestSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), sampler(0).Description())
	assert.Equal(t, sdktrace.AlwaysSample().Description(), sampler(1).Description())
	assert.Equal(t, sdktrace.TraceIDRatioBased(0.25).Description(), sampler(0.25).Description())
}
