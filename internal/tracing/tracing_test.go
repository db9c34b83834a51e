package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestSetup_NoEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{ServiceName: "commerce-service"})
	require.NoError(t, err)

	assert.NoError(t, shutdown(context.Background()))
	assert.Contains(t, otel.GetTextMapPropagator().Fields(), "traceparent")
}

func TestSetup_WithEndpoint(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	// the exporter connects lazily, so no collector is needed here
	shutdown, err := Setup(context.Background(), Config{
		Endpoint:    "localhost:4318",
		ServiceName: "commerce-service",
		Version:     "test",
		Env:         "dev",
	})
	require.NoError(t, err)

	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}
