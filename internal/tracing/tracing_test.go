package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "forecast"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestStartSpan_NoopBeforeInit(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test")
	defer span.End()
	assert.Equal(t, "", TraceIDFromContext(ctx))
}

func TestIsGRPC(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "")
	assert.True(t, isGRPC("grpc"))
	assert.True(t, isGRPC("GRPC"))
	assert.False(t, isGRPC("http"))
	assert.False(t, isGRPC(""))

	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	assert.True(t, isGRPC(""))
}

func TestSampler(t *testing.T) {
	assert.Equal(t, "AlwaysOnSampler", sampler(1).Description())
	assert.Equal(t, "AlwaysOffSampler", sampler(0).Description())
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}
