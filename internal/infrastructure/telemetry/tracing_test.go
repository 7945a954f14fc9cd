package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/orris-inc/paygate/internal/shared/config"
	"github.com/orris-inc/paygate/internal/shared/logger"
)

func TestInit_DisabledInstallsPropagatorsOnly(t *testing.T) {
	shutdown, err := Init(context.Background(), config.TelemetryConfig{}, "test", logger.NewNop())
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	fields := otel.GetTextMapPropagator().Fields()
	assert.Contains(t, fields, "traceparent")
	assert.Contains(t, fields, "baggage")
}

func TestInit_EnabledReturnsShutdown(t *testing.T) {
	shutdown, err := Init(context.Background(), config.TelemetryConfig{
		TracingEnabled: true,
		OTLPEndpoint:   "127.0.0.1:4318",
		Insecure:       true,
		SampleRatio:    0.5,
	}, "test", logger.NewNop())
	require.NoError(t, err)

	// Nothing was exported, so shutdown must not need the collector.
	assert.NoError(t, shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(0).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}
