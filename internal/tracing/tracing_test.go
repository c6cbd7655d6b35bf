package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetup_Disabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	fields := otel.GetTextMapPropagator().Fields()
	assert.Contains(t, fields, "traceparent")
}

func TestSetup_EnabledShutsDown(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{
		Enabled:    true,
		Endpoint:   "127.0.0.1:4318",
		Insecure:   true,
		SampleRate: 0.5,
		Headers:    map[string]string{"x-team": "chat"},
	})
	require.NoError(t, err)

	// Nothing was recorded, so shutdown has no spans to export.
	assert.NoError(t, shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	assert.Equal(t, "AlwaysOnSampler", Sampler(1).Description())
	assert.Equal(t, "AlwaysOffSampler", Sampler(0).Description())
	assert.Contains(t, Sampler(0.25).Description(), "TraceIDRatioBased")
}
