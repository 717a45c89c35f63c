package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInit_DiscardsWithoutEndpoint(t *testing.T) {
	t.Setenv(EndpointEnv, "")
	prev := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		otel.SetTextMapPropagator(prevProp)
	})

	shutdown, err := Init(context.Background(), "arcade-test", "v0.0.0", "")
	require.NoError(t, err)

	_, span := Tracer("telemetry-test").Start(context.Background(), "probe")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	assert.ElementsMatch(t,
		[]string{"traceparent", "baggage"},
		otel.GetTextMapPropagator().Fields())
	require.NoError(t, shutdown(context.Background()))
}

func TestInit_OTLPEndpoint(t *testing.T) {
	prev := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		otel.SetTextMapPropagator(prevProp)
	})

	// The exporter connects lazily, so an unreachable collector is fine here.
	shutdown, err := Init(context.Background(), "arcade-test", "v0.0.0", "http://127.0.0.1:4318")
	require.NoError(t, err)
	assert.NotNil(t, shutdown)
}
