package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func TestServiceResource_DescribesService(t *testing.T) {
	res, err := serviceResource(context.Background(), "engram", "0.1.0")
	require.NoError(t, err)

	attrs := res.Attributes()
	assert.Contains(t, attrs, semconv.ServiceName("engram"))
	assert.Contains(t, attrs, semconv.ServiceVersion("0.1.0"))
	assert.Contains(t, attrs, semconv.ServiceNamespace("engram"))
}

func TestStartSpan_MirrorsTraceID(t *testing.T) {
	require.NoError(t, InitOpenTelemetry("engram", "0.1.0"))

	ctx, span := StartSpan(context.Background(), "engram.test", "test.op")
	defer span.End()

	assert.NotEmpty(t, GetTraceID(ctx))
}

func TestStartSpan_KeepsExistingTraceID(t *testing.T) {
	ctx := WithTraceID(context.Background(), "preset")
	ctx, span := StartSpan(ctx, "engram.test", "test.op")
	defer span.End()

	assert.Equal(t, "preset", GetTraceID(ctx))
}

// Runs last in this file: shutting the provider down turns later spans into
// no-ops.
func TestInitOpenTelemetry_IdempotentAndShutdown(t *testing.T) {
	require.NoError(t, InitOpenTelemetry("engram", "0.1.0"))
	require.NoError(t, InitOpenTelemetry("engram", "0.1.0"))

	require.NoError(t, ShutdownOpenTelemetry(context.Background()))
}
