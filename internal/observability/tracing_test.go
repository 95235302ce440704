package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetupTracingWithoutExporter(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), "biz-manager-test", "")
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "startup-check")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.NoError(t, shutdown(context.Background()))
}
