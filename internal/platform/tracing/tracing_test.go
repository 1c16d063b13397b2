package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relawan/internal/platform/config"
)

func TestNewProvider(t *testing.T) {
	t.Run("disabled returns a no-op tracer", func(t *testing.T) {
		p, err := NewProvider(config.Tracing{Enabled: false})
		require.NoError(t, err)

		_, span := p.Tracer().Start(context.Background(), "noop")
		assert.False(t, span.SpanContext().IsValid())
		span.End()
		assert.NoError(t, p.Shutdown(context.Background()))
	})

	t.Run("enabled without exporter still records spans", func(t *testing.T) {
		p, err := NewProvider(config.Tracing{Enabled: true, Exporter: "none", ServiceName: "test"})
		require.NoError(t, err)

		_, span := p.Tracer().Start(context.Background(), "registration.submit")
		assert.True(t, span.SpanContext().IsValid())
		span.End()
		assert.NoError(t, p.Shutdown(context.Background()))
	})

	t.Run("unknown exporter rejected", func(t *testing.T) {
		_, err := NewProvider(config.Tracing{Enabled: true, Exporter: "zipkin"})
		assert.ErrorContains(t, err, "unsupported exporter type")
	})
}
