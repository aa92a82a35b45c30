package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestNoopMetrics_ImplementsInterface(t *testing.T) {
	var _ MetricsRecorder = NoopMetrics{}
}

func TestNoopMetrics_DoesNotPanic(t *testing.T) {
	m := NoopMetrics{}
	ctx := context.Background()

	t.Run("RecordEventsDropped", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.RecordEventsDropped(ctx, 100)
			m.RecordEventsDropped(nil, 0)
		})
	})

	t.Run("RecordBatch", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.RecordBatch(ctx, 50, 10*time.Millisecond, true)
			m.RecordBatch(ctx, 0, 0, false)
		})
	})

	t.Run("RecordMigrationOrigin", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.RecordMigrationOrigin(ctx, "old", time.Millisecond, nil)
			m.RecordMigrationOrigin(ctx, "", 0, errors.New("test"))
		})
	})
}

func TestNoopSpanManager_ImplementsInterface(t *testing.T) {
	var _ SpanManager = NoopSpanManager{}
}

func TestNoopSpanManager_DoesNotPanic(t *testing.T) {
	m := NoopSpanManager{}
	ctx := context.Background()

	t.Run("StartMigrationSpan returns context unchanged", func(t *testing.T) {
		outCtx, span := m.StartMigrationSpan(ctx, "read", "key", "off")
		assert.Equal(t, ctx, outCtx)
		assert.NotNil(t, span)
	})

	t.Run("StartOriginSpan returns context unchanged", func(t *testing.T) {
		outCtx, span := m.StartOriginSpan(ctx, "new")
		assert.Equal(t, ctx, outCtx)
		assert.NotNil(t, span)
	})

	t.Run("EndSpanWithError", func(t *testing.T) {
		assert.NotPanics(t, func() {
			_, span := m.StartMigrationSpan(ctx, "read", "key", "off")
			m.EndSpanWithError(span, errors.New("test"))
			m.EndSpanWithError(nil, nil)
		})
	})

	t.Run("AddSpanEvent", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.AddSpanEvent(ctx, "event", attribute.String("k", "v"))
		})
	})
}
