package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records flagpipe metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordEventsDropped records events dropped on queue or buffer overflow.
	RecordEventsDropped(ctx context.Context, count int64)

	// RecordBatch records one delivery attempt of an event batch.
	RecordBatch(ctx context.Context, eventCount int, duration time.Duration, success bool)

	// RecordMigrationOrigin records one origin call of a migration operation.
	RecordMigrationOrigin(ctx context.Context, origin string, duration time.Duration, err error)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	eventsDropped metric.Int64Counter
	batches       metric.Int64Counter
	batchLatency  metric.Float64Histogram
	batchSize     metric.Int64Histogram
	originCalls   metric.Int64Counter
	originLatency metric.Float64Histogram
	originErrors  metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("flagpipe")

	eventsDropped, err := meter.Int64Counter("flagpipe.events.dropped",
		metric.WithDescription("Number of events dropped on overflow"),
	)
	if err != nil {
		return nil, err
	}

	batches, err := meter.Int64Counter("flagpipe.batches",
		metric.WithDescription("Number of event batch delivery attempts"),
	)
	if err != nil {
		return nil, err
	}

	batchLatency, err := meter.Float64Histogram("flagpipe.batch.latency_ms",
		metric.WithDescription("Event batch delivery latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	batchSize, err := meter.Int64Histogram("flagpipe.batch.size",
		metric.WithDescription("Number of events per delivered batch"),
	)
	if err != nil {
		return nil, err
	}

	originCalls, err := meter.Int64Counter("flagpipe.migration.origin.calls",
		metric.WithDescription("Number of migration origin executions"),
	)
	if err != nil {
		return nil, err
	}

	originLatency, err := meter.Float64Histogram("flagpipe.migration.origin.latency_ms",
		metric.WithDescription("Migration origin execution latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	originErrors, err := meter.Int64Counter("flagpipe.migration.origin.errors",
		metric.WithDescription("Number of migration origin failures"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		eventsDropped: eventsDropped,
		batches:       batches,
		batchLatency:  batchLatency,
		batchSize:     batchSize,
		originCalls:   originCalls,
		originLatency: originLatency,
		originErrors:  originErrors,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordEventsDropped records dropped events.
func (m *otelMetrics) RecordEventsDropped(ctx context.Context, count int64) {
	m.eventsDropped.Add(ctx, count)
}

// RecordBatch records a delivery attempt.
func (m *otelMetrics) RecordBatch(ctx context.Context, eventCount int, duration time.Duration, success bool) {
	attrs := []attribute.KeyValue{
		attribute.Bool("success", success),
	}
	m.batches.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.batchLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.batchSize.Record(ctx, int64(eventCount), metric.WithAttributes(attrs...))
}

// RecordMigrationOrigin records one origin execution.
func (m *otelMetrics) RecordMigrationOrigin(ctx context.Context, origin string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("origin", origin),
	}
	m.originCalls.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.originLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	if err != nil {
		m.originErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}
