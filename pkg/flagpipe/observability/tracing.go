package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the flagpipe tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("flagpipe")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartMigrationSpan starts a span for a whole migration operation.
	// Returns the context with span and the span itself.
	StartMigrationSpan(ctx context.Context, operation, flagKey, stage string) (context.Context, trace.Span)

	// StartOriginSpan starts a span for one origin call.
	// The origin span should be a child of the migration span.
	StartOriginSpan(ctx context.Context, origin string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartMigrationSpan starts a span for a whole migration operation.
func (m *otelSpanManager) StartMigrationSpan(ctx context.Context, operation, flagKey, stage string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "flagpipe.migration."+operation,
		trace.WithAttributes(
			attribute.String("flag.key", flagKey),
			attribute.String("migration.stage", stage),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartOriginSpan starts a span for one origin call.
func (m *otelSpanManager) StartOriginSpan(ctx context.Context, origin string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "flagpipe.migration.origin."+origin,
		trace.WithAttributes(
			attribute.String("migration.origin", origin),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
