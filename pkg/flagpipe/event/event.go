// Package event implements the asynchronous analytics pipeline of flagpipe.
//
// Producers hand InputEvents to a processor whose single background worker
// aggregates them: feature requests are rolled up into per-flag summary
// counters, first-seen contexts produce index events, and raw events are
// buffered up to a fixed capacity. On a timer (or an explicit flush) the
// buffered batch is redacted, serialized, and delivered to the events
// endpoint. Producers are never blocked: when the pipeline cannot keep up,
// events are dropped and counted instead.
package event

import (
	"time"

	"github.com/randalmurphal/flagpipe/pkg/flagpipe/contexts"
	"github.com/randalmurphal/flagpipe/pkg/flagpipe/eval"
)

// Origin names one side of a migration.
type Origin string

// Migration origins.
const (
	OriginOld Origin = "old"
	OriginNew Origin = "new"
)

// BaseEvent carries the fields shared by all input events.
type BaseEvent struct {
	// CreationDate is when the event was recorded.
	CreationDate time.Time

	// Context is the evaluation context the event refers to.
	Context contexts.Context
}

// InputEvent is the closed set of events producers can submit.
// Events are immutable once created and consumed exactly once.
type InputEvent interface {
	base() BaseEvent
}

// FeatureRequestEvent records one flag evaluation.
type FeatureRequestEvent struct {
	BaseEvent

	// Key is the flag key.
	Key string

	// Value is the evaluated value served to the caller.
	Value any

	// Variation is the served variation index, nil when the default applied.
	Variation *int

	// Default is the caller-supplied default value.
	Default any

	// Version is the flag version, nil when the flag is unknown.
	Version *int

	// Reason describes why this value was served (may be empty).
	Reason string

	// TrackEvents requests a full feature event, not just a summary count.
	TrackEvents bool

	// DebugEventsUntil enables a debug copy of the event while in the future.
	DebugEventsUntil *time.Time

	// SamplingRatio is the 1-in-N sampling ratio for the raw event, nil meaning 1.
	SamplingRatio *int64

	// ExcludeFromSummaries removes this evaluation from summary counters.
	ExcludeFromSummaries bool
}

// IdentifyEvent announces a context to the collector.
type IdentifyEvent struct {
	BaseEvent
}

// CustomEvent records an application-defined metric occurrence.
type CustomEvent struct {
	BaseEvent

	// Key identifies the metric.
	Key string

	// Data is an optional JSON-serializable payload.
	Data any

	// MetricValue is an optional numeric value for experimentation.
	MetricValue *float64
}

// MigrationOpEvent reports one executed migration operation.
// It is built by the migration package and flows through the pipeline like
// any other event.
type MigrationOpEvent struct {
	BaseEvent

	// Operation is "read" or "write".
	Operation string

	// Key is the migration flag key.
	Key string

	// DefaultStage is the stage used when the flag could not be resolved.
	DefaultStage string

	// Evaluation describes how the stage was chosen.
	Evaluation MigrationEvaluation

	// Invoked lists the origins that were executed.
	Invoked []Origin

	// Latency holds per-origin execution time, populated when latency
	// tracking is enabled.
	Latency map[Origin]time.Duration

	// Errors holds the origins whose call failed, populated when error
	// tracking is enabled.
	Errors map[Origin]bool

	// ConsistencyCheck is the comparator verdict; nil when no comparison ran.
	ConsistencyCheck *bool

	// ConsistencyCheckRatio is the 1-in-N sampling ratio the comparator ran
	// under, nil meaning 1.
	ConsistencyCheckRatio *int64

	// SamplingRatio is the 1-in-N sampling ratio for the event itself.
	SamplingRatio *int64
}

// MigrationEvaluation is the flag-resolution detail embedded in a migration
// operation event.
type MigrationEvaluation struct {
	// Value is the stage actually used.
	Value string

	// Default is the caller's default stage.
	Default string

	// Reason describes the evaluation outcome.
	Reason string

	// Variation is the served variation index, nil when defaulted.
	Variation *int

	// Version is the flag version, nil when unknown.
	Version *int
}

// NewBaseEvent stamps a base event with the current time.
func NewBaseEvent(evalContext contexts.Context) BaseEvent {
	return BaseEvent{CreationDate: time.Now(), Context: evalContext}
}

// NewFeatureRequestEvent builds a feature request event from an evaluation
// detail, carrying over the flag metadata that controls raw event emission.
func NewFeatureRequestEvent(evalContext contexts.Context, flagKey string, detail eval.Detail, defaultValue any) FeatureRequestEvent {
	return FeatureRequestEvent{
		BaseEvent:            NewBaseEvent(evalContext),
		Key:                  flagKey,
		Value:                detail.Value,
		Variation:            detail.VariationIndex,
		Default:              defaultValue,
		Version:              detail.FlagVersion,
		Reason:               detail.Reason,
		TrackEvents:          detail.TrackEvents,
		DebugEventsUntil:     detail.DebugEventsUntil,
		SamplingRatio:        detail.SamplingRatio,
		ExcludeFromSummaries: detail.ExcludeFromSummaries,
	}
}

func (e FeatureRequestEvent) base() BaseEvent { return e.BaseEvent }
func (e IdentifyEvent) base() BaseEvent       { return e.BaseEvent }
func (e CustomEvent) base() BaseEvent         { return e.BaseEvent }
func (e MigrationOpEvent) base() BaseEvent    { return e.BaseEvent }

// toMillis converts a time to the epoch-millisecond form used on the wire.
func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}
