// Package eval defines the evaluation collaborator the rest of flagpipe
// depends on.
//
// Rule evaluation itself is a black box to this module: an Evaluator takes a
// context and a flag key and returns a value, an optional variation index, a
// reason, and the flag version. StoreEvaluator is the default implementation,
// serving whatever result the local flag store currently holds.
package eval

import (
	"errors"
	"time"

	"github.com/randalmurphal/flagpipe/pkg/flagpipe/contexts"
	"github.com/randalmurphal/flagpipe/pkg/flagpipe/store"
)

// Reason values describe why an evaluation produced its result.
const (
	ReasonFallthrough  = "FALLTHROUGH"
	ReasonFlagNotFound = "FLAG_NOT_FOUND"
	ReasonError        = "ERROR"
)

// Detail is the full result of one flag evaluation.
type Detail struct {
	// Value is the evaluated flag value (the default on failure).
	Value any

	// VariationIndex identifies which variation was served, nil when the
	// default value was used.
	VariationIndex *int

	// Reason describes why this result was produced.
	Reason string

	// FlagVersion is the version of the flag, nil when the flag is unknown.
	FlagVersion *int

	// TrackEvents requests a full feature event for this evaluation.
	TrackEvents bool

	// DebugEventsUntil enables debug events while in the future.
	DebugEventsUntil *time.Time

	// SamplingRatio controls 1-in-N sampling of the raw event, nil meaning 1.
	SamplingRatio *int64

	// ExcludeFromSummaries removes this evaluation from summary counters.
	ExcludeFromSummaries bool
}

// IsDefault reports whether the default value was served.
func (d Detail) IsDefault() bool {
	return d.VariationIndex == nil
}

// Evaluator resolves a flag for a context.
type Evaluator interface {
	// Detail evaluates flagKey for evalContext, returning defaultValue with
	// a failure reason when the flag cannot be resolved.
	Detail(evalContext contexts.Context, flagKey string, defaultValue any) Detail
}

// StoreEvaluator evaluates flags from a local flag store.
type StoreEvaluator struct {
	store store.Store
}

// NewStoreEvaluator creates an evaluator backed by the given store.
func NewStoreEvaluator(s store.Store) *StoreEvaluator {
	return &StoreEvaluator{store: s}
}

// Detail implements Evaluator.
func (e *StoreEvaluator) Detail(evalContext contexts.Context, flagKey string, defaultValue any) Detail {
	if err := evalContext.Err(); err != nil {
		return Detail{Value: defaultValue, Reason: ReasonError}
	}

	flag, err := e.store.Get(flagKey)
	if err != nil {
		reason := ReasonError
		if errors.Is(err, store.ErrNotFound) {
			reason = ReasonFlagNotFound
		}
		return Detail{Value: defaultValue, Reason: reason}
	}

	reason := flag.Reason
	if reason == "" {
		reason = ReasonFallthrough
	}
	version := flag.Version
	return Detail{
		Value:                flag.Value,
		VariationIndex:       flag.VariationIndex,
		Reason:               reason,
		FlagVersion:          &version,
		TrackEvents:          flag.TrackEvents,
		DebugEventsUntil:     flag.DebugEventsUntil,
		SamplingRatio:        flag.SamplingRatio,
		ExcludeFromSummaries: flag.ExcludeFromSummaries,
	}
}
