package event

import (
	"testing"
	"time"

	"github.com/randalmurphal/flagpipe/pkg/flagpipe/contexts"
)

func intPtr(v int) *int         { return &v }
func int64Ptr(v int64) *int64   { return &v }
func boolPtr(v bool) *bool      { return &v }
func f64Ptr(v float64) *float64 { return &v }

func featureEvent(key string, variation, version *int, value, dflt any) FeatureRequestEvent {
	return FeatureRequestEvent{
		BaseEvent: BaseEvent{
			CreationDate: time.Now(),
			Context:      contexts.New("user-key"),
		},
		Key:       key,
		Value:     value,
		Variation: variation,
		Default:   dflt,
		Version:   version,
	}
}

func TestSummarizerCountsByVariationAndVersion(t *testing.T) {
	s := newSummarizer()

	s.accumulate(featureEvent("flag-a", intPtr(0), intPtr(3), true, false))
	s.accumulate(featureEvent("flag-a", intPtr(0), intPtr(3), true, false))
	s.accumulate(featureEvent("flag-a", intPtr(1), intPtr(3), false, false))
	s.accumulate(featureEvent("flag-b", intPtr(0), intPtr(1), "on", "off"))

	state, ok := s.snapshot()
	if !ok {
		t.Fatal("expected a non-empty snapshot")
	}
	if len(state.flags) != 2 {
		t.Fatalf("expected 2 flags, got %d", len(state.flags))
	}

	a := state.flags["flag-a"]
	if a == nil {
		t.Fatal("missing flag-a summary")
	}
	k0 := counterKey{variation: 0, hasVariation: true, version: 3, hasVersion: true}
	if got := a.counters[k0].count; got != 2 {
		t.Errorf("variation 0 count = %d, want 2", got)
	}
	k1 := counterKey{variation: 1, hasVariation: true, version: 3, hasVersion: true}
	if got := a.counters[k1].count; got != 1 {
		t.Errorf("variation 1 count = %d, want 1", got)
	}
}

func TestSummarizerUnknownFlag(t *testing.T) {
	s := newSummarizer()
	s.accumulate(featureEvent("missing", nil, nil, "fallback", "fallback"))

	state, ok := s.snapshot()
	if !ok {
		t.Fatal("expected a non-empty snapshot")
	}
	counter := state.flags["missing"].counters[counterKey{}]
	if counter == nil {
		t.Fatal("missing versionless counter")
	}
	if !counter.unknown {
		t.Error("expected unknown=true for an unversioned evaluation")
	}
	if counter.dflt != "fallback" {
		t.Errorf("default = %v, want fallback", counter.dflt)
	}
}

func TestSummarizerSnapshotResets(t *testing.T) {
	s := newSummarizer()
	s.accumulate(featureEvent("flag", intPtr(0), intPtr(1), 1, 0))

	if _, ok := s.snapshot(); !ok {
		t.Fatal("first snapshot should be non-empty")
	}
	if _, ok := s.snapshot(); ok {
		t.Fatal("second snapshot should be empty")
	}

	// New accumulation after a snapshot starts a fresh window.
	s.accumulate(featureEvent("flag", intPtr(0), intPtr(1), 1, 0))
	state, ok := s.snapshot()
	if !ok {
		t.Fatal("expected a fresh window")
	}
	k := counterKey{variation: 0, hasVariation: true, version: 1, hasVersion: true}
	if got := state.flags["flag"].counters[k].count; got != 1 {
		t.Errorf("count after reset = %d, want 1", got)
	}
}

func TestSummarizerTracksContextKinds(t *testing.T) {
	s := newSummarizer()
	user := contexts.New("u1")
	org := contexts.New("o1", contexts.WithKind("org"))
	multi := contexts.NewMulti(user, org)

	e := featureEvent("flag", intPtr(0), intPtr(1), true, false)
	e.Context = multi
	s.accumulate(e)

	state, _ := s.snapshot()
	kinds := state.flags["flag"].contextKinds
	if !kinds["user"] || !kinds["org"] {
		t.Errorf("context kinds = %v, want user and org", kinds)
	}
}

func TestSummarizerWindowDates(t *testing.T) {
	s := newSummarizer()
	early := time.Now().Add(-time.Minute)
	late := time.Now()

	e1 := featureEvent("flag", intPtr(0), intPtr(1), true, false)
	e1.CreationDate = late
	e2 := featureEvent("flag", intPtr(0), intPtr(1), true, false)
	e2.CreationDate = early
	s.accumulate(e1)
	s.accumulate(e2)

	state, _ := s.snapshot()
	if !state.startDate.Equal(early) {
		t.Errorf("startDate = %v, want %v", state.startDate, early)
	}
	if !state.endDate.Equal(late) {
		t.Errorf("endDate = %v, want %v", state.endDate, late)
	}
}
