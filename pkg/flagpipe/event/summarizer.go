package event

import (
	"sync"
	"time"
)

// counterKey distinguishes summary counters within one flag.
type counterKey struct {
	variation    int
	hasVariation bool
	version      int
	hasVersion   bool
}

// counterValue accumulates occurrences of one (flag, variation, version)
// combination.
type counterValue struct {
	count   int64
	value   any
	dflt    any
	unknown bool
}

// flagSummary collects everything summarized for a single flag key.
type flagSummary struct {
	dflt         any
	contextKinds map[string]bool
	counters     map[counterKey]*counterValue
}

// summarizer rolls feature request events up into per-flag counters over a
// flush window. The flush-time swap replaces the whole state under the lock
// so no accumulation is lost or double counted.
type summarizer struct {
	mu        sync.Mutex
	flags     map[string]*flagSummary
	startDate time.Time
	endDate   time.Time
}

func newSummarizer() *summarizer {
	return &summarizer{flags: make(map[string]*flagSummary)}
}

// accumulate records one feature request.
func (s *summarizer) accumulate(e FeatureRequestEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary, ok := s.flags[e.Key]
	if !ok {
		summary = &flagSummary{
			dflt:         e.Default,
			contextKinds: make(map[string]bool),
			counters:     make(map[counterKey]*counterValue),
		}
		s.flags[e.Key] = summary
	}

	for _, ind := range e.Context.Individual() {
		summary.contextKinds[string(ind.Kind())] = true
	}

	key := counterKey{}
	if e.Variation != nil {
		key.variation = *e.Variation
		key.hasVariation = true
	}
	if e.Version != nil {
		key.version = *e.Version
		key.hasVersion = true
	}

	counter, ok := summary.counters[key]
	if !ok {
		counter = &counterValue{
			value:   e.Value,
			dflt:    e.Default,
			unknown: e.Version == nil,
		}
		summary.counters[key] = counter
	}
	counter.count++

	if s.startDate.IsZero() || e.CreationDate.Before(s.startDate) {
		s.startDate = e.CreationDate
	}
	if e.CreationDate.After(s.endDate) {
		s.endDate = e.CreationDate
	}
}

// snapshot atomically takes the current window and resets the state.
// Returns ok=false when the window recorded no activity.
func (s *summarizer) snapshot() (summaryState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.flags) == 0 {
		return summaryState{}, false
	}

	state := summaryState{
		flags:     s.flags,
		startDate: s.startDate,
		endDate:   s.endDate,
	}
	s.flags = make(map[string]*flagSummary)
	s.startDate = time.Time{}
	s.endDate = time.Time{}
	return state, true
}

// summaryState is one closed summary window awaiting serialization.
type summaryState struct {
	flags     map[string]*flagSummary
	startDate time.Time
	endDate   time.Time
}
