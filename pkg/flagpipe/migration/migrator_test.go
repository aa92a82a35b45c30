package migration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/randalmurphal/flagpipe/pkg/flagpipe/contexts"
	"github.com/randalmurphal/flagpipe/pkg/flagpipe/eval"
	"github.com/randalmurphal/flagpipe/pkg/flagpipe/event"
)

// stageEvaluator always resolves the migration flag to a fixed stage.
type stageEvaluator struct {
	value  any
	reason string
}

func (s stageEvaluator) Detail(_ contexts.Context, _ string, defaultValue any) eval.Detail {
	if s.value == nil {
		return eval.Detail{Value: defaultValue, Reason: eval.ReasonFlagNotFound}
	}
	variation := 0
	version := 1
	reason := s.reason
	if reason == "" {
		reason = eval.ReasonFallthrough
	}
	return eval.Detail{
		Value:          s.value,
		VariationIndex: &variation,
		FlagVersion:    &version,
		Reason:         reason,
	}
}

// captureEvents records submitted events synchronously.
type captureEvents struct {
	mu     sync.Mutex
	events []event.InputEvent
}

func (c *captureEvents) SendEvent(e event.InputEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureEvents) Flush()                           {}
func (c *captureEvents) FlushBlocking(time.Duration) bool { return true }
func (c *captureEvents) Close() error                     { return nil }

func (c *captureEvents) lastOp(t *testing.T) event.MigrationOpEvent {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		t.Fatal("no migration event recorded")
	}
	op, ok := c.events[len(c.events)-1].(event.MigrationOpEvent)
	if !ok {
		t.Fatalf("last event is %T, want MigrationOpEvent", c.events[len(c.events)-1])
	}
	return op
}

// callLog records which origins ran, in order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) fn(name string, result any, err error) MigrationFn {
	return func(context.Context, any) (any, error) {
		l.mu.Lock()
		l.calls = append(l.calls, name)
		l.mu.Unlock()
		return result, err
	}
}

func (l *callLog) names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func newTestMigrator(t *testing.T, stage any, log *callLog, events event.EventProcessor, opts ...Option) *Migrator {
	t.Helper()
	base := []Option{
		WithRead(log.fn("read-old", "old-value", nil), log.fn("read-new", "new-value", nil),
			func(a, b any) bool { return a == b }),
		WithWrite(log.fn("write-old", nil, nil), log.fn("write-new", nil, nil)),
	}
	m, err := New(stageEvaluator{value: stage}, events, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestParseStage(t *testing.T) {
	for _, valid := range []string{"off", "dualwrite", "shadow", "live", "rampdown", "complete"} {
		if _, err := ParseStage(valid); err != nil {
			t.Errorf("ParseStage(%q): %v", valid, err)
		}
	}
	if _, err := ParseStage("canary"); err == nil {
		t.Error("unknown stage should be rejected")
	}
	if _, err := ParseStage(""); err == nil {
		t.Error("empty stage should be rejected")
	}
}

func TestStageVariation(t *testing.T) {
	stage, evaluation := StageVariation(stageEvaluator{value: "live"}, contexts.New("u1"), "migrate-db", StageOff)
	if stage != StageLive {
		t.Errorf("stage = %v, want live", stage)
	}
	if evaluation.Value != "live" || evaluation.Default != "off" {
		t.Errorf("evaluation = %+v", evaluation)
	}
	if evaluation.Reason != eval.ReasonFallthrough {
		t.Errorf("reason = %q", evaluation.Reason)
	}

	stage, evaluation = StageVariation(stageEvaluator{value: 42}, contexts.New("u1"), "migrate-db", StageDualWrite)
	if stage != StageDualWrite {
		t.Errorf("stage = %v, want the default on a non-string value", stage)
	}
	if evaluation.Reason != eval.ReasonError {
		t.Errorf("reason = %q, want ERROR", evaluation.Reason)
	}
}

func TestNewValidation(t *testing.T) {
	log := &callLog{}
	if _, err := New(nil, nil); err == nil {
		t.Error("nil evaluator should be rejected")
	}
	if _, err := New(stageEvaluator{value: "off"}, nil,
		WithWrite(log.fn("w", nil, nil), log.fn("w", nil, nil))); err == nil {
		t.Error("missing read implementations should be rejected")
	}
	if _, err := New(stageEvaluator{value: "off"}, nil,
		WithRead(log.fn("r", nil, nil), log.fn("r", nil, nil), nil)); err == nil {
		t.Error("missing write implementations should be rejected")
	}
}

func TestReadOriginsPerStage(t *testing.T) {
	cases := []struct {
		stage      string
		wantOrigin event.Origin
		wantCalls  []string
	}{
		{"off", event.OriginOld, []string{"read-old"}},
		{"dualwrite", event.OriginOld, []string{"read-old"}},
		{"shadow", event.OriginOld, []string{"read-old", "read-new"}},
		{"live", event.OriginNew, []string{"read-old", "read-new"}},
		{"rampdown", event.OriginNew, []string{"read-new"}},
		{"complete", event.OriginNew, []string{"read-new"}},
	}
	for _, tc := range cases {
		t.Run(tc.stage, func(t *testing.T) {
			log := &callLog{}
			events := &captureEvents{}
			m := newTestMigrator(t, tc.stage, log, events)

			result, err := m.Read(context.Background(), "migrate-db", contexts.New("u1"), StageOff, nil)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if result.Origin != tc.wantOrigin {
				t.Errorf("origin = %v, want %v", result.Origin, tc.wantOrigin)
			}
			if got := log.names(); len(got) != len(tc.wantCalls) {
				t.Errorf("calls = %v, want %v", got, tc.wantCalls)
			} else {
				for i := range got {
					if got[i] != tc.wantCalls[i] {
						t.Errorf("calls = %v, want %v", got, tc.wantCalls)
						break
					}
				}
			}
		})
	}
}

func TestReadSerialOrderIsOldFirst(t *testing.T) {
	// Serial execution always runs the old origin first, even when the new
	// origin is authoritative; the caller still sees the new origin's value.
	log := &callLog{}
	m := newTestMigrator(t, "live", log, &captureEvents{})

	result, err := m.Read(context.Background(), "migrate-db", contexts.New("u1"), StageOff, nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got := log.names(); len(got) != 2 || got[0] != "read-old" || got[1] != "read-new" {
		t.Errorf("calls = %v, want [read-old read-new]", got)
	}
	if result.Origin != event.OriginNew || result.Value != "new-value" {
		t.Errorf("result = %+v, want the new origin's value", result)
	}
}

func TestWriteOriginsPerStage(t *testing.T) {
	cases := []struct {
		stage     string
		wantCalls []string
	}{
		{"off", []string{"write-old"}},
		{"dualwrite", []string{"write-old", "write-new"}},
		{"shadow", []string{"write-old", "write-new"}},
		{"live", []string{"write-new", "write-old"}},
		{"rampdown", []string{"write-new", "write-old"}},
		{"complete", []string{"write-new"}},
	}
	for _, tc := range cases {
		t.Run(tc.stage, func(t *testing.T) {
			log := &callLog{}
			m := newTestMigrator(t, tc.stage, log, &captureEvents{})

			if _, err := m.Write(context.Background(), "migrate-db", contexts.New("u1"), StageOff, nil); err != nil {
				t.Fatalf("Write: %v", err)
			}
			got := log.names()
			if len(got) != len(tc.wantCalls) {
				t.Fatalf("calls = %v, want %v", got, tc.wantCalls)
			}
			for i := range got {
				if got[i] != tc.wantCalls[i] {
					t.Fatalf("calls = %v, want %v", got, tc.wantCalls)
				}
			}
		})
	}
}

func TestWriteAuthoritativeFailureSkipsOther(t *testing.T) {
	log := &callLog{}
	events := &captureEvents{}
	writeErr := errors.New("old store down")

	m, err := New(stageEvaluator{value: "dualwrite"}, events,
		WithRead(log.fn("read-old", nil, nil), log.fn("read-new", nil, nil), nil),
		WithWrite(log.fn("write-old", nil, writeErr), log.fn("write-new", nil, nil)))
	if err != nil {
		t.Fatal(err)
	}

	result, err := m.Write(context.Background(), "migrate-db", contexts.New("u1"), StageOff, nil)
	if !errors.Is(err, writeErr) {
		t.Fatalf("err = %v, want %v", err, writeErr)
	}
	if result.Nonauthoritative != nil {
		t.Error("nonauthoritative write must not run after an authoritative failure")
	}
	if got := log.names(); len(got) != 1 || got[0] != "write-old" {
		t.Errorf("calls = %v, want [write-old]", got)
	}

	op := events.lastOp(t)
	if !op.Errors[event.OriginOld] {
		t.Error("old-origin error should be recorded")
	}
	if len(op.Invoked) != 1 {
		t.Errorf("invoked = %v, want one origin", op.Invoked)
	}
}

func TestReadConsistencyCheck(t *testing.T) {
	t.Run("consistent", func(t *testing.T) {
		log := &callLog{}
		events := &captureEvents{}
		m, err := New(stageEvaluator{value: "shadow"}, events,
			WithRead(log.fn("read-old", "same", nil), log.fn("read-new", "same", nil),
				func(a, b any) bool { return a == b }),
			WithWrite(log.fn("write-old", nil, nil), log.fn("write-new", nil, nil)))
		if err != nil {
			t.Fatal(err)
		}

		if _, err := m.Read(context.Background(), "migrate-db", contexts.New("u1"), StageOff, nil); err != nil {
			t.Fatal(err)
		}
		op := events.lastOp(t)
		if op.ConsistencyCheck == nil || !*op.ConsistencyCheck {
			t.Errorf("consistency = %v, want true", op.ConsistencyCheck)
		}
	})

	t.Run("inconsistent", func(t *testing.T) {
		log := &callLog{}
		events := &captureEvents{}
		m := newTestMigrator(t, "shadow", log, events) // old-value vs new-value

		if _, err := m.Read(context.Background(), "migrate-db", contexts.New("u1"), StageOff, nil); err != nil {
			t.Fatal(err)
		}
		op := events.lastOp(t)
		if op.ConsistencyCheck == nil || *op.ConsistencyCheck {
			t.Errorf("consistency = %v, want false", op.ConsistencyCheck)
		}
	})

	t.Run("skipped on origin error", func(t *testing.T) {
		log := &callLog{}
		events := &captureEvents{}
		m, err := New(stageEvaluator{value: "shadow"}, events,
			WithRead(log.fn("read-old", "v", nil), log.fn("read-new", nil, errors.New("boom")),
				func(a, b any) bool { return a == b }),
			WithWrite(log.fn("write-old", nil, nil), log.fn("write-new", nil, nil)))
		if err != nil {
			t.Fatal(err)
		}

		// The authoritative (old) read still succeeds.
		result, err := m.Read(context.Background(), "migrate-db", contexts.New("u1"), StageOff, nil)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if result.Value != "v" {
			t.Errorf("value = %v, want v", result.Value)
		}
		op := events.lastOp(t)
		if op.ConsistencyCheck != nil {
			t.Error("comparator must not run when an origin failed")
		}
		if !op.Errors[event.OriginNew] {
			t.Error("new-origin error should be recorded")
		}
	})

	t.Run("disabled by zero ratio", func(t *testing.T) {
		log := &callLog{}
		events := &captureEvents{}
		m := newTestMigrator(t, "shadow", log, events, WithConsistencyCheckRatio(0))

		if _, err := m.Read(context.Background(), "migrate-db", contexts.New("u1"), StageOff, nil); err != nil {
			t.Fatal(err)
		}
		if op := events.lastOp(t); op.ConsistencyCheck != nil {
			t.Error("zero ratio should disable the consistency check")
		}
	})
}

func TestReadParallelRunsBothOrigins(t *testing.T) {
	log := &callLog{}
	events := &captureEvents{}
	m := newTestMigrator(t, "live", log, events, WithExecutionOrder(OrderParallel))

	result, err := m.Read(context.Background(), "migrate-db", contexts.New("u1"), StageOff, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Origin != event.OriginNew || result.Value != "new-value" {
		t.Errorf("result = %+v, want authoritative new-value", result)
	}

	got := log.names()
	if len(got) != 2 {
		t.Fatalf("calls = %v, want both origins", got)
	}
	op := events.lastOp(t)
	if len(op.Invoked) != 2 {
		t.Errorf("invoked = %v, want both origins", op.Invoked)
	}
}

func TestLatencyAndErrorTrackingToggles(t *testing.T) {
	log := &callLog{}
	events := &captureEvents{}
	m := newTestMigrator(t, "off", log, events,
		WithLatencyTracking(false), WithErrorTracking(false))

	if _, err := m.Read(context.Background(), "migrate-db", contexts.New("u1"), StageOff, nil); err != nil {
		t.Fatal(err)
	}
	op := events.lastOp(t)
	if op.Latency != nil {
		t.Error("latency tracking disabled, but latency recorded")
	}
	if op.Errors != nil {
		t.Error("error tracking disabled, but errors recorded")
	}
	if len(op.Invoked) != 1 {
		t.Errorf("invoked = %v", op.Invoked)
	}
}

func TestLatencyRecordedByDefault(t *testing.T) {
	events := &captureEvents{}
	slowOld := func(context.Context, any) (any, error) {
		time.Sleep(5 * time.Millisecond)
		return "v", nil
	}
	log := &callLog{}
	m, err := New(stageEvaluator{value: "off"}, events,
		WithRead(slowOld, log.fn("read-new", nil, nil), nil),
		WithWrite(log.fn("write-old", nil, nil), log.fn("write-new", nil, nil)))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := m.Read(context.Background(), "migrate-db", contexts.New("u1"), StageOff, nil); err != nil {
		t.Fatal(err)
	}
	op := events.lastOp(t)
	if op.Latency[event.OriginOld] < 5*time.Millisecond {
		t.Errorf("latency = %v, want >= 5ms", op.Latency[event.OriginOld])
	}
}

func TestInvalidStageFallsBackToDefault(t *testing.T) {
	log := &callLog{}
	events := &captureEvents{}
	m := newTestMigrator(t, "not-a-stage", log, events)

	result, err := m.Read(context.Background(), "migrate-db", contexts.New("u1"), StageComplete, nil)
	if err != nil {
		t.Fatal(err)
	}
	// StageComplete reads new only.
	if result.Origin != event.OriginNew {
		t.Errorf("origin = %v, want new", result.Origin)
	}

	op := events.lastOp(t)
	if op.Evaluation.Value != "complete" {
		t.Errorf("evaluation value = %q, want complete", op.Evaluation.Value)
	}
	if op.Evaluation.Reason != eval.ReasonError {
		t.Errorf("reason = %q, want ERROR", op.Evaluation.Reason)
	}
}

func TestMissingFlagUsesDefaultStage(t *testing.T) {
	log := &callLog{}
	events := &captureEvents{}
	m := newTestMigrator(t, nil, log, events) // evaluator returns the default

	result, err := m.Read(context.Background(), "migrate-db", contexts.New("u1"), StageShadow, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Origin != event.OriginOld {
		t.Errorf("origin = %v, want old (shadow authoritative)", result.Origin)
	}
	if got := log.names(); len(got) != 2 {
		t.Errorf("calls = %v, want both origins at shadow", got)
	}
}

func TestReadErrorReturnsAuthoritativeFailure(t *testing.T) {
	log := &callLog{}
	events := &captureEvents{}
	readErr := errors.New("old origin unavailable")
	m, err := New(stageEvaluator{value: "off"}, events,
		WithRead(log.fn("read-old", nil, readErr), log.fn("read-new", "v", nil), nil),
		WithWrite(log.fn("write-old", nil, nil), log.fn("write-new", nil, nil)))
	if err != nil {
		t.Fatal(err)
	}

	result, err := m.Read(context.Background(), "migrate-db", contexts.New("u1"), StageOff, nil)
	if !errors.Is(err, readErr) {
		t.Fatalf("err = %v, want %v", err, readErr)
	}
	if result.Value != nil {
		t.Errorf("value = %v, want nil on error", result.Value)
	}
}
