package migration

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/randalmurphal/flagpipe/pkg/flagpipe/contexts"
	"github.com/randalmurphal/flagpipe/pkg/flagpipe/eval"
	"github.com/randalmurphal/flagpipe/pkg/flagpipe/event"
	"github.com/randalmurphal/flagpipe/pkg/flagpipe/observability"
)

// MigrationFn is one origin's implementation of a read or write operation.
// payload is an opaque value passed through from the caller.
type MigrationFn func(ctx context.Context, payload any) (any, error)

// ComparatorFn reports whether results from the two origins agree.
type ComparatorFn func(oldResult, newResult any) bool

// ExecutionOrder controls how a dual read executes.
type ExecutionOrder string

const (
	// OrderSerial reads the authoritative origin first, then the other.
	OrderSerial ExecutionOrder = "serial"

	// OrderRandom reads the two origins serially in random order.
	OrderRandom ExecutionOrder = "random"

	// OrderParallel reads both origins concurrently.
	OrderParallel ExecutionOrder = "parallel"
)

// OriginResult is the outcome of one origin's call.
type OriginResult struct {
	// Origin identifies which implementation ran.
	Origin event.Origin

	// Value is the call's result, nil on error.
	Value any

	// Err is the call's failure, nil on success.
	Err error
}

// ReadResult is the outcome of Migrator.Read: the authoritative origin's
// result. Non-authoritative reads only feed the consistency check.
type ReadResult struct {
	Origin event.Origin
	Value  any
}

// WriteResult is the outcome of Migrator.Write. Nonauthoritative is nil when
// the stage prescribed a single write or the authoritative write failed.
type WriteResult struct {
	Authoritative    OriginResult
	Nonauthoritative *OriginResult
}

// Migrator executes reads and writes against the origins the migration
// flag's current stage prescribes. Safe for concurrent use.
type Migrator struct {
	evaluator eval.Evaluator
	events    event.EventProcessor

	readOld, readNew   MigrationFn
	writeOld, writeNew MigrationFn

	comparator ComparatorFn
	checkRatio int64
	order      ExecutionOrder

	trackLatency bool
	trackErrors  bool

	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
	sampler func(ratio int64) bool
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithRead sets the two read implementations and an optional comparator used
// for consistency checking when both origins are read.
func WithRead(oldFn, newFn MigrationFn, comparator ComparatorFn) Option {
	return func(m *Migrator) {
		m.readOld = oldFn
		m.readNew = newFn
		m.comparator = comparator
	}
}

// WithWrite sets the two write implementations.
func WithWrite(oldFn, newFn MigrationFn) Option {
	return func(m *Migrator) {
		m.writeOld = oldFn
		m.writeNew = newFn
	}
}

// WithExecutionOrder sets how dual reads execute. Default: serial.
func WithExecutionOrder(order ExecutionOrder) Option {
	return func(m *Migrator) {
		m.order = order
	}
}

// WithConsistencyCheckRatio samples the comparator 1-in-n. Default: every
// dual read is checked. Zero disables checking entirely.
func WithConsistencyCheckRatio(n int64) Option {
	return func(m *Migrator) {
		m.checkRatio = n
	}
}

// WithLatencyTracking toggles per-origin latency measurements. Default: on.
func WithLatencyTracking(enabled bool) Option {
	return func(m *Migrator) {
		m.trackLatency = enabled
	}
}

// WithErrorTracking toggles per-origin error measurements. Default: on.
func WithErrorTracking(enabled bool) Option {
	return func(m *Migrator) {
		m.trackErrors = enabled
	}
}

// WithLogger sets the logger. Default: no logging.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Migrator) {
		m.logger = logger
	}
}

// WithMetrics sets the metrics recorder. Default: none.
func WithMetrics(metrics observability.MetricsRecorder) Option {
	return func(m *Migrator) {
		m.metrics = metrics
	}
}

// WithSpanManager sets the span manager. Default: none.
func WithSpanManager(spans observability.SpanManager) Option {
	return func(m *Migrator) {
		m.spans = spans
	}
}

// New creates a Migrator. The evaluator resolves the migration flag; events
// receives one migration operation event per Read or Write call.
func New(evaluator eval.Evaluator, events event.EventProcessor, opts ...Option) (*Migrator, error) {
	if evaluator == nil {
		return nil, &event.ConfigError{Field: "evaluator", Message: "must not be nil"}
	}
	if events == nil {
		events = event.NullEventProcessor{}
	}

	m := &Migrator{
		evaluator:    evaluator,
		events:       events,
		checkRatio:   1,
		order:        OrderSerial,
		trackLatency: true,
		trackErrors:  true,
		metrics:      observability.NoopMetrics{},
		spans:        observability.NoopSpanManager{},
		sampler:      func(n int64) bool { return n > 0 && (n == 1 || rand.Int64N(n) == 0) },
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.readOld == nil || m.readNew == nil {
		return nil, &event.ConfigError{Field: "read", Message: "both read implementations are required"}
	}
	if m.writeOld == nil || m.writeNew == nil {
		return nil, &event.ConfigError{Field: "write", Message: "both write implementations are required"}
	}
	return m, nil
}

// Read resolves the migration stage for evalContext and executes the reads
// it prescribes. The returned value is always the authoritative origin's.
func (m *Migrator) Read(ctx context.Context, flagKey string, evalContext contexts.Context, defaultStage Stage, payload any) (ReadResult, error) {
	stage, evaluation := m.resolveStage(flagKey, evalContext, defaultStage)
	authoritative, both := stage.readPlan()

	spanCtx, span := m.spans.StartMigrationSpan(ctx, "read", flagKey, string(stage))
	op := newOpTracker(m, "read", flagKey, defaultStage, evaluation, evalContext)

	var authResult, otherResult OriginResult
	if both {
		authResult, otherResult = m.dualRead(spanCtx, authoritative, op, payload)
		m.checkConsistency(op, authResult, otherResult)
	} else {
		authResult = m.callOrigin(spanCtx, "read", authoritative, op, payload)
	}

	m.spans.EndSpanWithError(span, authResult.Err)
	op.finish(m.events)

	if authResult.Err != nil {
		return ReadResult{Origin: authoritative}, authResult.Err
	}
	return ReadResult{Origin: authoritative, Value: authResult.Value}, nil
}

// Write resolves the migration stage for evalContext and executes the writes
// it prescribes. The authoritative origin is written first; its failure
// skips the other origin entirely.
func (m *Migrator) Write(ctx context.Context, flagKey string, evalContext contexts.Context, defaultStage Stage, payload any) (WriteResult, error) {
	stage, evaluation := m.resolveStage(flagKey, evalContext, defaultStage)
	authoritative, both := stage.writePlan()

	spanCtx, span := m.spans.StartMigrationSpan(ctx, "write", flagKey, string(stage))
	op := newOpTracker(m, "write", flagKey, defaultStage, evaluation, evalContext)

	result := WriteResult{
		Authoritative: m.callOrigin(spanCtx, "write", authoritative, op, payload),
	}
	if both && result.Authoritative.Err == nil {
		nonauth := m.callOrigin(spanCtx, "write", other(authoritative), op, payload)
		result.Nonauthoritative = &nonauth
	}

	m.spans.EndSpanWithError(span, result.Authoritative.Err)
	op.finish(m.events)

	return result, result.Authoritative.Err
}

// StageVariation evaluates the migration flag for evalContext and returns
// the stage to use, falling back to defaultStage when the flag is missing or
// holds an unrecognized value. The returned evaluation detail seeds the
// operation's telemetry event.
func StageVariation(evaluator eval.Evaluator, evalContext contexts.Context, flagKey string, defaultStage Stage) (Stage, event.MigrationEvaluation) {
	detail := evaluator.Detail(evalContext, flagKey, string(defaultStage))

	evaluation := event.MigrationEvaluation{
		Default:   string(defaultStage),
		Reason:    detail.Reason,
		Variation: detail.VariationIndex,
		Version:   detail.FlagVersion,
	}

	value, _ := detail.Value.(string)
	stage, err := ParseStage(value)
	if err != nil {
		stage = defaultStage
		evaluation.Reason = eval.ReasonError
	}
	evaluation.Value = string(stage)
	return stage, evaluation
}

func (m *Migrator) resolveStage(flagKey string, evalContext contexts.Context, defaultStage Stage) (Stage, event.MigrationEvaluation) {
	stage, evaluation := StageVariation(m.evaluator, evalContext, flagKey, defaultStage)
	if evaluation.Reason == eval.ReasonError && m.logger != nil {
		m.logger.Warn("migration flag did not resolve to a usable stage",
			slog.String("flag_key", flagKey),
			slog.String("default_stage", string(defaultStage)))
	}
	return stage, evaluation
}

// dualRead executes both origins per the configured execution order and
// returns (authoritative, other) results. Serial order is fixed old-then-new
// regardless of which origin is authoritative; random shuffles it per call.
func (m *Migrator) dualRead(ctx context.Context, authoritative event.Origin, op *opTracker, payload any) (OriginResult, OriginResult) {
	if m.order == OrderParallel {
		var wg sync.WaitGroup
		var authResult, otherResult OriginResult
		wg.Add(2)
		go func() {
			defer wg.Done()
			authResult = m.callOrigin(ctx, "read", authoritative, op, payload)
		}()
		go func() {
			defer wg.Done()
			otherResult = m.callOrigin(ctx, "read", other(authoritative), op, payload)
		}()
		wg.Wait()
		return authResult, otherResult
	}

	first, second := event.OriginOld, event.OriginNew
	if m.order == OrderRandom && rand.IntN(2) == 0 {
		first, second = second, first
	}

	firstResult := m.callOrigin(ctx, "read", first, op, payload)
	secondResult := m.callOrigin(ctx, "read", second, op, payload)
	if first == authoritative {
		return firstResult, secondResult
	}
	return secondResult, firstResult
}

// callOrigin runs one origin's implementation with its span, timing, and
// error accounting.
func (m *Migrator) callOrigin(ctx context.Context, operation string, origin event.Origin, op *opTracker, payload any) OriginResult {
	fn := m.originFn(operation, origin)

	originCtx, span := m.spans.StartOriginSpan(ctx, string(origin))
	start := time.Now()
	value, err := fn(originCtx, payload)
	elapsed := time.Since(start)
	m.spans.EndSpanWithError(span, err)

	m.metrics.RecordMigrationOrigin(ctx, string(origin), elapsed, err)
	if err != nil {
		observability.LogMigrationOriginError(m.logger, string(origin), err)
	}

	op.recordCall(origin, elapsed, err)
	return OriginResult{Origin: origin, Value: value, Err: err}
}

func (m *Migrator) originFn(operation string, origin event.Origin) MigrationFn {
	if operation == "read" {
		if origin == event.OriginOld {
			return m.readOld
		}
		return m.readNew
	}
	if origin == event.OriginOld {
		return m.writeOld
	}
	return m.writeNew
}

// checkConsistency runs the comparator over a completed dual read, subject
// to sampling. Origin errors skip the check.
func (m *Migrator) checkConsistency(op *opTracker, a, b OriginResult) {
	if m.comparator == nil || a.Err != nil || b.Err != nil {
		return
	}
	if !m.sampler(m.checkRatio) {
		return
	}

	oldResult, newResult := a, b
	if oldResult.Origin != event.OriginOld {
		oldResult, newResult = b, a
	}
	consistent := m.comparator(oldResult.Value, newResult.Value)
	op.recordConsistency(consistent, m.checkRatio)

	if !consistent && m.logger != nil {
		m.logger.Warn("migration origins returned inconsistent results",
			slog.String("flag_key", op.event.Key))
	}
}

// opTracker accumulates one operation's telemetry into a migration event.
type opTracker struct {
	event        event.MigrationOpEvent
	trackLatency bool
	trackErrors  bool
	logger       *slog.Logger
	started      time.Time
	mu           sync.Mutex
}

func newOpTracker(m *Migrator, operation, flagKey string, defaultStage Stage, evaluation event.MigrationEvaluation, evalContext contexts.Context) *opTracker {
	return &opTracker{
		event: event.MigrationOpEvent{
			BaseEvent:    event.NewBaseEvent(evalContext),
			Operation:    operation,
			Key:          flagKey,
			DefaultStage: string(defaultStage),
			Evaluation:   evaluation,
		},
		trackLatency: m.trackLatency,
		trackErrors:  m.trackErrors,
		logger:       m.logger,
		started:      time.Now(),
	}
}

// recordCall notes one origin invocation. Parallel reads call this from two
// goroutines.
func (t *opTracker) recordCall(origin event.Origin, elapsed time.Duration, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.event.Invoked = append(t.event.Invoked, origin)
	if t.trackLatency {
		if t.event.Latency == nil {
			t.event.Latency = make(map[event.Origin]time.Duration, 2)
		}
		t.event.Latency[origin] = elapsed
	}
	if t.trackErrors && err != nil {
		if t.event.Errors == nil {
			t.event.Errors = make(map[event.Origin]bool, 2)
		}
		t.event.Errors[origin] = true
	}
}

func (t *opTracker) recordConsistency(consistent bool, ratio int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.event.ConsistencyCheck = &consistent
	if ratio != 1 {
		t.event.ConsistencyCheckRatio = &ratio
	}
}

// finish submits the completed event to the pipeline.
func (t *opTracker) finish(events event.EventProcessor) {
	observability.LogMigrationOp(t.logger, t.event.Operation, t.event.Key,
		t.event.Evaluation.Value, float64(time.Since(t.started).Milliseconds()))
	events.SendEvent(t.event)
}
