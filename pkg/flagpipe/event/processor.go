package event

import (
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randalmurphal/flagpipe/pkg/flagpipe/contexts"
	"github.com/randalmurphal/flagpipe/pkg/flagpipe/eval"
	"github.com/randalmurphal/flagpipe/pkg/flagpipe/observability"
)

// Default pipeline configuration values.
const (
	DefaultCapacity                 = 10000
	DefaultFlushInterval            = 5 * time.Second
	DefaultContextKeysCapacity      = 1000
	DefaultContextKeysFlushInterval = 5 * time.Minute
	DefaultShutdownTimeout          = 5 * time.Second
)

// Sampler decides whether an event with the given sampling ratio is kept.
// A ratio of n keeps roughly one event in n. The default implementation is
// pseudo-random; tests substitute a deterministic one.
type Sampler func(ratio int64) bool

func defaultSampler(ratio int64) bool {
	if ratio <= 0 {
		return false
	}
	if ratio == 1 {
		return true
	}
	return rand.Int64N(ratio) == 0
}

// EventsConfig configures a StreamEventProcessor. The zero value is not
// usable; call applyDefaults via NewStreamEventProcessor.
type EventsConfig struct {
	// Capacity bounds the number of output events buffered between flushes.
	// When the buffer is full, new events are dropped.
	Capacity int

	// FlushInterval is the period of automatic background flushes.
	FlushInterval time.Duration

	// ContextKeysCapacity bounds the LRU cache used to deduplicate index
	// events per context key.
	ContextKeysCapacity int

	// ContextKeysFlushInterval is the period at which the dedup cache is
	// cleared entirely, so long-lived contexts are re-indexed.
	ContextKeysFlushInterval time.Duration

	// AllAttributesPrivate redacts every optional context attribute.
	AllAttributesPrivate bool

	// PrivateAttributes lists attribute references redacted from every
	// context, in addition to any marked private on the context itself.
	PrivateAttributes []contexts.Reference

	// OmitAnonymousContexts suppresses index and identify events for
	// contexts whose every constituent is anonymous.
	OmitAnonymousContexts bool

	// ShutdownTimeout bounds how long Close waits for in-flight deliveries.
	ShutdownTimeout time.Duration

	Logger  *slog.Logger
	Metrics observability.MetricsRecorder
	Sampler Sampler

	// OnDelivery, when set, observes every delivery result. Used to track
	// server time and by tests.
	OnDelivery func(SenderResult)
}

func (c *EventsConfig) applyDefaults() {
	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.ContextKeysCapacity <= 0 {
		c.ContextKeysCapacity = DefaultContextKeysCapacity
	}
	if c.ContextKeysFlushInterval <= 0 {
		c.ContextKeysFlushInterval = DefaultContextKeysFlushInterval
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Metrics == nil {
		c.Metrics = observability.NoopMetrics{}
	}
	if c.Sampler == nil {
		c.Sampler = defaultSampler
	}
}

// EventProcessor accepts analytics events from evaluation and migration code
// and delivers them in batches. Implementations must be safe for concurrent
// use and must never block the caller.
type EventProcessor interface {
	// SendEvent queues an event for processing. It never blocks; when the
	// pipeline is saturated, the event is dropped.
	SendEvent(e InputEvent)

	// Flush requests delivery of everything buffered so far and returns
	// immediately.
	Flush()

	// FlushBlocking flushes and waits up to timeout for the delivery
	// attempt to complete. Returns false on timeout.
	FlushBlocking(timeout time.Duration) bool

	// Close flushes remaining events and stops the pipeline. Safe to call
	// more than once.
	Close() error
}

// StreamEventProcessor is the production EventProcessor. Producers submit
// events onto a bounded channel consumed by a single dispatcher goroutine;
// delivery happens on separate goroutines so neither producers nor the
// dispatcher ever wait on the network.
type StreamEventProcessor struct {
	cfg    EventsConfig
	inbox  chan message
	worker *dispatcher

	closeOnce sync.Once
	closed    atomic.Bool
	dropped   atomic.Int64
}

var _ EventProcessor = (*StreamEventProcessor)(nil)

// NewStreamEventProcessor starts the pipeline. The sender is required; the
// config is validated after defaults are applied.
func NewStreamEventProcessor(cfg EventsConfig, sender EventSender) (*StreamEventProcessor, error) {
	if sender == nil {
		return nil, &ConfigError{Field: "sender", Message: "must not be nil"}
	}
	cfg.applyDefaults()

	p := &StreamEventProcessor{
		cfg: cfg,
		// The inbox is sized to the outbox capacity so a full pipeline is
		// bounded at roughly twice Capacity events in memory.
		inbox: make(chan message, cfg.Capacity),
	}
	p.worker = newDispatcher(cfg, sender, &p.dropped)
	go p.worker.run(p.inbox)
	return p, nil
}

// SendEvent queues an event without blocking. Events submitted after Close,
// or while the inbox is full, are dropped.
func (p *StreamEventProcessor) SendEvent(e InputEvent) {
	if p.closed.Load() || p.worker.disabled.Load() {
		return
	}
	select {
	case p.inbox <- eventMessage{event: e}:
	default:
		p.dropped.Add(1)
	}
}

// Flush triggers an asynchronous flush.
func (p *StreamEventProcessor) Flush() {
	if p.closed.Load() {
		return
	}
	select {
	case p.inbox <- flushMessage{}:
	default:
	}
}

// FlushBlocking flushes and waits for the delivery attempt. It returns false
// if the flush could not be queued or did not finish within timeout.
func (p *StreamEventProcessor) FlushBlocking(timeout time.Duration) bool {
	if p.closed.Load() {
		return false
	}
	reply := make(chan struct{})
	select {
	case p.inbox <- flushMessage{reply: reply}:
	case <-time.After(timeout):
		return false
	}
	select {
	case <-reply:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close drains queued events, performs a final flush, and stops the worker.
func (p *StreamEventProcessor) Close() error {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		done := make(chan struct{})
		p.inbox <- shutdownMessage{done: done}
		<-done
	})
	return nil
}

// Dropped reports the total number of events dropped due to saturation.
func (p *StreamEventProcessor) Dropped() int64 {
	return p.dropped.Load()
}

// TrackFeature records a flag evaluation.
func (p *StreamEventProcessor) TrackFeature(evalContext contexts.Context, flagKey string, detail eval.Detail, defaultValue any) {
	p.SendEvent(NewFeatureRequestEvent(evalContext, flagKey, detail, defaultValue))
}

// TrackIdentify records that a context was identified.
func (p *StreamEventProcessor) TrackIdentify(evalContext contexts.Context) {
	p.SendEvent(IdentifyEvent{BaseEvent: NewBaseEvent(evalContext)})
}

// TrackCustom records an application-defined event, optionally with a
// numeric metric value.
func (p *StreamEventProcessor) TrackCustom(evalContext contexts.Context, key string, data any, metricValue *float64) {
	p.SendEvent(CustomEvent{
		BaseEvent:   NewBaseEvent(evalContext),
		Key:         key,
		Data:        data,
		MetricValue: metricValue,
	})
}

// TrackMigrationOp records a migration operation's telemetry.
func (p *StreamEventProcessor) TrackMigrationOp(e MigrationOpEvent) {
	p.SendEvent(e)
}

// NullEventProcessor discards everything. Used when events are disabled.
type NullEventProcessor struct{}

var _ EventProcessor = NullEventProcessor{}

func (NullEventProcessor) SendEvent(InputEvent)             {}
func (NullEventProcessor) Flush()                           {}
func (NullEventProcessor) FlushBlocking(time.Duration) bool { return true }
func (NullEventProcessor) Close() error                     { return nil }
