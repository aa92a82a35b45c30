package event

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randalmurphal/flagpipe/pkg/flagpipe/observability"
)

// Messages consumed by the dispatcher worker.
type message interface{}

type eventMessage struct {
	event InputEvent
}

// flushMessage triggers an out-of-band flush. reply, when non-nil, is closed
// after the resulting delivery attempt completes.
type flushMessage struct {
	reply chan struct{}
}

// shutdownMessage asks the worker to drain, flush once more, and exit.
type shutdownMessage struct {
	done chan struct{}
}

// outbox is the capacity-bounded buffer of output events awaiting the next
// flush. Overflow drops the newest event so already-buffered data survives
// intact, and logs one warning per overflow episode.
type outbox struct {
	capacity int
	events   []any
	dropped  int64
	warned   bool
}

func newOutbox(capacity int) *outbox {
	return &outbox{capacity: capacity, events: make([]any, 0, capacity)}
}

// add buffers e, or drops it when the buffer is full. Returns true when the
// event was dropped.
func (b *outbox) add(e any) bool {
	if len(b.events) >= b.capacity {
		b.dropped++
		return true
	}
	b.events = append(b.events, e)
	return false
}

// take returns the buffered events and resets the buffer.
func (b *outbox) take() []any {
	events := b.events
	b.events = make([]any, 0, b.capacity)
	b.warned = false
	return events
}

// dispatcher is the single-consumer worker that owns all mutable pipeline
// state: the summarizer, the context keys cache, and the outbox. Producers
// reach it only through the inbox channel, so none of this state needs
// fine-grained locking.
type dispatcher struct {
	cfg     EventsConfig
	sender  EventSender
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	sampler Sampler

	summarizer  *summarizer
	contextKeys *contextKeysCache
	outbox      *outbox
	redaction   redactionConfig

	// disabled flips once after an auth failure; checked by both the worker
	// and the send goroutines.
	disabled atomic.Bool

	// droppedTotal counts all overflow drops for diagnostics and tests.
	droppedTotal *atomic.Int64

	// sends tracks in-flight delivery goroutines for shutdown.
	sends sync.WaitGroup
}

func newDispatcher(cfg EventsConfig, sender EventSender, droppedTotal *atomic.Int64) *dispatcher {
	return &dispatcher{
		cfg:          cfg,
		sender:       sender,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		sampler:      cfg.Sampler,
		summarizer:   newSummarizer(),
		contextKeys:  newContextKeysCache(cfg.ContextKeysCapacity),
		outbox:       newOutbox(cfg.Capacity),
		droppedTotal: droppedTotal,
		redaction: redactionConfig{
			allAttributesPrivate:  cfg.AllAttributesPrivate,
			privateAttributes:     cfg.PrivateAttributes,
			omitAnonymousContexts: cfg.OmitAnonymousContexts,
		},
	}
}

// run is the worker loop. It exits only on a shutdown message.
func (d *dispatcher) run(inbox chan message) {
	flushTicker := time.NewTicker(d.cfg.FlushInterval)
	defer flushTicker.Stop()
	keysTicker := time.NewTicker(d.cfg.ContextKeysFlushInterval)
	defer keysTicker.Stop()

	for {
		select {
		case msg := <-inbox:
			switch m := msg.(type) {
			case eventMessage:
				d.processEvent(m.event)
			case flushMessage:
				d.startFlush(m.reply)
			case shutdownMessage:
				d.drain(inbox)
				d.finalFlush()
				close(m.done)
				return
			}
		case <-flushTicker.C:
			d.startFlush(nil)
		case <-keysTicker.C:
			d.contextKeys.clear()
		}
	}
}

// drain consumes whatever is already queued without blocking, so close()
// never loses events submitted before the close request.
func (d *dispatcher) drain(inbox chan message) {
	for {
		select {
		case msg := <-inbox:
			switch m := msg.(type) {
			case eventMessage:
				d.processEvent(m.event)
			case flushMessage:
				if m.reply != nil {
					close(m.reply)
				}
			}
		default:
			return
		}
	}
}

// finalFlush runs the shutdown flush and waits for every in-flight send up
// to the configured shutdown timeout.
func (d *dispatcher) finalFlush() {
	d.startFlush(nil)

	done := make(chan struct{})
	go func() {
		d.sends.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d.cfg.ShutdownTimeout):
		if d.logger != nil {
			d.logger.Warn("shutdown timed out waiting for event delivery")
		}
	}
}

// processEvent routes one input event into summary counters, the context
// keys cache, and the outbox.
func (d *dispatcher) processEvent(e InputEvent) {
	switch evt := e.(type) {
	case FeatureRequestEvent:
		if !evt.ExcludeFromSummaries {
			d.summarizer.accumulate(evt)
		}
		d.indexContext(evt.BaseEvent)
		if !d.sampled(evt.SamplingRatio) {
			break
		}
		if evt.TrackEvents {
			d.bufferOutput(makeFeatureOutput(evt, false, d.redaction))
		}
		if evt.DebugEventsUntil != nil && evt.DebugEventsUntil.After(time.Now()) {
			d.bufferOutput(makeFeatureOutput(evt, true, d.redaction))
		}

	case IdentifyEvent:
		// An identify event carries the full context itself, so it counts
		// as indexing without a separate index event.
		d.contextKeys.notice(evt.Context.FullyQualifiedKey())
		if out, ok := makeIdentifyOutput(evt, d.redaction); ok {
			d.bufferOutput(out)
		}

	case CustomEvent:
		d.bufferOutput(makeCustomOutput(evt))

	case MigrationOpEvent:
		if d.sampled(evt.SamplingRatio) {
			d.bufferOutput(makeMigrationOpOutput(evt))
		}
	}
}

// indexContext emits an index event the first time a context key is seen
// within the current dedup window.
func (d *dispatcher) indexContext(e BaseEvent) {
	if d.contextKeys.notice(e.Context.FullyQualifiedKey()) {
		return
	}
	if out, ok := makeIndexOutput(e, d.redaction); ok {
		d.bufferOutput(out)
	}
}

func (d *dispatcher) bufferOutput(e any) {
	if !d.outbox.add(e) {
		return
	}
	d.droppedTotal.Add(1)
	d.metrics.RecordEventsDropped(context.Background(), 1)
	if !d.outbox.warned {
		d.outbox.warned = true
		observability.LogEventsDropped(d.logger, d.outbox.dropped)
	}
}

func (d *dispatcher) sampled(ratio *int64) bool {
	if ratio == nil {
		return true
	}
	return d.sampler(*ratio)
}

// startFlush snapshots the outbox plus the summary window and hands the
// batch to a send goroutine. Delivery never blocks the worker.
func (d *dispatcher) startFlush(reply chan struct{}) {
	events := d.outbox.take()
	if state, ok := d.summarizer.snapshot(); ok {
		events = append(events, makeSummaryOutput(state))
	}

	if len(events) == 0 || d.disabled.Load() {
		if reply != nil {
			close(reply)
		}
		return
	}

	payload, err := json.Marshal(events)
	if err != nil {
		// Serialization failures drop the batch; there is nothing to retry.
		if d.logger != nil {
			d.logger.Error("event batch serialization failed",
				slog.Int("events", len(events)),
				slog.String("error", err.Error()))
		}
		if reply != nil {
			close(reply)
		}
		return
	}

	d.sends.Add(1)
	go func() {
		defer d.sends.Done()
		if reply != nil {
			defer close(reply)
		}
		d.deliver(payload, len(events))
	}()
}

// deliver performs one send attempt cycle and reports the outcome through
// metrics, logs, and the success callback. Failed batches are not requeued.
func (d *dispatcher) deliver(payload []byte, eventCount int) {
	done := observability.TimedOperation()
	result := d.sender.Send(payload, eventCount)
	elapsed := time.Duration(done() * float64(time.Millisecond))

	d.metrics.RecordBatch(context.Background(), eventCount, elapsed, result.Success)

	switch {
	case result.MustShutDown:
		if d.disabled.CompareAndSwap(false, true) {
			observability.LogPipelineShutdown(d.logger, "invalid credential")
		}
	case result.Success:
		observability.LogBatchSent(d.logger, eventCount, float64(elapsed.Milliseconds()))
	default:
		observability.LogBatchFailed(d.logger, eventCount, errDeliveryFailed)
	}

	if d.cfg.OnDelivery != nil {
		d.cfg.OnDelivery(result)
	}
}
