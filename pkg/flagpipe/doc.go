/*
Package flagpipe is the runtime core of a feature-flag SDK.

# Overview

flagpipe provides the two long-running pieces an SDK needs once flag rules
have been evaluated: an asynchronous analytics event pipeline, and a staged
migration engine for moving reads and writes from an old implementation to a
new one under flag control.

The library is organized as subpackages:
  - contexts: immutable evaluation contexts (single and multi kind) and
    attribute references
  - event: the event pipeline (summarization, context deduplication,
    private-attribute redaction, batching, and HTTP delivery)
  - migration: stages, execution orders, and the Migrator
  - eval: the evaluation collaborator interface and a store-backed default
  - store: in-memory and SQLite flag stores
  - config: map-backed configuration with YAML/JSON file loading
  - observability: slog helpers plus OpenTelemetry metrics and tracing

# Event Pipeline

Producers never block and never fail: events are submitted onto a bounded
queue consumed by a single background worker, and are dropped (and counted)
when the pipeline is saturated.

	sender, err := event.NewHTTPSender("https://events.example.com/bulk", sdkKey,
	    event.WithCompression(true))
	if err != nil {
	    log.Fatal(err)
	}
	processor, err := event.NewStreamEventProcessor(event.EventsConfig{
	    FlushInterval: 5 * time.Second,
	}, sender)
	if err != nil {
	    log.Fatal(err)
	}
	defer processor.Close()

	ctx := contexts.New("user-123", contexts.WithName("Ada"))
	processor.TrackIdentify(ctx)
	processor.TrackCustom(ctx, "checkout", nil, nil)

Feature evaluations are rolled up into summary counters; raw feature events
are emitted only for flags that request full tracking.

# Migrations

A Migrator wraps old and new implementations of a read and a write. Each
call resolves a migration flag to a stage (off, dualwrite, shadow, live,
rampdown, complete) and runs the origins that stage prescribes, reporting
latency, errors, and read consistency through the event pipeline.

	m, err := migration.New(evaluator, processor,
	    migration.WithRead(readOld, readNew, func(a, b any) bool { return a == b }),
	    migration.WithWrite(writeOld, writeNew),
	    migration.WithExecutionOrder(migration.OrderParallel))
	if err != nil {
	    log.Fatal(err)
	}

	result, err := m.Read(ctx, "migrate-db", userContext, migration.StageOff, query)

The caller always receives the authoritative origin's result; the other
origin's outcome is telemetry only.
*/
package flagpipe
