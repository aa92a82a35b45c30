// Package observability provides production-grade observability features
// for flagpipe: structured logging, metrics, and distributed tracing.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// LogBatchSent logs a successfully delivered event batch.
func LogBatchSent(logger *slog.Logger, eventCount int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("event batch delivered",
		slog.Int("events", eventCount),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogBatchFailed logs a dropped event batch (at-most-once delivery).
func LogBatchFailed(logger *slog.Logger, eventCount int, err error) {
	if logger == nil {
		return
	}
	logger.Warn("event batch dropped after failed delivery",
		slog.Int("events", eventCount),
		slog.String("error", err.Error()),
	)
}

// LogEventsDropped logs producer-side overflow drops.
func LogEventsDropped(logger *slog.Logger, dropped int64) {
	if logger == nil {
		return
	}
	logger.Warn("event buffer full, dropping events",
		slog.Int64("dropped", dropped),
	)
}

// LogPipelineShutdown logs the permanent stop after a fatal delivery error.
func LogPipelineShutdown(logger *slog.Logger, reason string) {
	if logger == nil {
		return
	}
	logger.Error("event pipeline shutting down",
		slog.String("reason", reason),
	)
}

// LogMigrationOp logs a completed migration operation.
func LogMigrationOp(logger *slog.Logger, operation, flagKey, stage string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("migration operation completed",
		slog.String("operation", operation),
		slog.String("flag_key", flagKey),
		slog.String("stage", stage),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogMigrationOriginError logs a failed origin call (possibly shadow-only).
func LogMigrationOriginError(logger *slog.Logger, origin string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("migration origin failed",
		slog.String("origin", origin),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
