// Package store provides the local flag store that evaluation reads from.
//
// The store holds the latest known configuration of every flag, keyed by
// flag key and guarded by a version number: writes carrying a version lower
// than or equal to the stored one are ignored, so an out-of-order refresh
// from the transport can never roll a flag backwards. The transport that
// refreshes the store (streaming or polling) lives outside this module.
package store

import (
	"errors"
	"time"
)

// Flag is the stored configuration of a single flag.
//
// Rule evaluation is out of scope here: Value and VariationIndex are the
// already-resolved result served for any context, as delivered by the
// upstream flag service.
type Flag struct {
	Key                  string     `json:"key"`
	Version              int        `json:"version"`
	Value                any        `json:"value"`
	VariationIndex       *int       `json:"variationIndex,omitempty"`
	Reason               string     `json:"reason,omitempty"`
	TrackEvents          bool       `json:"trackEvents,omitempty"`
	DebugEventsUntil     *time.Time `json:"debugEventsUntilDate,omitempty"`
	SamplingRatio        *int64     `json:"samplingRatio,omitempty"`
	ExcludeFromSummaries bool       `json:"excludeFromSummaries,omitempty"`
}

// Store holds flag configurations.
// Implementations must be safe for concurrent use.
type Store interface {
	// Upsert stores a flag if its version is newer than what is stored.
	// Returns true if the flag was written.
	Upsert(flag Flag) (bool, error)

	// Get retrieves a flag by key.
	// Returns ErrNotFound if the flag doesn't exist or was deleted.
	Get(key string) (Flag, error)

	// All returns every stored flag, ordered by key.
	All() ([]Flag, error)

	// Delete tombstones a flag at the given version.
	// A delete with a stale version is ignored.
	Delete(key string, version int) error

	// Close releases any resources (connections, files).
	Close() error
}

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates a flag doesn't exist.
	ErrNotFound = errors.New("flag not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("flag store closed")
)
