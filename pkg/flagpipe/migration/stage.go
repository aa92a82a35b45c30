// Package migration implements staged technology migrations guarded by a
// feature flag.
//
// A Migrator wraps an old and a new implementation of a read and a write
// operation. Each call resolves the migration flag to a stage, executes the
// origins that stage prescribes, optionally compares read results for
// consistency, and reports what happened as a migration operation event
// through the analytics pipeline.
package migration

import (
	"fmt"

	"github.com/randalmurphal/flagpipe/pkg/flagpipe/event"
)

// Stage is one step of a migration rollout.
type Stage string

// The migration stages, in rollout order.
const (
	// StageOff serves everything from the old origin.
	StageOff Stage = "off"

	// StageDualWrite reads old, writes both with old authoritative.
	StageDualWrite Stage = "dualwrite"

	// StageShadow reads and writes both origins with old authoritative.
	StageShadow Stage = "shadow"

	// StageLive reads and writes both origins with new authoritative.
	StageLive Stage = "live"

	// StageRampDown reads new only, writes both with new authoritative.
	StageRampDown Stage = "rampdown"

	// StageComplete serves everything from the new origin.
	StageComplete Stage = "complete"
)

// ParseStage converts a flag value into a Stage.
func ParseStage(value string) (Stage, error) {
	switch Stage(value) {
	case StageOff, StageDualWrite, StageShadow, StageLive, StageRampDown, StageComplete:
		return Stage(value), nil
	}
	return "", fmt.Errorf("unrecognized migration stage %q", value)
}

// readPlan returns which origin is authoritative for reads at this stage and
// whether the other origin is read as well.
func (s Stage) readPlan() (authoritative event.Origin, both bool) {
	switch s {
	case StageOff, StageDualWrite:
		return event.OriginOld, false
	case StageShadow:
		return event.OriginOld, true
	case StageLive:
		return event.OriginNew, true
	default: // rampdown, complete
		return event.OriginNew, false
	}
}

// writePlan returns which origin is authoritative for writes at this stage
// and whether the other origin is written as well. The authoritative write
// always runs first; its failure skips the other origin.
func (s Stage) writePlan() (authoritative event.Origin, both bool) {
	switch s {
	case StageOff:
		return event.OriginOld, false
	case StageDualWrite, StageShadow:
		return event.OriginOld, true
	case StageLive, StageRampDown:
		return event.OriginNew, true
	default: // complete
		return event.OriginNew, false
	}
}

// other returns the opposite origin.
func other(origin event.Origin) event.Origin {
	if origin == event.OriginOld {
		return event.OriginNew
	}
	return event.OriginOld
}
