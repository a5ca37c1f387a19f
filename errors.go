package engrave

import "errors"

// Sentinel errors for the five error kinds the pipeline can surface (§7).
// Callers classify failures with errors.Is against these, and phases wrap
// them with fmt.Errorf("...: %w", ...) for context.
var (
	// ErrOutOfMemory is returned by the arena when a phase's allocation
	// would exceed its budget and error-recovery mode is not enabled.
	ErrOutOfMemory = errors.New("arena: out of memory")

	// ErrSystemStabilityRisk is returned when a circuit-breaker guard
	// (batch size or complexity threshold) is breached.
	ErrSystemStabilityRisk = errors.New("pipeline: system stability risk")

	// ErrProcessingTimeout is returned when the wall-clock processing
	// guard is breached.
	ErrProcessingTimeout = errors.New("pipeline: processing timeout")

	// ErrCoordinationConflict is returned when the coordinator detects an
	// inconsistency that strict failure mode cannot let pass silently.
	ErrCoordinationConflict = errors.New("coordinator: unresolved conflict")

	// ErrPerformanceTargetExceeded is returned when the measured ns/note
	// average exceeds the configured target and fallback is disabled.
	ErrPerformanceTargetExceeded = errors.New("pipeline: performance target exceeded")
)

// PrecisionWarning describes a single tick->division conversion that did
// not divide exactly. These never abort anything; they accumulate on
// PipelineMetrics and are reported at the end of a run.
type PrecisionWarning struct {
	Tick       uint32
	Divisions  int
	PPQ        int
	Rounded    int
}
