package scheduler

import "errors"

// Error taxonomy per spec.md §7. UnknownJob and RunNotFound are
// surfaced to callers; the rest (ForkFailed/ExecFailed,
// StorePersistenceError, ClientOverflow) never leave the engine loop —
// they are logged or turned into events instead of returned errors.
var (
	// ErrUnknownJob is returned by QueueJob for a name with no loaded
	// configuration.
	ErrUnknownJob = errors.New("laminar: unknown job")
	// ErrRunNotFound is returned by WaitForRun when a (job, build#) is
	// neither active nor present in persisted history, and by Abort when
	// the (job, build#) is not active.
	ErrRunNotFound = errors.New("laminar: run not found")
)
