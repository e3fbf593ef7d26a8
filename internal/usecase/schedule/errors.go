// Package schedule registers collection jobs with a trigger driver, keeps each
// job from overlapping with itself, and records one RunRecord per invocation.
package schedule

import "errors"

// Sentinel errors for scheduler operations.
var (
	// ErrJobRunning is returned when a trigger arrives while the job's previous
	// run is still in flight. The trigger is skipped.
	ErrJobRunning = errors.New("job is already running")

	// ErrUnknownJob is returned for an unregistered job ID.
	ErrUnknownJob = errors.New("unknown job")

	// ErrShutdown is returned for triggers arriving after Shutdown.
	ErrShutdown = errors.New("scheduler is shut down")

	// ErrDuplicateJob is returned when two definitions share an ID.
	ErrDuplicateJob = errors.New("duplicate job id")
)
