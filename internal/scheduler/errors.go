package scheduler

import (
	"errors"
	"fmt"
)

// Sentinel errors for the task scheduler.
var (
	// ErrSchedulerClosed is returned by Submit after CancelAll or Close.
	ErrSchedulerClosed = errors.New("scheduler closed")

	// ErrUnknownTask is returned when awaiting a task ID that was never submitted.
	ErrUnknownTask = errors.New("unknown task")

	// ErrTaskCancelled marks a task that exited due to cancellation rather
	// than ordinary failure.
	ErrTaskCancelled = errors.New("task cancelled")

	// ErrAwaitTimeout is returned when a bounded wait elapses. The task
	// itself keeps running; only the wait is abandoned.
	ErrAwaitTimeout = errors.New("await timeout")

	// ErrNoSlotAvailable indicates a concurrency slot could not be acquired.
	ErrNoSlotAvailable = errors.New("no execution slot available")

	// ErrUnknownPressureLevel is returned when parsing an unrecognized
	// pressure level name.
	ErrUnknownPressureLevel = errors.New("unknown pressure level")
)

// TaskError pairs a failed task with its execution error. Task failures are
// collected rather than re-raised so one bad task never aborts its siblings.
type TaskError struct {
	TaskID TaskID
	Err    error
}

// Error implements the error interface.
func (te TaskError) Error() string {
	return fmt.Sprintf("task %s: %v", te.TaskID, te.Err)
}

// Unwrap exposes the underlying execution error.
func (te TaskError) Unwrap() error {
	return te.Err
}
