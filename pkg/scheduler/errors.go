package scheduler

import "errors"

var (
	// ErrUnknownService is returned when a task targets a service that is
	// not in the registry.
	ErrUnknownService = errors.New("service not registered")

	// ErrTaskNotFound is returned for lookups of task ids the scheduler
	// has never seen.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskTimeout marks a task that exceeded its execution bound while
	// waiting for the target to reach the expected state.
	ErrTaskTimeout = errors.New("timed out waiting for target state")

	// ErrTaskNotCancellable is returned when cancelling a task that has
	// already finished.
	ErrTaskNotCancellable = errors.New("task already finished")
)
