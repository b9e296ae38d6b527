package trigger

import "errors"

var (
	// ErrNilDispatch indicates a task was submitted without a dispatch function.
	ErrNilDispatch = errors.New("task has no dispatch function")

	// ErrExecutorNotStarted indicates Submit was called before Start.
	ErrExecutorNotStarted = errors.New("executor not started")

	// ErrExecutorStopped indicates Submit was called after Stop.
	ErrExecutorStopped = errors.New("executor stopped")

	// ErrExecutorAlreadyStarted indicates Start was called twice.
	ErrExecutorAlreadyStarted = errors.New("executor already started")

	// ErrQueueFull indicates the task queue is at capacity and the task was dropped.
	ErrQueueFull = errors.New("executor queue full")

	// ErrStopTimeout indicates in-flight tasks did not finish before the stop deadline.
	ErrStopTimeout = errors.New("executor stop timed out")
)
