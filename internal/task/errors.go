package task

import "errors"

var (
	// ErrAlreadyRunning is returned by Start on a running queue.
	ErrAlreadyRunning = errors.New("task: queue already running")

	// ErrNotRunning is returned when the queue has not been started or has
	// been stopped.
	ErrNotRunning = errors.New("task: queue not running")

	// ErrQueueFull is returned by Enqueue when the queue is at capacity.
	// Low-priority work is rejected rather than blocking the caller.
	ErrQueueFull = errors.New("task: queue full")

	// ErrNilTask is returned when a nil task is enqueued.
	ErrNilTask = errors.New("task: nil task")
)
