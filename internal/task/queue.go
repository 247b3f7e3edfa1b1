// Package task provides a bounded, rate-limited runner for deferred
// low-priority work such as language-server availability probes and
// periodic workspace maintenance. It must never compete with foreground
// editor responsiveness, so the queue is small and overflow rejects.
package task

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of deferred work. A returned error is logged and does not
// affect other tasks.
type Task func(ctx context.Context) error

// Queue executes tasks in FIFO order across a fixed pool of workers, with a
// minimum delay between tasks on each worker.
type Queue struct {
	capacity int
	workers  int
	throttle time.Duration
	logger   *zap.Logger

	mu      sync.Mutex // guards queue creation and teardown
	queue   chan Task
	running atomic.Bool
	wg      sync.WaitGroup

	executed atomic.Uint64
	failed   atomic.Uint64
	rejected atomic.Uint64
}

// Option configures a Queue.
type Option func(*Queue)

// WithCapacity sets the queue capacity.
func WithCapacity(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.capacity = n
		}
	}
}

// WithWorkers sets the worker concurrency degree.
func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithThrottle sets the minimum delay each worker waits between tasks.
func WithThrottle(d time.Duration) Option {
	return func(q *Queue) {
		if d >= 0 {
			q.throttle = d
		}
	}
}

// NewQueue creates a queue (not yet started).
func NewQueue(logger *zap.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &Queue{
		capacity: 32,
		workers:  2,
		throttle: 100 * time.Millisecond,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start launches the worker pool.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running.Load() {
		return ErrAlreadyRunning
	}

	q.queue = make(chan Task, q.capacity)
	q.running.Store(true)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
	return nil
}

// Enqueue adds a task in FIFO order. The queue is best-effort: when it is
// at capacity the task is rejected with ErrQueueFull rather than blocking
// the caller.
func (q *Queue) Enqueue(t Task) error {
	if t == nil {
		return ErrNilTask
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running.Load() {
		return ErrNotRunning
	}

	select {
	case q.queue <- t:
		return nil
	default:
		q.rejected.Add(1)
		return ErrQueueFull
	}
}

// Stop closes the queue and waits for in-flight and already-queued tasks to
// finish, or for the context to expire.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running.Swap(false) {
		q.mu.Unlock()
		return ErrNotRunning
	}
	close(q.queue)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats reports queue counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Executed: q.executed.Load(),
		Failed:   q.failed.Load(),
		Rejected: q.rejected.Load(),
	}
}

// Stats holds queue counters.
type Stats struct {
	Executed uint64
	Failed   uint64
	Rejected uint64
}

// worker pulls tasks until the queue closes, throttling between tasks.
func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()

	for t := range q.queue {
		q.run(ctx, t)
		if q.throttle > 0 {
			select {
			case <-time.After(q.throttle):
			case <-ctx.Done():
			}
		}
	}
}

// run executes one task, isolating failures and panics to that task.
func (q *Queue) run(ctx context.Context, t Task) {
	defer func() {
		if r := recover(); r != nil {
			q.failed.Add(1)
			q.logger.Error("background task panicked", zap.Any("panic", r))
		}
	}()

	q.executed.Add(1)
	if err := t(ctx); err != nil {
		q.failed.Add(1)
		q.logger.Warn("background task failed", zap.Error(err))
	}
}
