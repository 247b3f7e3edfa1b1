// Package ui provides cross-thread marshalling onto the UI-owning thread.
// All rendered-state mutations (diagnostic highlights, status updates) are
// posted through an Executor and drained once per host event-loop
// iteration, never invoked directly from background goroutines.
package ui

import (
	"sync"

	"go.uber.org/zap"
)

// Executor queues actions for the UI thread. The host event loop attaches a
// wake function and calls Drain once per iteration. With no loop attached,
// posted actions run inline on the calling goroutine as a best-effort
// fallback and any panic is swallowed; that is acceptable for UI work, not
// for protocol-critical sends.
type Executor struct {
	mu      sync.Mutex
	pending []func()
	wake    func()
	logger  *zap.Logger
}

// NewExecutor creates an executor with no loop attached.
func NewExecutor(logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{logger: logger}
}

// Attach registers the host loop's wake function. Wake is called after an
// action is posted so the loop schedules a Drain on its next iteration.
func (e *Executor) Attach(wake func()) {
	e.mu.Lock()
	e.wake = wake
	e.mu.Unlock()
}

// Detach removes the host loop. Subsequently posted actions run inline.
func (e *Executor) Detach() {
	e.mu.Lock()
	e.wake = nil
	e.mu.Unlock()
}

// Post schedules fn on the UI thread. Actions run in post order.
func (e *Executor) Post(fn func()) {
	if fn == nil {
		return
	}

	e.mu.Lock()
	wake := e.wake
	if wake != nil {
		e.pending = append(e.pending, fn)
	}
	e.mu.Unlock()

	if wake != nil {
		wake()
		return
	}

	e.runInline(fn)
}

// Drain runs all pending actions. Must be called from the UI thread.
func (e *Executor) Drain() {
	e.mu.Lock()
	batch := e.pending
	e.pending = nil
	e.mu.Unlock()

	for _, fn := range batch {
		e.run(fn)
	}
}

// Pending returns the number of queued actions.
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

func (e *Executor) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("ui action panicked", zap.Any("panic", r))
		}
	}()
	fn()
}

// runInline executes the fallback path with failures swallowed.
func (e *Executor) runInline(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Debug("inline ui action panicked", zap.Any("panic", r))
		}
	}()
	fn()
}
