package lsp

import (
	"context"
	"sync"
)

// readySignal is a one-shot completion marking the end of the initialize
// handshake. Exactly one producer resolves it, at most once; any number of
// consumers may wait or attach continuations before or after resolution.
// The single-assignment structure makes the exactly-once guarantee
// structural rather than a flag plus callback list.
type readySignal struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newReadySignal() *readySignal {
	return &readySignal{done: make(chan struct{})}
}

// resolve completes the signal. Later calls are no-ops; the first error
// (or nil) wins.
func (s *readySignal) resolve(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}

// wait blocks until the signal resolves or the context expires. It returns
// the resolution error once resolved.
func (s *readySignal) wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// onReady attaches a continuation. If the signal is already resolved the
// continuation runs immediately on the calling goroutine; otherwise it runs
// once on resolution.
func (s *readySignal) onReady(fn func(error)) {
	select {
	case <-s.done:
		fn(s.err)
	default:
		go func() {
			<-s.done
			fn(s.err)
		}()
	}
}

// resolved reports whether the signal has completed.
func (s *readySignal) resolved() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
