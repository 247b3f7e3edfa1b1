// Package event provides the in-process publish/subscribe channel that
// decouples language-server connections from open document sessions.
// Connections publish diagnostic batches without knowing which sessions
// are listening; sessions subscribe and filter by URI on their own side.
package event

import (
	"sync"

	"github.com/google/uuid"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"
)

// DiagnosticsEvent carries one diagnostics batch for a single document,
// exactly as received from a language server.
type DiagnosticsEvent struct {
	URI         protocol.DocumentURI
	Diagnostics []protocol.Diagnostic
}

// Handler receives published diagnostics events.
type Handler func(DiagnosticsEvent)

// SubscriptionID identifies an active subscription.
type SubscriptionID string

// Bus is a filterless diagnostics fan-out. Every subscriber receives every
// published event; a panicking subscriber is isolated so it cannot block
// delivery to the others or crash the publishing connection.
type Bus struct {
	mu     sync.RWMutex
	subs   map[SubscriptionID]Handler
	order  []SubscriptionID
	logger *zap.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subs:   make(map[SubscriptionID]Handler),
		logger: logger,
	}
}

// Subscribe registers a handler and returns its subscription ID.
// Safe for concurrent use.
func (b *Bus) Subscribe(h Handler) SubscriptionID {
	id := SubscriptionID(uuid.NewString())

	b.mu.Lock()
	b.subs[id] = h
	b.order = append(b.order, id)
	b.mu.Unlock()

	return id
}

// Unsubscribe removes a subscription. Returns ErrSubscriptionNotFound if
// the ID is unknown or already removed.
func (b *Bus) Unsubscribe(id SubscriptionID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[id]; !ok {
		return ErrSubscriptionNotFound
	}
	delete(b.subs, id)
	for i, sid := range b.order {
		if sid == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return nil
}

// Publish delivers the event to every current subscriber, synchronously and
// in subscription order. Synchronous delivery preserves per-URI publish
// order for callers that publish from a single goroutine per connection.
func (b *Bus) Publish(ev DiagnosticsEvent) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		if h, ok := b.subs[id]; ok {
			handlers = append(handlers, h)
		}
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(h, ev)
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// deliver invokes one handler, recovering from panics so a faulty
// subscriber cannot break fan-out.
func (b *Bus) deliver(h Handler, ev DiagnosticsEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("diagnostics subscriber panicked",
				zap.String("uri", string(ev.URI)),
				zap.Any("panic", r))
		}
	}()
	h(ev)
}
