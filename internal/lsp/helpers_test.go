package lsp

import (
	"context"
	"sync"

	"go.lsp.dev/protocol"
	"go.uber.org/zap"

	"github.com/blockforge/blockforge/internal/config"
	"github.com/blockforge/blockforge/internal/event"
)

// recordingSyncer captures document-sync notifications in send order.
type recordingSyncer struct {
	mu      sync.Mutex
	opens   []*protocol.DidOpenTextDocumentParams
	changes []*protocol.DidChangeTextDocumentParams
	closes  []*protocol.DidCloseTextDocumentParams
}

func (r *recordingSyncer) DidOpen(_ context.Context, p *protocol.DidOpenTextDocumentParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opens = append(r.opens, p)
	return nil
}

func (r *recordingSyncer) DidChange(_ context.Context, p *protocol.DidChangeTextDocumentParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, p)
	return nil
}

func (r *recordingSyncer) DidClose(_ context.Context, p *protocol.DidCloseTextDocumentParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes = append(r.closes, p)
	return nil
}

func (r *recordingSyncer) openCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.opens)
}

func (r *recordingSyncer) changeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changes)
}

func (r *recordingSyncer) closeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.closes)
}

// fakeView is an in-memory editor pane.
type fakeView struct {
	mu       sync.Mutex
	text     string
	onChange func()
	applied  [][]Highlight
	cleared  int
}

func (v *fakeView) Text() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.text
}

func (v *fakeView) OnChange(fn func()) {
	v.mu.Lock()
	v.onChange = fn
	v.mu.Unlock()
}

func (v *fakeView) ApplyHighlights(batch []Highlight) {
	v.mu.Lock()
	v.applied = append(v.applied, batch)
	v.mu.Unlock()
}

func (v *fakeView) ClearHighlights() {
	v.mu.Lock()
	v.cleared++
	v.mu.Unlock()
}

// edit replaces the text and fires the change callback, the way the GUI
// does after a keystroke.
func (v *fakeView) edit(text string) {
	v.mu.Lock()
	v.text = text
	fn := v.onChange
	v.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (v *fakeView) lastBatch() []Highlight {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.applied) == 0 {
		return nil
	}
	return v.applied[len(v.applied)-1]
}

func (v *fakeView) batchCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.applied)
}

func (v *fakeView) clearCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cleared
}

// newTestConn builds a Conn without a process behind it.
func newTestConn(key Key, syncer DocumentSyncer, bus *event.Bus) *Conn {
	return &Conn{
		key:    key,
		bus:    bus,
		logger: zap.NewNop(),
		ready:  newReadySignal(),
		syncer: syncer,
	}
}

// newTestManager returns a manager whose connections are in-memory fakes
// wired to the given syncer.
func newTestManager(bus *event.Bus, syncer DocumentSyncer, servers map[string]config.ServerConfig) (*Manager, *[]*Conn) {
	m := NewManager(bus, zap.NewNop(), WithServers(servers))
	started := &[]*Conn{}
	m.startFn = func(_ context.Context, key Key, _ config.ServerConfig) (*Conn, error) {
		c := newTestConn(key, syncer, bus)
		*started = append(*started, c)
		return c, nil
	}
	return m, started
}
