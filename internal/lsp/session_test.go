package lsp

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"

	"github.com/blockforge/blockforge/internal/event"
	"github.com/blockforge/blockforge/internal/project"
	"github.com/blockforge/blockforge/internal/ui"
)

type sessionFixture struct {
	bus    *event.Bus
	exec   *ui.Executor
	syncer *recordingSyncer
	mgr    *Manager
	proj   project.Project
	conns  *[]*Conn
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	bus := event.NewBus(zap.NewNop())
	syncer := &recordingSyncer{}
	mgr, conns := newTestManager(bus, syncer, testServers)
	return &sessionFixture{
		bus:    bus,
		exec:   ui.NewExecutor(zap.NewNop()), // no loop attached: renders run inline
		syncer: syncer,
		mgr:    mgr,
		proj:   testProject(t),
		conns:  conns,
	}
}

func TestSession_OpenEditDiagnoseClose(t *testing.T) {
	f := newSessionFixture(t)

	view := &fakeView{text: "{}"}
	path := filepath.Join(f.proj.Root, "a.json")

	s, err := NewSession(context.Background(), f.mgr, f.bus, f.exec, f.proj, path, view, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, *f.conns, 1)
	conn := (*f.conns)[0]

	assert.Equal(t, SessionInitializing, s.State())
	assert.Zero(t, f.syncer.openCount(), "no didOpen before readiness")

	conn.ready.resolve(nil)
	require.Eventually(t, func() bool { return s.State() == SessionReady },
		time.Second, 5*time.Millisecond)

	require.Equal(t, 1, f.syncer.openCount())
	open := f.syncer.opens[0]
	assert.Equal(t, s.URI(), open.TextDocument.URI)
	assert.Equal(t, protocol.LanguageIdentifier("json"), open.TextDocument.LanguageID)
	assert.Equal(t, int32(0), open.TextDocument.Version)
	assert.Equal(t, "{}", open.TextDocument.Text)

	view.edit(`{"a":1}`)
	require.Equal(t, 1, f.syncer.changeCount())
	change := f.syncer.changes[0]
	assert.Equal(t, int32(1), change.TextDocument.Version)
	require.Len(t, change.ContentChanges, 1)
	assert.Equal(t, `{"a":1}`, change.ContentChanges[0].Text, "full-document sync")

	// Diagnostic on line 0, chars 0-2 renders one warning-colored directive.
	f.bus.Publish(event.DiagnosticsEvent{
		URI: s.URI(),
		Diagnostics: []protocol.Diagnostic{{
			Range: protocol.Range{
				Start: protocol.Position{Line: 0, Character: 0},
				End:   protocol.Position{Line: 0, Character: 2},
			},
			Severity: protocol.DiagnosticSeverityWarning,
			Message:  "trailing content",
		}},
	})
	batch := view.lastBatch()
	require.Len(t, batch, 1)
	assert.Equal(t, 0, batch[0].Start)
	assert.Equal(t, 2, batch[0].End)
	assert.Equal(t, SeverityColor(protocol.DiagnosticSeverityWarning), batch[0].Color)

	require.NoError(t, s.Close())
	assert.Equal(t, SessionClosed, s.State())
	assert.Equal(t, 1, f.syncer.closeCount())
	assert.Equal(t, 1, view.clearCount())
	assert.Zero(t, f.bus.SubscriberCount())
	assert.Zero(t, f.mgr.Refs(f.proj, "json"))
}

func TestSession_VersionsStrictlyIncrease(t *testing.T) {
	f := newSessionFixture(t)
	view := &fakeView{text: ""}
	path := filepath.Join(f.proj.Root, "Mod.java")

	s, err := NewSession(context.Background(), f.mgr, f.bus, f.exec, f.proj, path, view, zap.NewNop())
	require.NoError(t, err)
	(*f.conns)[0].ready.resolve(nil)
	require.Eventually(t, func() bool { return s.State() == SessionReady },
		time.Second, 5*time.Millisecond)

	for i := 0; i < 5; i++ {
		view.edit(fmt.Sprintf("class Mod { int x = %d; }", i))
	}

	require.Equal(t, 1, f.syncer.openCount())
	assert.Equal(t, int32(0), f.syncer.opens[0].TextDocument.Version)

	require.Equal(t, 5, f.syncer.changeCount())
	for i, change := range f.syncer.changes {
		assert.Equal(t, int32(i+1), change.TextDocument.Version,
			"versions must increase by exactly 1 with no gaps or repeats")
	}
	assert.Equal(t, int32(6), s.Version())
}

func TestSession_CloseBeforeReadiness(t *testing.T) {
	f := newSessionFixture(t)
	view := &fakeView{text: "{}"}
	path := filepath.Join(f.proj.Root, "a.json")

	s, err := NewSession(context.Background(), f.mgr, f.bus, f.exec, f.proj, path, view, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, SessionInitializing, s.State())

	require.NoError(t, s.Close())
	assert.Zero(t, f.bus.SubscriberCount(), "close must unsubscribe")
	assert.Zero(t, f.mgr.Refs(f.proj, "json"), "close must release exactly once")

	// A late readiness resolution must not raise a didOpen on the dead
	// session.
	(*f.conns)[0].ready.resolve(nil)
	assert.Never(t, func() bool { return f.syncer.openCount() > 0 },
		200*time.Millisecond, 20*time.Millisecond)
}

func TestSession_RepeatedCloseIsNoOp(t *testing.T) {
	f := newSessionFixture(t)
	s, _ := openReadySession(t, f, "a.json", "{}")

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Equal(t, 1, f.syncer.closeCount(), "only one didClose")
	assert.Zero(t, f.mgr.Refs(f.proj, "json"), "exactly one release")
}

func TestSession_DiagnosticsExactURIMatch(t *testing.T) {
	f := newSessionFixture(t)
	s, view := openReadySession(t, f, "a.json", "{}")

	// Prefix and sibling URIs must not render into this session.
	f.bus.Publish(event.DiagnosticsEvent{URI: s.URI() + ".bak"})
	f.bus.Publish(event.DiagnosticsEvent{URI: protocol.DocumentURI("file:///other/a.json")})
	assert.Zero(t, view.batchCount())

	f.bus.Publish(event.DiagnosticsEvent{
		URI:         s.URI(),
		Diagnostics: []protocol.Diagnostic{{Message: "x"}},
	})
	assert.Equal(t, 1, view.batchCount())

	require.NoError(t, s.Close())
}

func TestSession_EditsBeforeReadinessAreNotSent(t *testing.T) {
	f := newSessionFixture(t)
	view := &fakeView{text: "{}"}
	path := filepath.Join(f.proj.Root, "a.json")

	s, err := NewSession(context.Background(), f.mgr, f.bus, f.exec, f.proj, path, view, zap.NewNop())
	require.NoError(t, err)

	view.edit(`{"early":true}`)
	assert.Zero(t, f.syncer.changeCount())
	assert.Equal(t, int32(0), s.Version())

	// The eventual didOpen carries the current text, so nothing is lost.
	(*f.conns)[0].ready.resolve(nil)
	require.Eventually(t, func() bool { return f.syncer.openCount() == 1 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, `{"early":true}`, f.syncer.opens[0].TextDocument.Text)

	require.NoError(t, s.Close())
}

func TestSession_DiagnosticsAfterCloseIgnored(t *testing.T) {
	f := newSessionFixture(t)
	s, view := openReadySession(t, f, "a.json", "{}")
	require.NoError(t, s.Close())

	f.bus.Publish(event.DiagnosticsEvent{
		URI:         s.URI(),
		Diagnostics: []protocol.Diagnostic{{Message: "late"}},
	})
	assert.Zero(t, view.batchCount())
}

func TestSession_ReadinessFailureKeepsSessionInitializing(t *testing.T) {
	f := newSessionFixture(t)
	view := &fakeView{text: "{}"}
	path := filepath.Join(f.proj.Root, "a.json")

	s, err := NewSession(context.Background(), f.mgr, f.bus, f.exec, f.proj, path, view, zap.NewNop())
	require.NoError(t, err)

	(*f.conns)[0].ready.resolve(fmt.Errorf("initialize timed out"))
	assert.Never(t, func() bool { return f.syncer.openCount() > 0 },
		200*time.Millisecond, 20*time.Millisecond)
	assert.Equal(t, SessionInitializing, s.State())

	// Close still works from the stuck state.
	require.NoError(t, s.Close())
	assert.Zero(t, f.syncer.closeCount(), "no didClose for a never-opened document")
	assert.Zero(t, f.mgr.Refs(f.proj, "json"))
}

func TestSession_UnknownFileType(t *testing.T) {
	f := newSessionFixture(t)
	view := &fakeView{}

	_, err := NewSession(context.Background(), f.mgr, f.bus, f.exec, f.proj,
		filepath.Join(f.proj.Root, "texture.png"), view, zap.NewNop())
	assert.ErrorIs(t, err, ErrNoLanguage)
	assert.Zero(t, f.bus.SubscriberCount())
}

func TestSession_SameDocumentTwiceSharesConnection(t *testing.T) {
	f := newSessionFixture(t)
	s1, _ := openReadySession(t, f, "a.json", "{}")
	s2, _ := openReadySession(t, f, "b.json", "[]")

	require.Len(t, *f.conns, 1, "same project+language shares one connection")
	assert.Equal(t, 2, f.mgr.Refs(f.proj, "json"))

	require.NoError(t, s1.Close())
	assert.Equal(t, 1, f.mgr.Refs(f.proj, "json"))
	require.NoError(t, s2.Close())
	assert.Zero(t, f.mgr.Refs(f.proj, "json"))
}

// openReadySession opens a session and drives its connection to readiness.
func openReadySession(t *testing.T, f *sessionFixture, name, text string) (*Session, *fakeView) {
	t.Helper()
	view := &fakeView{text: text}
	path := filepath.Join(f.proj.Root, name)

	s, err := NewSession(context.Background(), f.mgr, f.bus, f.exec, f.proj, path, view, zap.NewNop())
	require.NoError(t, err)

	conn := (*f.conns)[len(*f.conns)-1]
	conn.ready.resolve(nil)
	require.Eventually(t, func() bool { return s.State() == SessionReady },
		time.Second, 5*time.Millisecond)
	return s, view
}
