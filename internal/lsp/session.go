package lsp

import (
	"context"
	"sync"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/zap"

	"github.com/blockforge/blockforge/internal/event"
	"github.com/blockforge/blockforge/internal/project"
	"github.com/blockforge/blockforge/internal/ui"
)

// SessionState is the lifecycle state of a document session.
type SessionState int

const (
	// SessionInitializing means the session is waiting on the shared
	// connection's readiness signal.
	SessionInitializing SessionState = iota

	// SessionReady means didOpen has been sent and edits are forwarded.
	SessionReady

	// SessionClosed is terminal.
	SessionClosed
)

// String returns a human-readable state name.
func (s SessionState) String() string {
	switch s {
	case SessionInitializing:
		return "initializing"
	case SessionReady:
		return "ready"
	case SessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session keeps one open document synchronized with its language server.
// It owns the document's monotonic version counter, subscribes to
// diagnostics for its URI, and renders them through the UI executor.
//
// All protocol sends for a document happen under the session mutex, so
// version numbers have a single writer and change notifications cannot
// reach the server out of order.
type Session struct {
	mu sync.Mutex

	uri      protocol.DocumentURI
	language protocol.LanguageIdentifier
	proj     project.Project

	view View
	conn *Conn
	mgr  *Manager
	bus  *event.Bus
	exec *ui.Executor

	subID   event.SubscriptionID
	version int32
	state   SessionState

	logger *zap.Logger
}

// NewSession opens a document session: it acquires the shared connection
// for the file's language, subscribes to diagnostics, and arms the
// readiness continuation that will send didOpen. The returned session is
// Initializing until the connection's handshake resolves.
func NewSession(ctx context.Context, mgr *Manager, bus *event.Bus, exec *ui.Executor,
	proj project.Project, path string, view View, logger *zap.Logger) (*Session, error) {

	if logger == nil {
		logger = zap.NewNop()
	}

	lang := LanguageForPath(path)
	if lang == "" {
		return nil, ErrNoLanguage
	}

	conn, err := mgr.Acquire(ctx, proj, lang)
	if err != nil {
		return nil, err
	}

	s := &Session{
		uri:      uri.File(path),
		language: lang,
		proj:     proj,
		view:     view,
		conn:     conn,
		mgr:      mgr,
		bus:      bus,
		exec:     exec,
		state:    SessionInitializing,
	}
	s.logger = logger.With(zap.String("uri", string(s.uri)))

	s.subID = bus.Subscribe(s.handleDiagnostics)
	view.OnChange(s.handleChange)
	conn.OnReady(s.handleReady)

	return s, nil
}

// URI returns the document URI.
func (s *Session) URI() protocol.DocumentURI {
	return s.uri
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Version returns the next version number to be sent.
func (s *Session) Version() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// handleReady is the readiness continuation. A session closed before the
// handshake resolved must not send didOpen on a dead session, so the state
// is re-checked under the lock.
func (s *Session) handleReady(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SessionInitializing {
		return
	}
	if err != nil {
		s.logger.Warn("language server never became ready", zap.Error(err))
		return
	}

	text := s.view.Text()
	openErr := s.conn.DidOpen(context.Background(), &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        s.uri,
			LanguageID: s.language,
			Version:    s.version,
			Text:       text,
		},
	})
	if openErr != nil {
		s.logger.Warn("didOpen failed", zap.Error(openErr))
	}

	// The version was consumed whether or not the send stuck; it must
	// never repeat.
	s.version++
	s.state = SessionReady
}

// handleChange forwards one edit as a full-document didChange. Edits that
// arrive before readiness are not buffered: the eventual didOpen reads the
// then-current text from the view.
func (s *Session) handleChange() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SessionReady {
		return
	}

	text := s.view.Text()
	err := s.conn.DidChange(context.Background(), &protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: s.uri},
			Version:                s.version,
		},
		ContentChanges: []protocol.TextDocumentContentChangeEvent{{Text: text}},
	})
	if err != nil {
		s.logger.Warn("didChange failed", zap.Error(err))
	}
	s.version++
}

// handleDiagnostics filters bus traffic down to this document by exact URI
// match and marshals the rendering onto the UI thread.
func (s *Session) handleDiagnostics(ev event.DiagnosticsEvent) {
	if ev.URI != s.uri {
		return
	}

	s.mu.Lock()
	if s.state == SessionClosed {
		s.mu.Unlock()
		return
	}
	text := s.view.Text()
	s.mu.Unlock()

	batch := buildHighlights(text, ev.Diagnostics)
	s.exec.Post(func() {
		s.view.ApplyHighlights(batch)
	})
}

// Hover requests hover information at a position in this document.
func (s *Session) Hover(ctx context.Context, pos protocol.Position) (*protocol.Hover, error) {
	if s.State() != SessionReady {
		return nil, ErrNotReady
	}
	return s.conn.Hover(ctx, &protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: s.uri},
			Position:     pos,
		},
	})
}

// Completion requests completion items at a position in this document.
func (s *Session) Completion(ctx context.Context, pos protocol.Position) (*protocol.CompletionList, error) {
	if s.State() != SessionReady {
		return nil, ErrNotReady
	}
	return s.conn.Completion(ctx, &protocol.CompletionParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: s.uri},
			Position:     pos,
		},
	})
}

// Close ends the session: didClose if the document was ever opened, clear
// rendered diagnostics, drop the bus subscription, and release the shared
// connection exactly once. Safe to call in any state, including before
// readiness resolves; repeated calls are no-ops.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == SessionClosed {
		s.mu.Unlock()
		return nil
	}
	wasReady := s.state == SessionReady
	s.state = SessionClosed
	s.mu.Unlock()

	if wasReady {
		err := s.conn.DidClose(context.Background(), &protocol.DidCloseTextDocumentParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: s.uri},
		})
		if err != nil {
			s.logger.Warn("didClose failed", zap.Error(err))
		}
	}

	s.exec.Post(s.view.ClearHighlights)

	if err := s.bus.Unsubscribe(s.subID); err != nil {
		s.logger.Warn("unsubscribe failed", zap.Error(err))
	}

	return s.mgr.Release(s.proj, s.language)
}
