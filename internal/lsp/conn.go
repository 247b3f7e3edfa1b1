// Package lsp is the client-integration layer between open editor
// documents and external language-server processes. It multiplexes many
// open documents onto shared per-project-per-language connections, drives
// the open/change/close document-sync protocol with full-text updates, and
// fans incoming diagnostics out to the owning sessions through the event
// bus. The JSON-RPC wire protocol itself comes from go.lsp.dev.
package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/zap"

	"github.com/blockforge/blockforge/internal/config"
	"github.com/blockforge/blockforge/internal/event"
)

// requestTimeout bounds individual requests (hover, completion) after the
// handshake; the handshake itself uses the configured init timeout.
const requestTimeout = 10 * time.Second

// Key identifies a shared connection. Language servers are language- and
// workspace-specific, so a connection is never shared across different
// languages or projects.
type Key struct {
	Project  string
	Language protocol.LanguageIdentifier
}

// String returns the key in "language@project" form for logs and errors.
func (k Key) String() string {
	return string(k.Language) + "@" + k.Project
}

// DocumentSyncer is the server-facing handle for document lifecycle
// notifications. protocol.Server satisfies it; tests substitute a recorder.
type DocumentSyncer interface {
	DidOpen(ctx context.Context, params *protocol.DidOpenTextDocumentParams) error
	DidChange(ctx context.Context, params *protocol.DidChangeTextDocumentParams) error
	DidClose(ctx context.Context, params *protocol.DidCloseTextDocumentParams) error
}

// Conn is one logical link to a running language server for a (project,
// language) pair. It owns the server process, the JSON-RPC connection, and
// the one-shot readiness signal resolved by the initialize handshake.
// Document-sync calls are pure delegations; the Conn buffers no document
// content. Reference counting is the Manager's job.
type Conn struct {
	key    Key
	cfg    config.ServerConfig
	bus    *event.Bus
	logger *zap.Logger

	proc   *serverProcess
	rpc    jsonrpc2.Conn
	server protocol.Server
	syncer DocumentSyncer

	ready *readySignal

	capsMu sync.Mutex
	caps   protocol.ServerCapabilities

	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newConn(key Key, cfg config.ServerConfig, bus *event.Bus, logger *zap.Logger) *Conn {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Conn{
		key: key,
		cfg: cfg,
		bus: bus,
		logger: logger.With(
			zap.String("language", string(key.Language)),
			zap.String("project", key.Project),
		),
		ready: newReadySignal(),
	}
}

// start spawns the server process, wires the JSON-RPC connection, and
// begins the initialize handshake asynchronously. The connection outlives
// the acquiring call, so its run context is detached from the caller's.
func (c *Conn) start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())

	proc, err := startServerProcess(runCtx, c.cfg, c.key.Project)
	if err != nil {
		cancel()
		return err
	}

	c.cancel = cancel
	c.proc = proc
	c.rpc = jsonrpc2.NewConn(proc.Stream())
	c.rpc.Go(runCtx, c.handler())
	c.server = protocol.ServerDispatcher(c.rpc, c.logger)
	c.syncer = c.server

	go c.handshake(runCtx)
	go c.watchExit(runCtx)
	return nil
}

// handshake performs initialize/initialized and resolves the readiness
// signal exactly once, with the handshake error if any. An unresponsive
// server trips the configured timeout instead of parking sessions forever.
func (c *Conn) handshake(ctx context.Context) {
	hctx, cancel := context.WithTimeout(ctx, c.cfg.InitTimeout())
	defer cancel()

	rootURI := uri.File(c.key.Project)
	result, err := c.server.Initialize(hctx, &protocol.InitializeParams{
		ProcessID:    int32(os.Getpid()),
		RootURI:      rootURI,
		Capabilities: protocol.ClientCapabilities{},
		WorkspaceFolders: []protocol.WorkspaceFolder{{
			URI:  string(rootURI),
			Name: filepath.Base(c.key.Project),
		}},
	})
	if err != nil {
		c.logger.Warn("initialize handshake failed", zap.Error(err))
		c.ready.resolve(fmt.Errorf("initialize %s: %w", c.cfg.Command, err))
		return
	}

	c.capsMu.Lock()
	c.caps = result.Capabilities
	c.capsMu.Unlock()

	if err := c.server.Initialized(hctx, &protocol.InitializedParams{}); err != nil {
		c.logger.Warn("initialized notification failed", zap.Error(err))
		c.ready.resolve(fmt.Errorf("initialized %s: %w", c.cfg.Command, err))
		return
	}

	c.logger.Info("language server ready")
	c.ready.resolve(nil)
}

// watchExit resolves readiness with an error when the server dies before
// completing the handshake, so waiting sessions are not stranded.
func (c *Conn) watchExit(ctx context.Context) {
	select {
	case err := <-c.proc.Exited():
		if !c.ready.resolved() {
			if err == nil {
				err = errors.New("process exited")
			}
			c.ready.resolve(fmt.Errorf("%s exited before initialize: %w", c.cfg.Command, err))
		}
		c.logger.Info("language server exited", zap.Error(err))
	case <-ctx.Done():
	}
}

// handler processes server-to-client traffic. Diagnostics are published
// verbatim on the event bus; the connection does not know which sessions
// are listening.
func (c *Conn) handler() jsonrpc2.Handler {
	return func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
		switch req.Method() {
		case protocol.MethodTextDocumentPublishDiagnostics:
			c.publishDiagnostics(req.Params())
			return reply(ctx, nil, nil)
		case protocol.MethodWindowLogMessage, protocol.MethodWindowShowMessage:
			c.logServerMessage(req.Params())
			return reply(ctx, nil, nil)
		default:
			return jsonrpc2.MethodNotFoundHandler(ctx, reply, req)
		}
	}
}

func (c *Conn) publishDiagnostics(raw json.RawMessage) {
	var params protocol.PublishDiagnosticsParams
	if err := json.Unmarshal(raw, &params); err != nil {
		c.logger.Warn("malformed publishDiagnostics notification", zap.Error(err))
		return
	}
	c.bus.Publish(event.DiagnosticsEvent{
		URI:         params.URI,
		Diagnostics: params.Diagnostics,
	})
}

func (c *Conn) logServerMessage(raw json.RawMessage) {
	var params protocol.LogMessageParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return
	}
	switch params.Type {
	case protocol.MessageTypeError, protocol.MessageTypeWarning:
		c.logger.Warn("server message", zap.String("message", params.Message))
	default:
		c.logger.Debug("server message", zap.String("message", params.Message))
	}
}

// Key returns the connection key.
func (c *Conn) Key() Key {
	return c.key
}

// OnReady attaches a continuation to the readiness signal. It runs
// immediately if the handshake already completed.
func (c *Conn) OnReady(fn func(error)) {
	c.ready.onReady(fn)
}

// Ready blocks until the handshake resolves or the context expires.
func (c *Conn) Ready(ctx context.Context) error {
	return c.ready.wait(ctx)
}

// Capabilities returns the server capabilities from the handshake.
func (c *Conn) Capabilities() protocol.ServerCapabilities {
	c.capsMu.Lock()
	defer c.capsMu.Unlock()
	return c.caps
}

// DidOpen forwards a didOpen notification to the server.
func (c *Conn) DidOpen(ctx context.Context, params *protocol.DidOpenTextDocumentParams) error {
	return c.syncer.DidOpen(ctx, params)
}

// DidChange forwards a didChange notification to the server.
func (c *Conn) DidChange(ctx context.Context, params *protocol.DidChangeTextDocumentParams) error {
	return c.syncer.DidChange(ctx, params)
}

// DidClose forwards a didClose notification to the server.
func (c *Conn) DidClose(ctx context.Context, params *protocol.DidCloseTextDocumentParams) error {
	return c.syncer.DidClose(ctx, params)
}

// Hover requests hover information. Fails with ErrNotReady before the
// handshake completes.
func (c *Conn) Hover(ctx context.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	if err := c.readyNow(); err != nil {
		return nil, err
	}
	rctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	return c.server.Hover(rctx, params)
}

// Completion requests completion items. Fails with ErrNotReady before the
// handshake completes.
func (c *Conn) Completion(ctx context.Context, params *protocol.CompletionParams) (*protocol.CompletionList, error) {
	if err := c.readyNow(); err != nil {
		return nil, err
	}
	rctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	return c.server.Completion(rctx, params)
}

// readyNow reports whether the connection is usable for requests without
// blocking. A resolved handshake failure is reported with its cause even
// when no request path was ever established.
func (c *Conn) readyNow() error {
	if c.ready.resolved() && c.ready.err != nil {
		return fmt.Errorf("%w: %s", ErrNotReady, c.ready.err)
	}
	if c.server == nil || !c.ready.resolved() {
		return ErrNotReady
	}
	return nil
}

// close tears down the underlying server link exactly once: polite
// shutdown/exit first, then the process is killed and the connection
// closed. Called by the Manager when the reference count reaches zero.
func (c *Conn) close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		err = c.teardown(ctx)
	})
	return err
}

func (c *Conn) teardown(ctx context.Context) error {
	// Unblock anyone still parked on the handshake.
	c.ready.resolve(ErrConnClosed)

	if c.server != nil {
		sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := c.server.Shutdown(sctx); err != nil {
			c.logger.Debug("shutdown request failed", zap.Error(err))
		}
		if err := c.server.Exit(sctx); err != nil {
			c.logger.Debug("exit notification failed", zap.Error(err))
		}
		cancel()
	}

	if c.cancel != nil {
		c.cancel()
	}

	var errs []error
	if c.rpc != nil {
		if err := c.rpc.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.proc != nil {
		c.proc.Kill()
	}

	c.logger.Info("connection closed")
	return errors.Join(errs...)
}
