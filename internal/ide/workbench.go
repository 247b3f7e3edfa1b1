// Package ide wires the editor-facing services together: one event bus,
// one connection manager, one background task queue, and one UI executor
// per workspace, with a document-session registry on top.
package ide

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"sync"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/zap"

	"github.com/blockforge/blockforge/internal/config"
	"github.com/blockforge/blockforge/internal/event"
	"github.com/blockforge/blockforge/internal/lsp"
	"github.com/blockforge/blockforge/internal/project"
	"github.com/blockforge/blockforge/internal/task"
	"github.com/blockforge/blockforge/internal/ui"
)

// ErrNoSession is returned when closing a document that is not open.
var ErrNoSession = errors.New("no session for document")

// Workbench owns the per-workspace services and the open-document
// registry. The GUI holds exactly one Workbench per workspace window.
type Workbench struct {
	cfg    *config.Config
	proj   project.Project
	logger *zap.Logger

	bus   *event.Bus
	mgr   *lsp.Manager
	queue *task.Queue
	exec  *ui.Executor

	mu       sync.Mutex
	sessions map[protocol.DocumentURI]*lsp.Session
}

// New builds a workbench for one workspace. Nothing is started; call
// Start before opening documents.
func New(cfg *config.Config, proj project.Project, logger *zap.Logger) *Workbench {
	if logger == nil {
		logger = zap.NewNop()
	}
	bus := event.NewBus(logger)
	return &Workbench{
		cfg:    cfg,
		proj:   proj,
		logger: logger,
		bus:    bus,
		mgr:    lsp.NewManager(bus, logger, lsp.WithServers(cfg.Servers)),
		queue: task.NewQueue(logger,
			task.WithCapacity(cfg.Tasks.Capacity),
			task.WithWorkers(cfg.Tasks.Workers),
			task.WithThrottle(cfg.Tasks.Throttle()),
		),
		exec:     ui.NewExecutor(logger),
		sessions: make(map[protocol.DocumentURI]*lsp.Session),
	}
}

// Start brings up the task queue and enqueues the startup probes. The
// probes are best-effort; a full queue or a failed probe never blocks
// opening documents.
func (w *Workbench) Start(ctx context.Context) error {
	if err := w.queue.Start(ctx); err != nil {
		return err
	}
	for _, t := range []struct {
		name string
		fn   task.Task
	}{
		{"server availability probe", w.probeServersTask},
		{"config validation", w.validateConfigTask},
	} {
		if err := w.queue.Enqueue(t.fn); err != nil {
			w.logger.Warn("startup task not scheduled",
				zap.String("task", t.name), zap.Error(err))
		}
	}
	return nil
}

// OpenDocument opens an editing session for the given file. Opening the
// same document twice returns the existing session. The registry is
// checked before any session is built: a second session for an
// already-open URI would send the server a didOpen, and closing it a
// didClose, for a document the surviving session still edits.
func (w *Workbench) OpenDocument(ctx context.Context, path string, view lsp.View) (*lsp.Session, error) {
	docURI := uri.File(path)

	w.mu.Lock()
	defer w.mu.Unlock()
	if existing, ok := w.sessions[docURI]; ok {
		return existing, nil
	}

	s, err := lsp.NewSession(ctx, w.mgr, w.bus, w.exec, w.proj, path, view, w.logger)
	if err != nil {
		return nil, err
	}
	w.sessions[s.URI()] = s
	return s, nil
}

// CloseDocument ends the session for a document.
func (w *Workbench) CloseDocument(docURI protocol.DocumentURI) error {
	w.mu.Lock()
	s, ok := w.sessions[docURI]
	delete(w.sessions, docURI)
	w.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSession, docURI)
	}
	return s.Close()
}

// OpenDocuments returns the URIs of all open sessions.
func (w *Workbench) OpenDocuments() []protocol.DocumentURI {
	w.mu.Lock()
	defer w.mu.Unlock()
	uris := make([]protocol.DocumentURI, 0, len(w.sessions))
	for u := range w.sessions {
		uris = append(uris, u)
	}
	return uris
}

// Executor returns the UI executor the GUI event loop must attach to.
func (w *Workbench) Executor() *ui.Executor {
	return w.exec
}

// Bus returns the diagnostics bus, for surfaces beyond the per-document
// views (problems panel, status bar counters).
func (w *Workbench) Bus() *event.Bus {
	return w.bus
}

// TaskStats reports the background queue counters.
func (w *Workbench) TaskStats() task.Stats {
	return w.queue.Stats()
}

// Shutdown closes all sessions, tears down every server connection, and
// drains the task queue.
func (w *Workbench) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	sessions := make([]*lsp.Session, 0, len(w.sessions))
	for _, s := range w.sessions {
		sessions = append(sessions, s)
	}
	w.sessions = make(map[protocol.DocumentURI]*lsp.Session)
	w.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := w.mgr.ShutdownAll(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := w.queue.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (w *Workbench) probeServersTask(ctx context.Context) error {
	for _, p := range ProbeServers(w.cfg.Servers) {
		if p.Err != nil {
			w.logger.Warn("language server not found",
				zap.String("language", p.Language),
				zap.String("command", p.Command),
				zap.Error(p.Err))
			continue
		}
		w.logger.Info("language server available",
			zap.String("language", p.Language),
			zap.String("path", p.Path))
	}
	return ctx.Err()
}

func (w *Workbench) validateConfigTask(ctx context.Context) error {
	if err := w.cfg.Validate(); err != nil {
		w.logger.Warn("workspace config invalid", zap.Error(err))
		return err
	}
	return ctx.Err()
}

// ServerProbe is the availability result for one configured server.
type ServerProbe struct {
	Language string
	Command  string
	Path     string
	Err      error
}

// ProbeServers looks up every configured server command on PATH. Results
// are sorted by language for stable reporting.
func ProbeServers(servers map[string]config.ServerConfig) []ServerProbe {
	probes := make([]ServerProbe, 0, len(servers))
	for lang, sc := range servers {
		p := ServerProbe{Language: lang, Command: sc.Command}
		p.Path, p.Err = exec.LookPath(sc.Command)
		probes = append(probes, p)
	}
	sort.Slice(probes, func(i, j int) bool { return probes[i].Language < probes[j].Language })
	return probes
}
