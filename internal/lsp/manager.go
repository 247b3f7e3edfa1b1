package lsp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.lsp.dev/protocol"
	"go.uber.org/zap"

	"github.com/blockforge/blockforge/internal/config"
	"github.com/blockforge/blockforge/internal/event"
	"github.com/blockforge/blockforge/internal/project"
)

// Manager is the reference-counted registry of language-server connections,
// keyed by (project, language). Connections are created lazily on first
// acquire and torn down when the last holder releases. The map is shared by
// every open document of every project, so all access goes through one lock.
type Manager struct {
	mu      sync.Mutex
	conns   map[Key]*managedConn
	configs map[protocol.LanguageIdentifier]config.ServerConfig

	bus    *event.Bus
	logger *zap.Logger

	// startFn is the connection factory; tests substitute it to avoid
	// spawning processes.
	startFn func(ctx context.Context, key Key, cfg config.ServerConfig) (*Conn, error)
}

type managedConn struct {
	conn *Conn
	refs int
}

// ManagerOption configures the manager.
type ManagerOption func(*Manager)

// WithServers registers server configurations by language ID.
func WithServers(servers map[string]config.ServerConfig) ManagerOption {
	return func(m *Manager) {
		for lang, cfg := range servers {
			m.configs[protocol.LanguageIdentifier(lang)] = cfg
		}
	}
}

// NewManager creates a manager publishing diagnostics on bus.
func NewManager(bus *event.Bus, logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		conns:   make(map[Key]*managedConn),
		configs: make(map[protocol.LanguageIdentifier]config.ServerConfig),
		bus:     bus,
		logger:  logger,
	}
	m.startFn = m.startConn
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) startConn(ctx context.Context, key Key, cfg config.ServerConfig) (*Conn, error) {
	c := newConn(key, cfg, m.bus, m.logger)
	if err := c.start(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Acquire returns the shared connection for (project, language),
// incrementing its reference count. The first acquire for a key spawns the
// server and begins the initialize handshake asynchronously; callers
// observe readiness through Conn.OnReady. Every Acquire must be balanced
// by exactly one Release. Safe under concurrent calls from many sessions.
func (m *Manager) Acquire(ctx context.Context, proj project.Project, lang protocol.LanguageIdentifier) (*Conn, error) {
	key := Key{Project: proj.Key(), Language: lang}

	m.mu.Lock()
	defer m.mu.Unlock()

	if mc, ok := m.conns[key]; ok {
		mc.refs++
		return mc.conn, nil
	}

	cfg, ok := m.configs[lang]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoServer, lang)
	}

	conn, err := m.startFn(ctx, key, cfg)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", key, err)
	}

	m.conns[key] = &managedConn{conn: conn, refs: 1}
	m.logger.Info("language server started",
		zap.String("language", string(lang)),
		zap.String("project", proj.Name))
	return conn, nil
}

// Release decrements the reference count for (project, language) and tears
// the connection down when it reaches zero. A release without a matching
// prior acquire is a reference-count leak in the session layer; it is
// reported loudly rather than absorbed.
func (m *Manager) Release(proj project.Project, lang protocol.LanguageIdentifier) error {
	key := Key{Project: proj.Key(), Language: lang}

	m.mu.Lock()
	mc, ok := m.conns[key]
	if !ok {
		m.mu.Unlock()
		m.logger.Error("release without matching acquire",
			zap.String("key", key.String()))
		return fmt.Errorf("%w: %s", ErrNotAcquired, key)
	}

	mc.refs--
	if mc.refs > 0 {
		m.mu.Unlock()
		return nil
	}
	delete(m.conns, key)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return mc.conn.close(ctx)
}

// Refs returns the current reference count for a key, zero when absent.
func (m *Manager) Refs(proj project.Project, lang protocol.LanguageIdentifier) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mc, ok := m.conns[Key{Project: proj.Key(), Language: lang}]; ok {
		return mc.refs
	}
	return 0
}

// Languages returns the language IDs with registered server configs.
func (m *Manager) Languages() []protocol.LanguageIdentifier {
	m.mu.Lock()
	defer m.mu.Unlock()
	langs := make([]protocol.LanguageIdentifier, 0, len(m.configs))
	for lang := range m.configs {
		langs = append(langs, lang)
	}
	return langs
}

// ConfigFor returns the server configuration for a language.
func (m *Manager) ConfigFor(lang protocol.LanguageIdentifier) (config.ServerConfig, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[lang]
	return cfg, ok
}

// ShutdownAll tears down every connection regardless of reference count.
// For application exit, when sessions are already gone or no longer matter.
func (m *Manager) ShutdownAll(ctx context.Context) error {
	m.mu.Lock()
	conns := make([]*Conn, 0, len(m.conns))
	for _, mc := range m.conns {
		conns = append(conns, mc.conn)
	}
	m.conns = make(map[Key]*managedConn)
	m.mu.Unlock()

	var errs []error
	for _, c := range conns {
		if err := c.close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
