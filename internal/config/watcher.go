package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// settleDelay coalesces the burst of filesystem events a single editor
// save produces into one reload.
const settleDelay = 100 * time.Millisecond

// Watcher invokes a callback when the workspace config file changes on
// disk. It watches the parent directory rather than the file: editors
// that save atomically (write a temp file, rename it over the target)
// would otherwise silence the watch after the first save.
type Watcher struct {
	path     string
	onReload func()
	logger   *zap.Logger

	fsw      *fsnotify.Watcher
	stopOnce sync.Once
	stop     chan struct{}
}

// NewWatcher starts watching the config file at path.
func NewWatcher(path string, onReload func(), logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     filepath.Clean(path),
		onReload: onReload,
		logger:   logger,
		fsw:      fsw,
		stop:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	var settle *time.Timer
	for {
		select {
		case <-w.stop:
			if settle != nil {
				settle.Stop()
			}
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if settle != nil {
				settle.Stop()
			}
			settle = time.AfterFunc(settleDelay, func() {
				w.logger.Debug("workspace config changed", zap.String("path", w.path))
				w.onReload()
			})

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watching workspace config", zap.Error(err))
		}
	}
}

// Close stops watching. Safe to call more than once.
func (w *Watcher) Close() error {
	w.stopOnce.Do(func() { close(w.stop) })
	return w.fsw.Close()
}
