package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/asheshgoplani/opsdeck/internal/logging"
)

var cfgLog = logging.ForComponent(logging.CompConfig)

// reloadDebounce coalesces the burst of events an editor save produces.
const reloadDebounce = 150 * time.Millisecond

// Watcher reloads the config file when it changes on disk and hands each
// successfully parsed config to onChange. Parse failures are logged and
// the previous config stays in effect.
type Watcher struct {
	path     string
	onChange func(*Config)
	watcher  *fsnotify.Watcher
	ctx      context.Context
	cancel   context.CancelFunc

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher watches path's directory, since editors usually replace the
// file with a rename. Call Start in a goroutine.
func NewWatcher(path string, onChange func(*Config)) (*Watcher, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		path:     filepath.Clean(path),
		onChange: onChange,
		watcher:  fw,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start blocks until Stop is called.
func (w *Watcher) Start() {
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			cfgLog.Warn("config_watcher_error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(reloadDebounce, w.reload)
}

func (w *Watcher) reload() {
	if w.ctx.Err() != nil {
		return
	}
	if _, err := os.Stat(w.path); err != nil {
		return
	}
	cfg, err := Load(w.path)
	if err != nil {
		cfgLog.Warn("config_reload_failed",
			slog.String("path", w.path),
			slog.String("error", err.Error()),
		)
		return
	}
	cfgLog.Info("config_reloaded", slog.String("path", w.path), slog.Int("aux", len(cfg.Bridge.Aux)))
	w.onChange(cfg)
}

// Stop ends Start and releases the fsnotify handle.
func (w *Watcher) Stop() {
	w.cancel()
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	_ = w.watcher.Close()
}
