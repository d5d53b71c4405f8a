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
	"gopkg.in/yaml.v3"
)

// defaultDebounce is how long the file must stay quiet before it is reloaded.
const defaultDebounce = 500 * time.Millisecond

// Watcher reloads the selection from a config file whenever the file changes.
// The directory is watched rather than the file so editors that replace the file
// on save are picked up.
type Watcher struct {
	path     string
	settings *Settings
	logger   *slog.Logger
	watcher  *fsnotify.Watcher

	debounceDur time.Duration
	lastEvent   time.Time // zero when no reload is pending

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher creates a watcher for path that writes into settings.
func NewWatcher(path string, settings *Settings, logger *slog.Logger) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config path required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	return &Watcher{
		path:     abs,
		settings: settings,
		logger:   logger,
		watcher:  fw,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),

		debounceDur: defaultDebounce,
	}, nil
}

// Start begins watching. It returns immediately.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}
	w.running = true
	go w.run(ctx)
	w.logger.Info("watching config file", "path", w.path)
	return nil
}

// Stop ends the watch loop and releases the underlying watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	wasRunning := w.running
	w.running = false
	w.mu.Unlock()

	if wasRunning {
		close(w.stopCh)
		<-w.doneCh
	}
	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("failed to close config watcher", "error", err)
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.debounceDur / 5
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.lastEvent = time.Now()
			}
		case <-ticker.C:
			if !w.lastEvent.IsZero() && time.Since(w.lastEvent) >= w.debounceDur {
				w.lastEvent = time.Time{}
				w.reload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.Warn("failed to read config, keeping current selection", "error", err)
		return
	}
	if !setsSelection(data) {
		w.logger.Debug("config sets no selection, keeping current selection", "path", w.path)
		return
	}

	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("failed to reload config, keeping current selection", "error", err)
		return
	}
	if cfg.Selection == w.settings.Get() {
		return
	}
	if err := w.settings.Replace(cfg.Selection); err != nil {
		w.logger.Warn("ignoring invalid selection in config", "error", err)
		return
	}
	w.logger.Info("selection reloaded from config",
		"target_language", cfg.Selection.TargetLanguage,
		"level", cfg.Selection.Level,
		"native_language", cfg.Selection.NativeLanguage)
}

// setsSelection reports whether data is a YAML mapping naming at least one
// selection key. Half-written or emptied files fail this check.
func setsSelection(data []byte) bool {
	var keys map[string]any
	if err := yaml.Unmarshal(data, &keys); err != nil {
		return false
	}
	for _, k := range []string{"target_language", "level", "native_language"} {
		if _, ok := keys[k]; ok {
			return true
		}
	}
	return false
}
