package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Manager holds the active configuration and supports hot reload. Readers
// call Current() and keep the returned pointer for the duration of one
// logical pass; a reload swaps the pointer atomically, so weight and
// threshold changes take effect only on passes started after the swap.
type Manager struct {
	configDir string
	current   atomic.Pointer[Config]
	cancel    context.CancelFunc
}

// NewManager wraps an already-initialized configuration.
func NewManager(configDir string, cfg *Config) *Manager {
	m := &Manager{configDir: configDir}
	m.current.Store(cfg)
	return m
}

// Current returns the active configuration. The returned value is
// immutable; callers must not modify it.
func (m *Manager) Current() *Config {
	return m.current.Load()
}

// Reload re-reads and validates the configuration from disk and swaps it
// in. On validation failure the previous configuration stays active.
func (m *Manager) Reload(ctx context.Context) error {
	cfg, err := Initialize(ctx, m.configDir)
	if err != nil {
		return fmt.Errorf("reload rejected: %w", err)
	}
	m.current.Store(cfg)
	slog.Info("Configuration reloaded", "config_dir", m.configDir)
	return nil
}

// WatchFiles starts a background watcher that reloads on changes to the
// config file. Invalid edits are logged and ignored.
func (m *Manager) WatchFiles(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory; some systems don't support watching files
	// directly, and editors often replace the file on save.
	if err := watcher.Add(m.configDir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", m.configDir, err)
	}

	ctx, m.cancel = context.WithCancel(ctx)
	go m.watchLoop(ctx, watcher)

	slog.Info("Watching configuration", "config_dir", m.configDir)
	return nil
}

// StopWatching stops the file watcher, if running.
func (m *Manager) StopWatching() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *Manager) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer func() {
		if err := watcher.Close(); err != nil {
			slog.Error("Error closing config watcher", "error", err)
		}
	}()

	// Debounce timer to coalesce rapid editor writes.
	var debounce *time.Timer
	const debounceDelay = 200 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != ConfigFileName {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, func() {
				if err := m.Reload(ctx); err != nil {
					slog.Error("Hot reload failed, keeping previous configuration", "error", err)
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Config watcher error", "error", err)
		}
	}
}
