// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce coalesces the burst of events an editor produces when
// it saves a file.
const DefaultWatchDebounce = 250 * time.Millisecond

// =============================================================================
// CONFIG WATCHER
// =============================================================================

// Watcher reloads a config file when it changes on disk.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(*Config, error)
	logger   *slog.Logger

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	timer   *time.Timer
	done    chan struct{}
}

// NewWatcher watches path. onChange receives the reloaded config, or the
// load error when the edited file is invalid.
//
// The parent directory is watched rather than the file itself, so the
// watch survives editors that save by renaming a temp file into place.
func NewWatcher(path string, onChange func(*Config, error), logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	return &Watcher{
		path:     filepath.Clean(path),
		debounce: DefaultWatchDebounce,
		onChange: onChange,
		logger:   logger,
		watcher:  fw,
		done:     make(chan struct{}),
	}, nil
}

// Run processes events until ctx is done or Close is called.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				w.stopTimer()
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.schedule()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				w.stopTimer()
				return
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadFromPath(w.path)
	if err != nil {
		w.logger.Warn("config reload failed", "path", w.path, "error", err)
	} else {
		w.logger.Info("config reloaded", "path", w.path)
	}
	if w.onChange != nil {
		w.onChange(cfg, err)
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// Watch reloads the global config whenever the TOML config file changes,
// until ctx is done. Invalid edits are logged and the previous config stays
// in effect.
func Watch(ctx context.Context, logger *slog.Logger, onReload func(*Config)) error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	w, err := NewWatcher(path, func(cfg *Config, err error) {
		if err != nil {
			return
		}
		SetGlobal(cfg)
		if onReload != nil {
			onReload(cfg)
		}
	}, logger)
	if err != nil {
		return err
	}
	go func() {
		w.Run(ctx)
		w.Close()
	}()
	return nil
}
