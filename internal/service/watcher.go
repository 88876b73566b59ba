package service

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher watches one config file and emits a signal after edits have
// settled. Editors write config files as a burst of events (truncate, write,
// rename), so raw events are debounced before a reload is announced.
type ConfigWatcher struct {
	path    string
	window  time.Duration
	log     *slog.Logger
	reloads chan struct{}

	mu    sync.Mutex
	timer *time.Timer
}

// NewConfigWatcher creates a watcher for the config file at path.
func NewConfigWatcher(path string, log *slog.Logger) *ConfigWatcher {
	if log == nil {
		log = slog.Default()
	}
	return &ConfigWatcher{
		path:    path,
		window:  500 * time.Millisecond,
		log:     log,
		reloads: make(chan struct{}, 1),
	}
}

// Reloads returns the channel that receives a signal per settled edit.
func (w *ConfigWatcher) Reloads() <-chan struct{} {
	return w.reloads
}

// Run watches until ctx is done. The parent directory is watched rather than
// the file itself so atomic-rename saves keep being observed.
func (w *ConfigWatcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fsw.Close() }()

	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	base := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleSignal()
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("config watcher error", "error", err)
		}
	}
}

func (w *ConfigWatcher) scheduleSignal() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.window, func() {
		select {
		case w.reloads <- struct{}{}:
		default: // a reload is already pending
		}
	})
}

func (w *ConfigWatcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}
