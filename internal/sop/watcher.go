package sop

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the watcher waits after the last write.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads a Library when its procedure file changes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	library  *Library
	path     string
	logger   *zap.Logger
	debounce time.Duration

	// OnReload is called after every reload attempt. Optional.
	OnReload func(LoadReport, error)
}

// NewWatcher watches path for changes to feed lib.
func NewWatcher(lib *Library, path string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", path, err)
	}
	return &Watcher{
		watcher:  w,
		library:  lib,
		path:     path,
		logger:   logger.Named("sop.watch"),
		debounce: DefaultDebounce,
	}, nil
}

// SetDebounce overrides the reload delay.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Run watches for file changes and reloads procedures. Blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(w.debounce, w.reload)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	report, err := w.library.Load(w.path, w.logger)
	if err != nil {
		w.logger.Warn("hot-reload failed, keeping previous procedures", zap.String("path", w.path), zap.Error(err))
	} else {
		w.logger.Info("hot-reload: procedures reloaded",
			zap.String("path", w.path),
			zap.Int("loaded", report.Loaded),
			zap.Int("skipped", len(report.Skipped)),
			zap.Uint64("version", w.library.Version()))
	}
	if w.OnReload != nil {
		w.OnReload(report, err)
	}
}
