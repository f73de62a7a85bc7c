// Package watch reloads the scheduler when the dataset registry file
// changes on disk, so schedule edits take effect without restarting
// the daemon.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tidewater-labs/siphon-cli/internal/core/ports/driving"
	"github.com/tidewater-labs/siphon-cli/internal/logger"
)

// debounceDelay coalesces the burst of events editors emit on save
// (truncate, write, rename-into-place) into one reload.
const debounceDelay = 500 * time.Millisecond

// Registry re-reads the dataset registry from disk. The file store's
// Load method satisfies it.
type Registry interface {
	Load() error
}

// Watcher watches one registry file and, on change, re-reads the
// registry and reloads the scheduler.
type Watcher struct {
	path      string
	registry  Registry
	scheduler driving.Scheduler
	debounce  time.Duration
}

// New creates a watcher for the registry file at path.
func New(path string, registry Registry, scheduler driving.Scheduler) *Watcher {
	return &Watcher{
		path:      path,
		registry:  registry,
		scheduler: scheduler,
		debounce:  debounceDelay,
	}
}

// Watch blocks until ctx is cancelled, reloading the scheduler each
// time the registry file is written, created or renamed into place.
// The parent directory is watched rather than the file itself: most
// editors replace the file on save, which would silently detach a
// watch on the file's inode.
func (w *Watcher) Watch(ctx context.Context) error {
	absPath, err := filepath.Abs(w.path)
	if err != nil {
		return fmt.Errorf("resolving registry path %q: %w", w.path, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close() //nolint:errcheck

	if err := fw.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("watching %q: %w", filepath.Dir(absPath), err)
	}
	logger.Debug("watching registry %s", absPath)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			name, _ := filepath.Abs(event.Name)
			if name != absPath {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				logger.Info("registry changed, reloading schedules")
				if err := w.registry.Load(); err != nil {
					logger.Warn("registry reload failed, keeping previous datasets: %v", err)
					return
				}
				if err := w.scheduler.Reload(ctx); err != nil {
					logger.Warn("schedule reload failed: %v", err)
				}
			})

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("registry watch: %v", err)
		}
	}
}
