package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ferretbot/ferretbot/internal/workflow"
)

// reloadDebounce batches filesystem events into one registry sweep, so
// a multi-file copy into the workflows directory registers once.
const reloadDebounce = 500 * time.Millisecond

// watchWorkflows watches the workflows directory and re-runs the
// registry sweep when workflow files change. New subdirectories are
// watched as they appear, so dropping in a fresh workflow directory is
// picked up without a restart. Returns nil once ctx is cancelled.
func (d *Daemon) watchWorkflows(ctx context.Context) error {
	dir := d.cfg.Paths.Workflows
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		d.log.Warn("workflows directory missing; hot reload disabled", "dir", dir)
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("daemon: starting watcher: %w", err)
	}
	defer w.Close()

	if err := addWatchTree(w, dir); err != nil {
		return fmt.Errorf("daemon: watching %s: %w", dir, err)
	}
	d.log.Info("watching workflows", "dir", dir)

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	schedule := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(reloadDebounce, d.reloadWorkflows)
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := addWatchTree(w, ev.Name); err != nil {
						d.log.Warn("watching new directory", "dir", ev.Name, "error", err)
					}
					// The directory may already hold a workflow file whose
					// own event raced the watch registration.
					schedule()
					continue
				}
			}
			if filepath.Base(ev.Name) != workflow.FileName {
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				d.log.Debug("workflow file changed", "path", ev.Name, "op", ev.Op.String())
				schedule()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			d.log.Warn("watcher error", "error", err)
		}
	}
}

// reloadWorkflows re-runs the registry sweep. Unchanged definitions come
// back as duplicate errors on every pass, so errors are demoted to debug
// and only genuinely new registrations are reported.
func (d *Daemon) reloadWorkflows() {
	count, err := d.registry.LoadDir(d.cfg.Paths.Workflows)
	if err != nil {
		d.log.Debug("workflow reload", "registered", count, "error", err)
	}
	if count > 0 {
		d.log.Info("workflows reloaded", "new", count)
	}
}

// addWatchTree registers root and every subdirectory with the watcher.
// Hidden directories are skipped.
func addWatchTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(entry.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
