package host

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/felixgeelhaar/modkeeper/internal/domain/installer"
	"github.com/felixgeelhaar/modkeeper/internal/ports"
)

// DefaultDebounce collapses bursts of events from one install.
const DefaultDebounce = 500 * time.Millisecond

// Invalidator drops cached plugin metadata.
type Invalidator interface {
	InvalidateCache()
}

// Watcher invalidates the host cache whenever files below the watched
// roots change.
type Watcher struct {
	target   Invalidator
	debounce time.Duration
	logger   ports.Logger
	watcher  *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer
	fired int
}

// NewWatcher creates a watcher. debounce <= 0 uses DefaultDebounce.
func NewWatcher(target Invalidator, debounce time.Duration, logger ports.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{target: target, debounce: debounce, logger: ports.OrNop(logger), watcher: fw}, nil
}

// Add watches root and every directory below it. Missing roots are skipped.
func (w *Watcher) Add(roots ...string) error {
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == root {
					return fs.SkipAll
				}
				return nil
			}
			if !d.IsDir() {
				return nil
			}
			if installer.IsBackup(d.Name()) {
				return fs.SkipDir
			}
			return w.watcher.Add(path)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Run processes events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn(ctx, "file watcher error", ports.Err(err))
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if event.Op == fsnotify.Chmod || installer.IsBackup(filepath.Base(event.Name)) {
		return
	}
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			// New directories need their own watch.
			_ = w.Add(event.Name)
		}
	}
	w.logger.Debug(ctx, "plugin files changed", ports.F("path", event.Name), ports.F("op", event.Op.String()))

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.invalidate)
}

func (w *Watcher) invalidate() {
	w.mu.Lock()
	w.fired++
	w.mu.Unlock()
	w.target.InvalidateCache()
}

// Invalidations returns how many debounced invalidations ran.
func (w *Watcher) Invalidations() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fired
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.watcher.Close()
}
