// Package watch reruns analyses when Python sources under a project change.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/panbanda/tangle/pkg/config"
	"github.com/panbanda/tangle/pkg/parser"
)

// DefaultDebounce is how long a batch of changes must stay quiet before
// the callback runs.
const DefaultDebounce = 500 * time.Millisecond

const minTick = time.Millisecond

// Watcher monitors a project tree and reports batches of changed files.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	root      string
	skipDirs  map[string]bool
	debounce  time.Duration
	callback  func(ctx context.Context, changed []string)
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[string]time.Time
}

// NewWatcher creates a watcher for root. Directories named in the exclude
// configuration are not watched.
func NewWatcher(root string, cfg *config.Config, debounce time.Duration) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	skip := make(map[string]bool, len(cfg.Exclude.Dirs))
	for _, d := range cfg.Exclude.Dirs {
		skip[d] = true
	}
	return &Watcher{
		fsWatcher: fsWatcher,
		root:      root,
		skipDirs:  skip,
		debounce:  debounce,
		logger:    slog.Default(),
		pending:   make(map[string]time.Time),
	}, nil
}

// SetCallback sets the function called with each settled batch of changed
// files, sorted. It runs on the watch loop, so events arriving meanwhile are
// batched for the next call.
func (w *Watcher) SetCallback(cb func(ctx context.Context, changed []string)) {
	w.callback = cb
}

// SetLogger replaces the logger.
func (w *Watcher) SetLogger(l *slog.Logger) {
	w.logger = l
}

// tickInterval is how often pending changes are checked for having settled.
func (w *Watcher) tickInterval() time.Duration {
	return max(w.debounce/5, minTick)
}

// Start watches until ctx is done and returns ctx.Err().
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addTree(w.root); err != nil {
		return err
	}

	ticker := time.NewTicker(w.tickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)

		case now := <-ticker.C:
			if ready := w.takeReady(now); len(ready) > 0 && w.callback != nil {
				w.callback(ctx, ready)
			}
		}
	}
}

// addTree watches dir and every non-excluded directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.skipDirs[d.Name()] {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

// handleEvent records Python file changes and starts watching new
// directories.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	path := event.Name
	if w.excluded(path) {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if w.skipDirs[info.Name()] {
				return
			}
			if err := w.addTree(path); err != nil {
				w.logger.Debug("watch new directory failed", "path", path, "error", err)
			}
			return
		}
	}

	if parser.DetectLanguage(path) != parser.LangPython {
		return
	}

	w.mu.Lock()
	w.pending[path] = time.Now()
	w.mu.Unlock()
}

// excluded reports whether path lies under a skipped directory.
func (w *Watcher) excluded(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for _, seg := range parts[:len(parts)-1] {
		if w.skipDirs[seg] {
			return true
		}
	}
	return false
}

// takeReady removes and returns the pending files once the newest change
// is older than the debounce period. Changes settle as one batch.
func (w *Watcher) takeReady(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.pending) == 0 {
		return nil
	}
	for _, last := range w.pending {
		if now.Sub(last) < w.debounce {
			return nil
		}
	}
	ready := make([]string, 0, len(w.pending))
	for path := range w.pending {
		ready = append(ready, path)
	}
	clear(w.pending)
	slices.Sort(ready)
	return ready
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	return w.fsWatcher.Close()
}

// WatchedDirs returns the watched directories.
func (w *Watcher) WatchedDirs() []string {
	return w.fsWatcher.WatchList()
}
