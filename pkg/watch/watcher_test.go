package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/panbanda/tangle/pkg/config"
)

func TestNewWatcher(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name     string
		debounce time.Duration
		want     time.Duration
	}{
		{"default debounce", 0, DefaultDebounce},
		{"custom debounce", time.Second, time.Second},
		{"negative debounce defaults", -time.Second, DefaultDebounce},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewWatcher(tmpDir, nil, tt.debounce)
			if err != nil {
				t.Fatalf("NewWatcher() error = %v", err)
			}
			defer w.Stop()

			if w.debounce != tt.want {
				t.Errorf("debounce = %v, want %v", w.debounce, tt.want)
			}
			if !w.skipDirs[".venv"] {
				t.Error("default exclude dirs should be skipped")
			}
		})
	}
}

func newTestWatcher(t *testing.T, root string) *Watcher {
	t.Helper()
	w, err := NewWatcher(root, config.DefaultConfig(), 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

func TestWatcher_handleEvent(t *testing.T) {
	root := t.TempDir()
	w := newTestWatcher(t, root)

	tests := []struct {
		name    string
		event   fsnotify.Event
		pending bool
	}{
		{"python write", fsnotify.Event{Name: filepath.Join(root, "a.py"), Op: fsnotify.Write}, true},
		{"python remove", fsnotify.Event{Name: filepath.Join(root, "b.py"), Op: fsnotify.Remove}, true},
		{"chmod ignored", fsnotify.Event{Name: filepath.Join(root, "c.py"), Op: fsnotify.Chmod}, false},
		{"non python ignored", fsnotify.Event{Name: filepath.Join(root, "README.md"), Op: fsnotify.Write}, false},
		{"excluded dir ignored", fsnotify.Event{Name: filepath.Join(root, ".venv", "lib", "x.py"), Op: fsnotify.Write}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w.handleEvent(tt.event)
			w.mu.Lock()
			_, ok := w.pending[tt.event.Name]
			w.mu.Unlock()
			if ok != tt.pending {
				t.Errorf("pending = %v, want %v", ok, tt.pending)
			}
		})
	}
}

func TestWatcher_takeReady(t *testing.T) {
	root := t.TempDir()
	w := newTestWatcher(t, root)
	now := time.Now()

	w.pending[filepath.Join(root, "b.py")] = now.Add(-time.Second)
	w.pending[filepath.Join(root, "a.py")] = now.Add(-10 * time.Millisecond)
	if got := w.takeReady(now); got != nil {
		t.Errorf("batch with a fresh change should wait, got %v", got)
	}

	got := w.takeReady(now.Add(time.Second))
	want := []string{filepath.Join(root, "a.py"), filepath.Join(root, "b.py")}
	if !slices.Equal(got, want) {
		t.Errorf("takeReady() = %v, want %v", got, want)
	}
	if len(w.pending) != 0 {
		t.Error("pending should be drained")
	}
	if w.takeReady(now.Add(time.Hour)) != nil {
		t.Error("empty pending yields nothing")
	}
}

func TestWatcher_SkipsExcludedDirectories(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"pkg", ".venv/lib", "__pycache__"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	w := newTestWatcher(t, root)
	if err := w.addTree(root); err != nil {
		t.Fatal(err)
	}
	watched := w.WatchedDirs()
	if !slices.Contains(watched, filepath.Join(root, "pkg")) {
		t.Errorf("pkg should be watched: %v", watched)
	}
	for _, d := range watched {
		if filepath.Base(d) == "lib" || filepath.Base(d) == "__pycache__" {
			t.Errorf("excluded directory watched: %s", d)
		}
	}
}

func TestWatcher_Start_Context(t *testing.T) {
	w := newTestWatcher(t, t.TempDir())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := w.Start(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Start() = %v, want deadline exceeded", err)
	}
}

func TestWatcher_TinyDebounce(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), nil, 3*time.Nanosecond)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if got := w.tickInterval(); got != time.Millisecond {
		t.Errorf("tickInterval() = %v, want 1ms", got)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := w.Start(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Start() = %v, want deadline exceeded", err)
	}
}

func TestWatcher_Start_FileChange(t *testing.T) {
	root := t.TempDir()
	w := newTestWatcher(t, root)

	var (
		mu      sync.Mutex
		batches [][]string
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.SetCallback(func(ctx context.Context, changed []string) {
		mu.Lock()
		batches = append(batches, changed)
		mu.Unlock()
		cancel()
	})

	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	// give the watch loop time to register the root
	time.Sleep(100 * time.Millisecond)
	target := filepath.Join(root, "mod.py")
	if err := os.WriteFile(target, []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("callback not invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(batches) != 1 || !slices.Contains(batches[0], target) {
		t.Errorf("batches = %v", batches)
	}
}
