package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mvanwyck/reverie/internal/config"
)

const watcherBaseYAML = `
server:
  log_level: info
store:
  postgres_dsn: "postgres://localhost/test"
  embedding_dimensions: 1536
`

const watcherDebugYAML = `
server:
  log_level: debug
store:
  postgres_dsn: "postgres://localhost/test"
  embedding_dimensions: 1536
`

// reloadRecorder collects watcher callbacks and signals each one.
type reloadRecorder struct {
	mu       sync.Mutex
	old, new *config.Config
	calls    int
	fired    chan struct{}
}

func newReloadRecorder() *reloadRecorder {
	return &reloadRecorder{fired: make(chan struct{}, 8)}
}

func (r *reloadRecorder) onChange(old, new *config.Config) {
	r.mu.Lock()
	r.old, r.new = old, new
	r.calls++
	r.mu.Unlock()
	select {
	case r.fired <- struct{}{}:
	default:
	}
}

func (r *reloadRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// startWatcher writes initial config to a temp file and returns the running
// watcher plus the file path.
func startWatcher(t *testing.T, initial string, rec *reloadRecorder) (*config.Watcher, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfigFile(t, path, initial)

	var cb func(old, new *config.Config)
	if rec != nil {
		cb = rec.onChange
	}
	w, err := config.NewWatcher(path, cb, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return w, path
}

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()

	w, _ := startWatcher(t, watcherBaseYAML, nil)
	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() = nil after initial load")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher("/nonexistent/path.yaml", nil); err == nil {
		t.Fatal("want error for missing file")
	}
}

func TestWatcher_ReportsContentChange(t *testing.T) {
	t.Parallel()

	rec := newReloadRecorder()
	w, path := startWatcher(t, watcherBaseYAML, rec)

	time.Sleep(100 * time.Millisecond)
	writeConfigFile(t, path, watcherDebugYAML)

	select {
	case <-rec.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("callback not invoked")
	}

	rec.mu.Lock()
	oldLevel, newLevel := rec.old.Server.LogLevel, rec.new.Server.LogLevel
	rec.mu.Unlock()
	if oldLevel != config.LogInfo || newLevel != config.LogDebug {
		t.Errorf("callback levels = (%q, %q), want (info, debug)", oldLevel, newLevel)
	}
	if got := w.Current().Server.LogLevel; got != config.LogDebug {
		t.Errorf("Current() log_level = %q, want debug", got)
	}
}

func TestWatcher_IgnoresNonChanges(t *testing.T) {
	t.Parallel()

	t.Run("invalid edit keeps previous config", func(t *testing.T) {
		t.Parallel()
		rec := newReloadRecorder()
		w, path := startWatcher(t, watcherBaseYAML, rec)

		time.Sleep(100 * time.Millisecond)
		writeConfigFile(t, path, "server:\n  log_level: bananas\n")
		time.Sleep(300 * time.Millisecond)

		if n := rec.count(); n != 0 {
			t.Errorf("callback fired %d times for invalid config", n)
		}
		if got := w.Current().Server.LogLevel; got != config.LogInfo {
			t.Errorf("Current() log_level = %q, want the old info", got)
		}
	})

	t.Run("touch without content change", func(t *testing.T) {
		t.Parallel()
		rec := newReloadRecorder()
		_, path := startWatcher(t, watcherBaseYAML, rec)

		time.Sleep(100 * time.Millisecond)
		later := time.Now().Add(time.Second)
		if err := os.Chtimes(path, later, later); err != nil {
			t.Fatalf("touch: %v", err)
		}
		time.Sleep(300 * time.Millisecond)

		if n := rec.count(); n != 0 {
			t.Errorf("callback fired %d times for a bare touch", n)
		}
	})
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	w, _ := startWatcher(t, watcherBaseYAML, nil)
	w.Stop()
	w.Stop()
}
