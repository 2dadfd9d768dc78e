package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, dir string) <-chan Change {
	t.Helper()

	cfg := DefaultConfig(dir)
	cfg.Debounce = 50 * time.Millisecond

	w, err := New(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan Change, 10)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx, func(_ context.Context, c Change) error {
			got <- c
			return nil
		})
	}()

	t.Cleanup(func() {
		cancel()
		<-done
		w.Close()
	})
	return got
}

func TestWatcher_ReportsSettledChange(t *testing.T) {
	dir := t.TempDir()
	changes := startWatcher(t, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("b"), 0644))

	select {
	case c := <-changes:
		assert.Contains(t, c.Paths, filepath.Join(dir, "index.html"))
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
}

func TestWatcher_WatchesNewDirectories(t *testing.T) {
	dir := t.TempDir()
	changes := startWatcher(t, dir)

	sub := filepath.Join(dir, "assets")
	require.NoError(t, os.MkdirAll(sub, 0755))

	select {
	case <-changes:
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported for new directory")
	}

	require.NoError(t, os.WriteFile(filepath.Join(sub, "main.css"), []byte("body{}"), 0644))

	select {
	case c := <-changes:
		assert.Contains(t, c.Paths, filepath.Join(sub, "main.css"))
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported inside new directory")
	}
}

func TestWatcher_IgnoresNormalizationOutput(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules"), 0755))
	changes := startWatcher(t, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "pkg.js"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".npmrc"), []byte("x"), 0644))

	select {
	case c := <-changes:
		t.Fatalf("unexpected change %v", c.Paths)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestShouldIgnore(t *testing.T) {
	w := &Watcher{config: DefaultConfig("/srv/build")}

	assert.True(t, w.shouldIgnore("/srv/build/server/node_modules/express/index.js"))
	assert.True(t, w.shouldIgnore("/srv/build/server/index.mjs"))
	assert.False(t, w.shouldIgnore("/srv/build/client/index.html"))
}
