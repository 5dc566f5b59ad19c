package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewWatcher_RequiresPath(t *testing.T) {
	_, err := NewWatcher("")
	assert.Error(t, err)
}

func TestNewWatcher_MissingFileIsAllowed(t *testing.T) {
	w, err := NewWatcher(filepath.Join(t.TempDir(), "later.yaml"))
	require.NoError(t, err)
	assert.Equal(t, time.Second, w.interval)
}

func TestWatcher_StartTwice(t *testing.T) {
	w, err := NewWatcher(filepath.Join(t.TempDir(), "graphctl.yaml"),
		WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()
	assert.Error(t, w.Start(context.Background()))
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graphctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0o644))

	w, err := NewWatcher(path,
		WithPollInterval(10*time.Millisecond),
		WithWatcherLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	reloaded := make(chan *Config, 4)
	w.OnReload(func(c *Config) { reloaded <- c })

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	// bump mtime explicitly so coarse filesystem clocks still register a change
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "debug", cfg.Log.Level)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not reload")
	}
}

func TestWatcher_InvalidReloadKeepsWatching(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graphctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0o644))

	w, err := NewWatcher(path, WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)

	reloaded := make(chan *Config, 4)
	w.OnReload(func(c *Config) { reloaded <- c })
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("log: [broken"), 0o644))
	t1 := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, t1, t1))

	select {
	case <-reloaded:
		t.Fatal("invalid file must not be delivered")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: error\n"), 0o644))
	t2 := time.Now().Add(4 * time.Second)
	require.NoError(t, os.Chtimes(path, t2, t2))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "error", cfg.Log.Level)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not recover")
	}
}

func TestWatcher_StopsOnContextCancel(t *testing.T) {
	w, err := NewWatcher(filepath.Join(t.TempDir(), "graphctl.yaml"),
		WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	cancel()

	select {
	case <-w.doneCh:
	case <-time.After(time.Second):
		t.Fatal("poll loop did not exit")
	}
	w.Stop()
}
