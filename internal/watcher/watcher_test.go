package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secho/egnyte-client-linux/internal/config"
)

type syncRecorder struct {
	mu    sync.Mutex
	calls []string
	ch    chan string
}

func newSyncRecorder() *syncRecorder {
	return &syncRecorder{ch: make(chan string, 16)}
}

func (r *syncRecorder) record(localPath, remotePath string) {
	r.mu.Lock()
	r.calls = append(r.calls, remotePath)
	r.mu.Unlock()
	r.ch <- remotePath
}

func (r *syncRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *syncRecorder) wait(t *testing.T) string {
	t.Helper()
	select {
	case remotePath := <-r.ch:
		return remotePath
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for sync callback")
		return ""
	}
}

func newTestWatcher(t *testing.T, localRoot string) (*Watcher, *config.Config) {
	t.Helper()
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, cfg.Set("debounceSeconds", "0.05"))
	cfg.AddSyncPath(localRoot, "/Shared/docs", config.SyncPolicy{})
	return New(cfg, nil), cfg
}

func TestStartStop(t *testing.T) {
	w, _ := newTestWatcher(t, t.TempDir())

	require.NoError(t, w.Start(func(string, string) {}))
	assert.True(t, w.IsRunning())
	assert.Error(t, w.Start(func(string, string) {}), "second start must fail")

	w.Stop()
	assert.False(t, w.IsRunning())
	w.Stop()
}

func TestStartSkipsMissingRoot(t *testing.T) {
	w, _ := newTestWatcher(t, filepath.Join(t.TempDir(), "does-not-exist"))

	require.NoError(t, w.Start(func(string, string) {}))
	defer w.Stop()
	assert.True(t, w.IsRunning())
}

func TestWriteTriggersSync(t *testing.T) {
	root := t.TempDir()
	w, _ := newTestWatcher(t, root)
	rec := newSyncRecorder()

	require.NoError(t, w.Start(rec.record))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(root, "note.txt"), []byte("v1"), 0644))

	assert.Equal(t, "/Shared/docs/note.txt", rec.wait(t))
}

func TestBurstDebouncesToOneSync(t *testing.T) {
	root := t.TempDir()
	w, _ := newTestWatcher(t, root)
	rec := newSyncRecorder()

	require.NoError(t, w.Start(rec.record))
	defer w.Stop()

	target := filepath.Join(root, "burst.txt")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(target, []byte{byte('a' + i)}, 0644))
		time.Sleep(5 * time.Millisecond)
	}

	rec.wait(t)
	// Let any stray timers fire before counting
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, rec.count(), "a write burst settles into one sync")
}

func TestNewDirectoryIsWatched(t *testing.T) {
	root := t.TempDir()
	w, _ := newTestWatcher(t, root)
	rec := newSyncRecorder()

	require.NoError(t, w.Start(rec.record))
	defer w.Stop()

	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub, 0755))
	rec.wait(t)

	// fsnotify needs a moment to pick up the new watch
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "inner.txt"), []byte("x"), 0644))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case remotePath := <-rec.ch:
			if remotePath == "/Shared/docs/sub/inner.txt" {
				return
			}
		case <-deadline:
			t.Fatal("file in new subdirectory never synced")
		}
	}
}

func TestRemoveDoesNotTriggerSync(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "gone.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0644))

	w, _ := newTestWatcher(t, root)
	rec := newSyncRecorder()
	require.NoError(t, w.Start(rec.record))
	defer w.Stop()

	require.NoError(t, os.Remove(target))

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 0, rec.count(), "deletions settle through the remote poll")
}

func TestMapToRemote(t *testing.T) {
	root := t.TempDir()
	w, _ := newTestWatcher(t, root)
	w.roots = w.cfg.SyncEntries()

	remotePath, ok := w.mapToRemote(filepath.Join(root, "a", "b.txt"))
	require.True(t, ok)
	assert.Equal(t, "/Shared/docs/a/b.txt", remotePath)

	remotePath, ok = w.mapToRemote(root)
	require.True(t, ok)
	assert.Equal(t, "/Shared/docs", remotePath)

	_, ok = w.mapToRemote(filepath.Join(t.TempDir(), "elsewhere.txt"))
	assert.False(t, ok)
}
