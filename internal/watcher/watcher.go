// Package watcher propagates local filesystem changes to the sync
// engine. Events are debounced per path so editors that write in
// bursts trigger one sync, not one per write.
package watcher

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/secho/egnyte-client-linux/internal/config"
	"github.com/secho/egnyte-client-linux/internal/logging"
)

// SyncFunc receives a debounced change for one path pair
type SyncFunc func(localPath, remotePath string)

// Watcher recursively watches configured sync roots and calls the sync
// callback once per settled path. Deletions are intentionally not
// propagated from here; the deletion policy belongs to the sync engine.
type Watcher struct {
	cfg    *config.Config
	logger logging.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	timers  map[string]*time.Timer
	roots   []config.SyncEntry
	onSync  SyncFunc
	running bool
	done    chan struct{}
}

// New creates a watcher over the config's sync roots
func New(cfg *config.Config, logger logging.Logger) *Watcher {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Watcher{
		cfg:    cfg,
		logger: logger,
		timers: make(map[string]*time.Timer),
	}
}

// Start begins watching every configured root that exists locally.
// Roots missing on disk are skipped with a warning.
func (w *Watcher) Start(onSync SyncFunc) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return errors.New("watcher already running")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	w.fsw = fsw
	w.onSync = onSync
	w.roots = w.cfg.SyncEntries()
	w.done = make(chan struct{})

	watched := 0
	for _, entry := range w.roots {
		if _, err := os.Stat(entry.LocalRoot); err != nil {
			w.logger.Warn("Sync root missing locally, not watching",
				logging.F("path", entry.LocalRoot))
			continue
		}
		w.addRecursive(entry.LocalRoot)
		watched++
	}
	w.logger.Info("Watcher started", logging.F("roots", watched))

	w.running = true
	go w.loop()
	return nil
}

// Stop halts the watcher and cancels pending debounce timers
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	close(w.done)
	_ = w.fsw.Close()
	for p, timer := range w.timers {
		timer.Stop()
		delete(w.timers, p)
	}
	w.running = false
	w.logger.Info("Watcher stopped")
}

// IsRunning reports whether the watcher is active
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Watcher error", logging.F("error", err.Error()))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// Deletions and renames settle through the remote poll, and Chmod
	// carries no content change
	if event.Op&(fsnotify.Remove|fsnotify.Rename|fsnotify.Chmod) != 0 {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.mu.Lock()
			w.addRecursive(event.Name)
			w.mu.Unlock()
		}
	}

	w.schedule(event.Name)
}

// schedule arms the debounce timer for a path. A newer event for the
// same path supersedes the pending one.
func (w *Watcher) schedule(localPath string) {
	remotePath, ok := w.mapToRemote(localPath)
	if !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	if timer, ok := w.timers[localPath]; ok {
		timer.Stop()
	}
	debounce := time.Duration(w.cfg.DebounceSeconds() * float64(time.Second))
	w.timers[localPath] = time.AfterFunc(debounce, func() {
		w.fire(localPath, remotePath)
	})
}

func (w *Watcher) fire(localPath, remotePath string) {
	w.mu.Lock()
	delete(w.timers, localPath)
	onSync := w.onSync
	running := w.running
	w.mu.Unlock()
	if !running || onSync == nil {
		return
	}

	w.logger.Debug("Change settled",
		logging.F("local", localPath), logging.F("remote", remotePath))
	onSync(localPath, remotePath)
}

// mapToRemote resolves a local path to its remote counterpart by root
// prefix. Paths outside every configured root are ignored.
func (w *Watcher) mapToRemote(localPath string) (string, bool) {
	for _, entry := range w.roots {
		rel, err := filepath.Rel(entry.LocalRoot, localPath)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if rel == "." {
			return entry.RemoteRoot, true
		}
		return path.Join(entry.RemoteRoot, filepath.ToSlash(rel)), true
	}
	return "", false
}

// addRecursive registers a directory tree with fsnotify. Callers hold
// the mutex.
func (w *Watcher) addRecursive(root string) {
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(p); err != nil {
			w.logger.Warn("Cannot watch directory",
				logging.F("path", p), logging.F("error", err.Error()))
		}
		return nil
	})
}
