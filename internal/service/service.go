// Package service runs the background sync daemon: a local file
// watcher feeding targeted syncs plus a remote poll loop comparing
// listing fingerprints, with exponential backoff while the API is
// rate limiting.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/secho/egnyte-client-linux/internal/api"
	"github.com/secho/egnyte-client-linux/internal/config"
	"github.com/secho/egnyte-client-linux/internal/logging"
	enginesync "github.com/secho/egnyte-client-linux/internal/sync"
	"github.com/secho/egnyte-client-linux/internal/watcher"
)

const (
	// backoffFloor is the smallest delay after the first rate-limit hit
	backoffFloor = 30 * time.Second
	// backoffCap bounds the doubling
	backoffCap = 300 * time.Second
)

// ErrNotAuthenticated aborts the service before any loop starts
var ErrNotAuthenticated = errors.New("service: not authenticated, run 'egnyte auth login' first")

// Syncer is the engine surface the service drives
type Syncer interface {
	SyncFile(ctx context.Context, localPath, remotePath string, policy config.EffectivePolicy) enginesync.Result
	SyncFolder(ctx context.Context, localRoot, remoteRoot string, recursive bool, policy config.EffectivePolicy) []enginesync.Result
}

// Lister is the remote listing surface used for poll fingerprints
type Lister interface {
	ListFolder(ctx context.Context, remotePath string) ([]api.Metadata, error)
}

// AuthChecker gates service startup
type AuthChecker interface {
	IsAuthenticated() bool
}

// RemoteSnapshot maps remote paths to listing fingerprints. Two equal
// snapshots mean nothing changed remotely since the last poll.
type RemoteSnapshot map[string]string

// Equal compares two snapshots entry by entry
func (s RemoteSnapshot) Equal(other RemoteSnapshot) bool {
	if len(s) != len(other) {
		return false
	}
	for path, fp := range s {
		if other[path] != fp {
			return false
		}
	}
	return true
}

// Service couples the watcher and the remote poll loop
type Service struct {
	cfg     *config.Config
	engine  Syncer
	remote  Lister
	auth    AuthChecker
	watcher *watcher.Watcher
	logger  logging.Logger

	mu        sync.Mutex
	backoff   time.Duration
	snapshots map[string]RemoteSnapshot
}

// New creates a background sync service
func New(cfg *config.Config, engine Syncer, remote Lister, auth AuthChecker, w *watcher.Watcher, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Service{
		cfg:       cfg,
		engine:    engine,
		remote:    remote,
		auth:      auth,
		watcher:   w,
		logger:    logger,
		snapshots: make(map[string]RemoteSnapshot),
	}
}

// Run starts the watcher and polls until the context is cancelled.
// Cancellation is a normal shutdown, not an error.
func (s *Service) Run(ctx context.Context) error {
	if !s.auth.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	if len(s.cfg.SyncEntries()) == 0 {
		s.logger.Warn("No sync paths configured, service will idle")
	}

	if err := s.watcher.Start(func(localPath, remotePath string) {
		s.syncChangedPath(ctx, localPath, remotePath)
	}); err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer s.watcher.Stop()

	s.logger.Info("Service started",
		logging.F("interval", s.cfg.RemoteIntervalSeconds()),
		logging.F("roots", len(s.cfg.SyncEntries())))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.pollLoop(ctx) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	s.logger.Info("Service stopped")
	return nil
}

func (s *Service) pollLoop(ctx context.Context) error {
	for {
		s.PollOnce(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.Delay()):
		}
	}
}

// PollOnce fingerprints every reachable root and syncs the changed
// ones. A rate-limited round escalates the backoff; only a round where
// every root polled cleanly resets it. Other errors leave the schedule
// as it stands.
func (s *Service) PollOnce(ctx context.Context) {
	rateLimited := false
	failed := false

	for _, entry := range s.cfg.SyncEntries() {
		if _, err := os.Stat(entry.LocalRoot); err != nil {
			continue
		}

		snap, err := s.remoteSnapshot(ctx, entry.RemoteRoot)
		if err != nil {
			if api.IsRateLimited(err) {
				rateLimited = true
				s.logger.Warn("Remote poll rate limited", logging.F("root", entry.RemoteRoot))
				break
			}
			failed = true
			s.logger.Warn("Remote poll failed",
				logging.F("root", entry.RemoteRoot), logging.F("error", err.Error()))
			continue
		}

		s.mu.Lock()
		previous, polled := s.snapshots[entry.RemoteRoot]
		s.mu.Unlock()
		if polled && previous.Equal(snap) {
			continue
		}

		s.logger.Info("Remote changes detected", logging.F("root", entry.RemoteRoot))
		policy := s.cfg.ResolvePolicy(entry.Policy)
		s.engine.SyncFolder(ctx, entry.LocalRoot, entry.RemoteRoot, true, policy)

		s.mu.Lock()
		s.snapshots[entry.RemoteRoot] = snap
		s.mu.Unlock()
	}

	if rateLimited {
		s.escalateBackoff()
	} else if !failed {
		s.resetBackoff()
	}
}

// remoteSnapshot walks the remote tree breadth-first, fingerprinting
// every entry
func (s *Service) remoteSnapshot(ctx context.Context, root string) (RemoteSnapshot, error) {
	snap := make(RemoteSnapshot)
	queue := []string{root}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		items, err := s.remote.ListFolder(ctx, dir)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			snap[item.Path] = fmt.Sprintf("%s|%d|%s|%t",
				item.ModifiedTime, item.Size, item.Checksum, item.IsFolder)
			if item.IsFolder {
				queue = append(queue, item.Path)
			}
		}
	}
	return snap, nil
}

// syncChangedPath handles one settled watcher event
func (s *Service) syncChangedPath(ctx context.Context, localPath, remotePath string) {
	policy := s.policyFor(localPath)
	if info, err := os.Stat(localPath); err == nil && info.IsDir() {
		s.engine.SyncFolder(ctx, localPath, remotePath, false, policy)
		return
	}
	s.engine.SyncFile(ctx, localPath, remotePath, policy)
}

func (s *Service) policyFor(localPath string) config.EffectivePolicy {
	for _, entry := range s.cfg.SyncEntries() {
		if localPath == entry.LocalRoot || withinRoot(localPath, entry.LocalRoot) {
			return s.cfg.ResolvePolicy(entry.Policy)
		}
	}
	return s.cfg.ResolvePolicy(config.SyncPolicy{})
}

func withinRoot(p, root string) bool {
	return len(p) > len(root) && p[:len(root)] == root && p[len(root)] == os.PathSeparator
}

// Delay returns the wait before the next poll: the configured interval
// normally, the current backoff while rate limited
func (s *Service) Delay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backoff > 0 {
		return s.backoff
	}
	return time.Duration(s.cfg.RemoteIntervalSeconds()) * time.Second
}

func (s *Service) escalateBackoff() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backoff == 0 {
		interval := time.Duration(s.cfg.RemoteIntervalSeconds()) * time.Second
		s.backoff = interval
		if s.backoff < backoffFloor {
			s.backoff = backoffFloor
		}
		return
	}
	s.backoff *= 2
	if s.backoff > backoffCap {
		s.backoff = backoffCap
	}
}

func (s *Service) resetBackoff() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backoff = 0
}
