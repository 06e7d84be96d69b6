package fusefs

import (
	"context"
	"fmt"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/secho/egnyte-client-linux/internal/logging"
	"github.com/secho/egnyte-client-linux/internal/vfs"
)

// Server owns one FUSE mount and its supervision
type Server struct {
	server     *fuse.Server
	core       *vfs.Core
	logger     logging.Logger
	mountpoint string
}

// Mount attaches the core to a mountpoint
func Mount(mountpoint string, core *vfs.Core, debug bool, logger logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}

	ttl := vfs.AttrTTL
	root := NewRoot(core)
	server, err := fs.Mount(mountpoint, root, &fs.Options{
		AttrTimeout:  &ttl,
		EntryTimeout: &ttl,
		MountOptions: fuse.MountOptions{
			FsName: "egnyte",
			Name:   "egnyte",
			Debug:  debug,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting %s: %w", mountpoint, err)
	}

	logger.Info("Mounted", logging.F("mountpoint", mountpoint))
	return &Server{
		server:     server,
		core:       core,
		logger:     logger,
		mountpoint: mountpoint,
	}, nil
}

// Serve blocks until the mount ends. An unrecoverable fault from the
// core or a cancelled context triggers an orderly unmount; killing the
// process would leave a hung mountpoint behind.
func (s *Server) Serve(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.server.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil

	case err := <-s.core.Fault():
		s.logger.Error("Unrecoverable mount fault, unmounting",
			logging.F("mountpoint", s.mountpoint), logging.F("error", err.Error()))
		s.unmount(done)
		return fmt.Errorf("mount aborted: %w", err)

	case <-ctx.Done():
		s.logger.Info("Unmounting", logging.F("mountpoint", s.mountpoint))
		s.unmount(done)
		return nil
	}
}

// unmount retries briefly: the kernel refuses while any process still
// has a file open under the mountpoint
func (s *Server) unmount(done <-chan struct{}) {
	for attempt := 0; attempt < 5; attempt++ {
		if err := s.server.Unmount(); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.logger.Warn("Unmount did not complete cleanly",
			logging.F("mountpoint", s.mountpoint))
	}
}
