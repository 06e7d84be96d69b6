// Package vfs implements the path-addressed core behind the FUSE
// mount. Every operation works on remote paths relative to the mounted
// root; the FUSE layer only translates node calls into these methods,
// which keeps the caching and buffering logic testable without a
// kernel mount.
package vfs

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/secho/egnyte-client-linux/internal/api"
	"github.com/secho/egnyte-client-linux/internal/logging"
)

// AttrTTL bounds how long attribute and directory listings are served
// from cache
const AttrTTL = 5 * time.Second

// ErrNotFound marks a path that does not exist remotely
var ErrNotFound = errors.New("vfs: not found")

// ErrRemote wraps remote failures that the mount should surface as I/O
// errors rather than missing files
var ErrRemote = errors.New("vfs: remote operation failed")

// noiseNames are desktop-environment probe files. Serving them would
// cost one remote round trip each time a file manager opens the mount,
// so they are rejected before any API call.
var noiseNames = map[string]bool{
	".hidden":          true,
	".xdg-volume-info": true,
	"autorun.inf":      true,
	".directory":       true,
	"desktop.ini":      true,
	"Thumbs.db":        true,
}

// IsNoiseName reports whether a base name is a desktop probe file
func IsNoiseName(name string) bool {
	return noiseNames[name] || strings.HasPrefix(name, ".Trash")
}

// Attr describes one node for the mount
type Attr struct {
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// DirEntry is one name in a directory listing
type DirEntry struct {
	Name  string
	IsDir bool
}

// Remote is the API surface the core consumes
type Remote interface {
	ListFolder(ctx context.Context, remotePath string) ([]api.Metadata, error)
	GetFileInfo(ctx context.Context, remotePath string) (api.Metadata, error)
	DownloadFile(ctx context.Context, remotePath, localPath string) ([]byte, error)
	UploadBytes(ctx context.Context, remotePath string, data []byte, overwrite, createFolders bool) (api.Metadata, error)
	CreateFolder(ctx context.Context, remotePath string) error
	DeleteFile(ctx context.Context, remotePath string) error
}

type cachedAttr struct {
	attr    Attr
	expires time.Time
}

type cachedDir struct {
	entries []DirEntry
	expires time.Time
}

// Core holds the mount state: TTL caches for attributes and listings,
// a session-lifetime read cache, and per-path write buffers that are
// uploaded as whole files on release.
type Core struct {
	remote Remote
	root   string
	logger logging.Logger
	now    func() time.Time

	mu     sync.Mutex
	attrs  map[string]cachedAttr
	dirs   map[string]cachedDir
	reads  map[string][]byte
	writes map[string][]byte

	fault chan error
}

// NewCore creates a mount core rooted at the given remote path
func NewCore(remote Remote, rootPath string, logger logging.Logger) *Core {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if rootPath == "" {
		rootPath = "/"
	}
	return &Core{
		remote: remote,
		root:   rootPath,
		logger: logger,
		now:    time.Now,
		attrs:  make(map[string]cachedAttr),
		dirs:   make(map[string]cachedDir),
		reads:  make(map[string][]byte),
		writes: make(map[string][]byte),
		fault:  make(chan error, 1),
	}
}

// Fault delivers at most one unrecoverable error. The mount supervisor
// unmounts when it fires.
func (c *Core) Fault() <-chan error {
	return c.fault
}

func (c *Core) raiseFault(err error) {
	select {
	case c.fault <- err:
	default:
	}
}

func (c *Core) remotePath(rel string) string {
	return path.Join(c.root, rel)
}

// classify maps an API failure to the mount's error vocabulary. A 429
// is unrecoverable for the mount: continuing would hammer a throttled
// API on every kernel callback.
func (c *Core) classify(err error) error {
	if api.IsNotFound(err) {
		return ErrNotFound
	}
	if api.IsRateLimited(err) {
		c.logger.Error("Rate limited inside mount, requesting unmount")
		c.raiseFault(err)
	}
	return fmt.Errorf("%w: %v", ErrRemote, err)
}

// GetAttr resolves attributes for a path. The root is synthetic, noise
// names fail fast with no remote call, and open write buffers report
// their in-memory size.
func (c *Core) GetAttr(ctx context.Context, rel string) (Attr, error) {
	if rel == "" || rel == "/" || rel == "." {
		return Attr{IsDir: true, ModTime: c.now()}, nil
	}
	if IsNoiseName(path.Base(rel)) {
		return Attr{}, ErrNotFound
	}

	c.mu.Lock()
	if buf, ok := c.writes[rel]; ok {
		size := int64(len(buf))
		c.mu.Unlock()
		return Attr{Size: size, ModTime: c.now()}, nil
	}
	if cached, ok := c.attrs[rel]; ok && c.now().Before(cached.expires) {
		c.mu.Unlock()
		return cached.attr, nil
	}
	c.mu.Unlock()

	info, err := c.remote.GetFileInfo(ctx, c.remotePath(rel))
	if err != nil {
		return Attr{}, c.classify(err)
	}
	attr := Attr{Size: info.Size, ModTime: info.ModTime(), IsDir: info.IsFolder}
	c.cacheAttr(rel, attr)
	return attr, nil
}

func (c *Core) cacheAttr(rel string, attr Attr) {
	c.mu.Lock()
	c.attrs[rel] = cachedAttr{attr: attr, expires: c.now().Add(AttrTTL)}
	c.mu.Unlock()
}

// ReadDir lists a directory, served from cache within the TTL
func (c *Core) ReadDir(ctx context.Context, rel string) ([]DirEntry, error) {
	c.mu.Lock()
	if cached, ok := c.dirs[rel]; ok && c.now().Before(cached.expires) {
		entries := cached.entries
		c.mu.Unlock()
		return entries, nil
	}
	c.mu.Unlock()

	items, err := c.remote.ListFolder(ctx, c.remotePath(rel))
	if err != nil {
		return nil, c.classify(err)
	}

	entries := make([]DirEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, DirEntry{Name: item.Name, IsDir: item.IsFolder})
		itemRel := path.Join(rel, item.Name)
		c.cacheAttr(itemRel, Attr{Size: item.Size, ModTime: item.ModTime(), IsDir: item.IsFolder})
	}

	c.mu.Lock()
	c.dirs[rel] = cachedDir{entries: entries, expires: c.now().Add(AttrTTL)}
	c.mu.Unlock()
	return entries, nil
}

// Read copies file content at an offset. Content comes from the open
// write buffer when one exists, otherwise from the whole-file read
// cache, filled by one download per session.
func (c *Core) Read(ctx context.Context, rel string, dest []byte, off int64) (int, error) {
	c.mu.Lock()
	content, buffered := c.writes[rel]
	if !buffered {
		content, buffered = c.reads[rel]
	}
	c.mu.Unlock()

	if !buffered {
		downloaded, err := c.remote.DownloadFile(ctx, c.remotePath(rel), "")
		if err != nil {
			return 0, c.classify(err)
		}
		c.mu.Lock()
		c.reads[rel] = downloaded
		c.mu.Unlock()
		content = downloaded
	}

	if off >= int64(len(content)) {
		return 0, nil
	}
	return copy(dest, content[off:]), nil
}

// Create registers a new empty file as a write buffer. Nothing touches
// the network until the file is released.
func (c *Core) Create(rel string) {
	c.mu.Lock()
	c.writes[rel] = []byte{}
	c.attrs[rel] = cachedAttr{attr: Attr{ModTime: c.now()}, expires: c.now().Add(AttrTTL)}
	delete(c.dirs, path.Dir(rel))
	c.mu.Unlock()
}

// OpenWrite seeds the write buffer for an existing file so a partial
// overwrite keeps the untouched remainder. With truncate the buffer
// starts empty.
func (c *Core) OpenWrite(ctx context.Context, rel string, truncate bool) error {
	c.mu.Lock()
	_, exists := c.writes[rel]
	c.mu.Unlock()
	if exists {
		return nil
	}
	if truncate {
		c.mu.Lock()
		c.writes[rel] = []byte{}
		c.mu.Unlock()
		return nil
	}

	content, err := c.remote.DownloadFile(ctx, c.remotePath(rel), "")
	if err != nil {
		if !api.IsNotFound(err) {
			return c.classify(err)
		}
		content = []byte{}
	}
	c.mu.Lock()
	c.writes[rel] = content
	c.mu.Unlock()
	return nil
}

// Write stores data into the write buffer, zero-padding any gap before
// the offset
func (c *Core) Write(rel string, data []byte, off int64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf, ok := c.writes[rel]
	if !ok {
		buf = []byte{}
	}
	end := off + int64(len(data))
	if int64(len(buf)) < end {
		grown := make([]byte, end)
		copy(grown, buf)
		buf = grown
	}
	copy(buf[off:end], data)
	c.writes[rel] = buf
	c.attrs[rel] = cachedAttr{attr: Attr{Size: int64(len(buf)), ModTime: c.now()}, expires: c.now().Add(AttrTTL)}
	return len(data), nil
}

// Truncate resizes the write buffer, creating one if needed
func (c *Core) Truncate(rel string, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf := c.writes[rel]
	if int64(len(buf)) > size {
		buf = buf[:size]
	} else if int64(len(buf)) < size {
		grown := make([]byte, size)
		copy(grown, buf)
		buf = grown
	}
	c.writes[rel] = buf
}

// HasWriteBuffer reports whether a path has pending writes
func (c *Core) HasWriteBuffer(rel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.writes[rel]
	return ok
}

// Release uploads the write buffer as a whole-file overwrite and
// discards it. Paths without a buffer are a no-op, so read-only
// releases never hit the network.
func (c *Core) Release(ctx context.Context, rel string) error {
	c.mu.Lock()
	buf, ok := c.writes[rel]
	c.mu.Unlock()
	if !ok {
		return nil
	}

	info, err := c.remote.UploadBytes(ctx, c.remotePath(rel), buf, true, true)
	if err != nil {
		return c.classify(err)
	}

	c.mu.Lock()
	delete(c.writes, rel)
	c.reads[rel] = buf
	c.attrs[rel] = cachedAttr{
		attr:    Attr{Size: int64(len(buf)), ModTime: info.ModTime()},
		expires: c.now().Add(AttrTTL),
	}
	delete(c.dirs, path.Dir(rel))
	c.mu.Unlock()

	c.logger.Debug("Uploaded on release",
		logging.F("path", rel), logging.F("size", len(buf)))
	return nil
}

// Mkdir creates a remote folder and caches synthetic attributes
func (c *Core) Mkdir(ctx context.Context, rel string) error {
	if err := c.remote.CreateFolder(ctx, c.remotePath(rel)); err != nil {
		return c.classify(err)
	}
	c.mu.Lock()
	c.attrs[rel] = cachedAttr{attr: Attr{IsDir: true, ModTime: c.now()}, expires: c.now().Add(AttrTTL)}
	delete(c.dirs, path.Dir(rel))
	c.mu.Unlock()
	return nil
}

// Unlink deletes a remote file and purges every cache for the path
func (c *Core) Unlink(ctx context.Context, rel string) error {
	if err := c.remote.DeleteFile(ctx, c.remotePath(rel)); err != nil {
		return c.classify(err)
	}
	c.purge(rel)
	return nil
}

// Rmdir deletes a remote folder and purges its caches
func (c *Core) Rmdir(ctx context.Context, rel string) error {
	if err := c.remote.DeleteFile(ctx, c.remotePath(rel)); err != nil {
		return c.classify(err)
	}
	c.purge(rel)
	return nil
}

func (c *Core) purge(rel string) {
	c.mu.Lock()
	delete(c.attrs, rel)
	delete(c.reads, rel)
	delete(c.writes, rel)
	delete(c.dirs, rel)
	delete(c.dirs, path.Dir(rel))
	c.mu.Unlock()
}
