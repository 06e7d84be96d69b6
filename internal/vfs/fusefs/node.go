// Package fusefs exposes the vfs core as a FUSE filesystem using
// go-fuse. Nodes hold only a relative path; all caching and buffering
// lives in the core.
package fusefs

import (
	"context"
	"errors"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/secho/egnyte-client-linux/internal/vfs"
)

// Node is one path in the mounted tree
type Node struct {
	fs.Inode

	core *vfs.Core
	path string
}

var (
	_ fs.NodeLookuper  = (*Node)(nil)
	_ fs.NodeGetattrer = (*Node)(nil)
	_ fs.NodeReaddirer = (*Node)(nil)
	_ fs.NodeOpener    = (*Node)(nil)
	_ fs.NodeReader    = (*Node)(nil)
	_ fs.NodeWriter    = (*Node)(nil)
	_ fs.NodeSetattrer = (*Node)(nil)
	_ fs.NodeCreater   = (*Node)(nil)
	_ fs.NodeMkdirer   = (*Node)(nil)
	_ fs.NodeUnlinker  = (*Node)(nil)
	_ fs.NodeRmdirer   = (*Node)(nil)
	_ fs.NodeFlusher   = (*Node)(nil)
	_ fs.NodeReleaser  = (*Node)(nil)
)

// NewRoot creates the root node over a mount core
func NewRoot(core *vfs.Core) *Node {
	return &Node{core: core}
}

func (n *Node) childPath(name string) string {
	if n.path == "" {
		return name
	}
	return n.path + "/" + name
}

func errno(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, vfs.ErrNotFound):
		return syscall.ENOENT
	default:
		return syscall.EIO
	}
}

func fillAttr(attr vfs.Attr, out *fuse.Attr) {
	if attr.IsDir {
		out.Mode = syscall.S_IFDIR | 0755
		out.Nlink = 2
	} else {
		out.Mode = syscall.S_IFREG | 0644
		out.Nlink = 1
	}
	out.Size = uint64(attr.Size)
	if !attr.ModTime.IsZero() {
		mtime := uint64(attr.ModTime.Unix())
		out.Mtime = mtime
		out.Atime = mtime
		out.Ctime = mtime
	}
}

// hashPath derives a stable inode number from a path (FNV-1a)
func hashPath(p string) uint64 {
	h := uint64(14695981039346656037)
	for _, c := range []byte(p) {
		h ^= uint64(c)
		h *= 1099511628211
	}
	return h
}

func stableAttr(p string, isDir bool) fs.StableAttr {
	mode := uint32(fuse.S_IFREG)
	if isDir {
		mode = fuse.S_IFDIR
	}
	return fs.StableAttr{Mode: mode, Ino: hashPath(p)}
}

func (n *Node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	attr, err := n.core.GetAttr(ctx, n.path)
	if err != nil {
		return errno(err)
	}
	fillAttr(attr, &out.Attr)
	out.SetTimeout(vfs.AttrTTL)
	return 0
}

func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	child := n.childPath(name)
	attr, err := n.core.GetAttr(ctx, child)
	if err != nil {
		return nil, errno(err)
	}

	fillAttr(attr, &out.Attr)
	out.SetAttrTimeout(vfs.AttrTTL)
	out.SetEntryTimeout(vfs.AttrTTL)

	node := &Node{core: n.core, path: child}
	return n.NewInode(ctx, node, stableAttr(child, attr.IsDir)), 0
}

func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries, err := n.core.ReadDir(ctx, n.path)
	if err != nil {
		return nil, errno(err)
	}

	dirEntries := make([]fuse.DirEntry, 0, len(entries))
	for _, entry := range entries {
		mode := uint32(fuse.S_IFREG)
		if entry.IsDir {
			mode = fuse.S_IFDIR
		}
		dirEntries = append(dirEntries, fuse.DirEntry{
			Name: entry.Name,
			Mode: mode,
			Ino:  hashPath(n.childPath(entry.Name)),
		})
	}
	return fs.NewListDirStream(dirEntries), 0
}

func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	writing := flags&(syscall.O_WRONLY|syscall.O_RDWR|syscall.O_APPEND|syscall.O_TRUNC) != 0
	if !writing {
		return nil, fuse.FOPEN_KEEP_CACHE, 0
	}

	truncate := flags&syscall.O_TRUNC != 0
	if err := n.core.OpenWrite(ctx, n.path, truncate); err != nil {
		return nil, 0, errno(err)
	}
	return nil, fuse.FOPEN_DIRECT_IO, 0
}

func (n *Node) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	read, err := n.core.Read(ctx, n.path, dest, off)
	if err != nil {
		return nil, errno(err)
	}
	return fuse.ReadResultData(dest[:read]), 0
}

func (n *Node) Write(ctx context.Context, f fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	written, err := n.core.Write(n.path, data, off)
	if err != nil {
		return 0, syscall.EIO
	}
	return uint32(written), 0
}

func (n *Node) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if in.Valid&fuse.FATTR_SIZE != 0 {
		if !n.core.HasWriteBuffer(n.path) {
			if err := n.core.OpenWrite(ctx, n.path, in.Size == 0); err != nil {
				return errno(err)
			}
		}
		n.core.Truncate(n.path, int64(in.Size))
	}
	return n.Getattr(ctx, f, out)
}

func (n *Node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	child := n.childPath(name)
	n.core.Create(child)

	fillAttr(vfs.Attr{}, &out.Attr)
	out.SetAttrTimeout(vfs.AttrTTL)
	out.SetEntryTimeout(vfs.AttrTTL)

	node := &Node{core: n.core, path: child}
	return n.NewInode(ctx, node, stableAttr(child, false)), nil, fuse.FOPEN_DIRECT_IO, 0
}

func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	child := n.childPath(name)
	if err := n.core.Mkdir(ctx, child); err != nil {
		return nil, errno(err)
	}

	fillAttr(vfs.Attr{IsDir: true}, &out.Attr)
	out.SetAttrTimeout(vfs.AttrTTL)
	out.SetEntryTimeout(vfs.AttrTTL)

	node := &Node{core: n.core, path: child}
	return n.NewInode(ctx, node, stableAttr(child, true)), 0
}

func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	return errno(n.core.Unlink(ctx, n.childPath(name)))
}

func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	return errno(n.core.Rmdir(ctx, n.childPath(name)))
}

func (n *Node) Flush(ctx context.Context, f fs.FileHandle) syscall.Errno {
	return errno(n.core.Release(ctx, n.path))
}

func (n *Node) Release(ctx context.Context, f fs.FileHandle) syscall.Errno {
	return errno(n.core.Release(ctx, n.path))
}
