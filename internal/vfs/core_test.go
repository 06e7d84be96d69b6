package vfs

import (
	"context"
	"net/http"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secho/egnyte-client-linux/internal/api"
)

type fakeStore struct {
	files   map[string][]byte
	folders map[string]bool

	infoCalls     int
	listCalls     int
	downloadCalls int
	uploads       []string
	deletes       []string

	err error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		files:   make(map[string][]byte),
		folders: map[string]bool{"/Shared": true},
	}
}

func (f *fakeStore) ListFolder(ctx context.Context, remotePath string) ([]api.Metadata, error) {
	f.listCalls++
	if f.err != nil {
		return nil, f.err
	}
	var items []api.Metadata
	for folder := range f.folders {
		if path.Dir(folder) == remotePath {
			items = append(items, api.Metadata{Name: path.Base(folder), Path: folder, IsFolder: true})
		}
	}
	for file, content := range f.files {
		if path.Dir(file) == remotePath {
			items = append(items, api.Metadata{Name: path.Base(file), Path: file, Size: int64(len(content))})
		}
	}
	return items, nil
}

func (f *fakeStore) GetFileInfo(ctx context.Context, remotePath string) (api.Metadata, error) {
	f.infoCalls++
	if f.err != nil {
		return api.Metadata{}, f.err
	}
	if content, ok := f.files[remotePath]; ok {
		return api.Metadata{Name: path.Base(remotePath), Path: remotePath, Size: int64(len(content))}, nil
	}
	if f.folders[remotePath] {
		return api.Metadata{Name: path.Base(remotePath), Path: remotePath, IsFolder: true}, nil
	}
	return api.Metadata{}, &api.Error{StatusCode: http.StatusNotFound, Path: remotePath}
}

func (f *fakeStore) DownloadFile(ctx context.Context, remotePath, localPath string) ([]byte, error) {
	f.downloadCalls++
	if f.err != nil {
		return nil, f.err
	}
	content, ok := f.files[remotePath]
	if !ok {
		return nil, &api.Error{StatusCode: http.StatusNotFound, Path: remotePath}
	}
	return content, nil
}

func (f *fakeStore) UploadBytes(ctx context.Context, remotePath string, data []byte, overwrite, createFolders bool) (api.Metadata, error) {
	if f.err != nil {
		return api.Metadata{}, f.err
	}
	f.files[remotePath] = append([]byte(nil), data...)
	f.uploads = append(f.uploads, remotePath)
	return api.Metadata{Name: path.Base(remotePath), Path: remotePath, Size: int64(len(data))}, nil
}

func (f *fakeStore) CreateFolder(ctx context.Context, remotePath string) error {
	if f.err != nil {
		return f.err
	}
	f.folders[remotePath] = true
	return nil
}

func (f *fakeStore) DeleteFile(ctx context.Context, remotePath string) error {
	if f.err != nil {
		return f.err
	}
	f.deletes = append(f.deletes, remotePath)
	delete(f.files, remotePath)
	delete(f.folders, remotePath)
	return nil
}

func newTestCore(t *testing.T) (*Core, *fakeStore, *time.Time) {
	t.Helper()
	store := newFakeStore()
	core := NewCore(store, "/Shared", nil)
	clock := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	core.now = func() time.Time { return clock }
	return core, store, &clock
}

func TestRootIsSyntheticDirectory(t *testing.T) {
	core, store, _ := newTestCore(t)

	for _, rel := range []string{"", "/", "."} {
		attr, err := core.GetAttr(context.Background(), rel)
		require.NoError(t, err)
		assert.True(t, attr.IsDir)
	}
	assert.Equal(t, 0, store.infoCalls)
}

func TestNoiseNamesShortCircuit(t *testing.T) {
	core, store, _ := newTestCore(t)

	noise := []string{
		".hidden", ".xdg-volume-info", "autorun.inf", ".directory",
		"desktop.ini", "Thumbs.db", ".Trash", ".Trash-1000",
	}
	for _, name := range noise {
		_, err := core.GetAttr(context.Background(), name)
		assert.ErrorIs(t, err, ErrNotFound, name)
		_, err = core.GetAttr(context.Background(), "sub/"+name)
		assert.ErrorIs(t, err, ErrNotFound, name)
	}
	assert.Equal(t, 0, store.infoCalls, "noise lookups must not reach the API")
}

func TestGetAttrCachesWithinTTL(t *testing.T) {
	core, store, clock := newTestCore(t)
	store.files["/Shared/doc.txt"] = []byte("hello")

	attr, err := core.GetAttr(context.Background(), "doc.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), attr.Size)

	_, err = core.GetAttr(context.Background(), "doc.txt")
	require.NoError(t, err)
	assert.Equal(t, 1, store.infoCalls)

	*clock = clock.Add(AttrTTL + time.Second)
	_, err = core.GetAttr(context.Background(), "doc.txt")
	require.NoError(t, err)
	assert.Equal(t, 2, store.infoCalls, "expired entries refetch")
}

func TestGetAttrMissingFile(t *testing.T) {
	core, _, _ := newTestCore(t)

	_, err := core.GetAttr(context.Background(), "nope.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetAttrRemoteFailure(t *testing.T) {
	core, store, _ := newTestCore(t)
	store.err = &api.Error{StatusCode: http.StatusInternalServerError}

	_, err := core.GetAttr(context.Background(), "doc.txt")
	assert.ErrorIs(t, err, ErrRemote)

	select {
	case <-core.Fault():
		t.Fatal("a 500 must not trigger an unmount")
	default:
	}
}

func TestGetAttrRateLimitRaisesFault(t *testing.T) {
	core, store, _ := newTestCore(t)
	store.err = &api.Error{StatusCode: http.StatusTooManyRequests}

	_, err := core.GetAttr(context.Background(), "doc.txt")
	require.Error(t, err)

	select {
	case faultErr := <-core.Fault():
		assert.True(t, api.IsRateLimited(faultErr))
	default:
		t.Fatal("rate limiting must surface on the fault channel")
	}
}

func TestReadDirCachesAndSeedsAttrs(t *testing.T) {
	core, store, _ := newTestCore(t)
	store.files["/Shared/a.txt"] = []byte("aa")
	store.folders["/Shared/sub"] = true

	entries, err := core.ReadDir(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	_, err = core.ReadDir(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, store.listCalls)

	// Listing already cached the attrs
	attr, err := core.GetAttr(context.Background(), "a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(2), attr.Size)
	assert.Equal(t, 0, store.infoCalls)
}

func TestReadCachesWholeFileForSession(t *testing.T) {
	core, store, clock := newTestCore(t)
	store.files["/Shared/doc.txt"] = []byte("hello world")

	dest := make([]byte, 5)
	n, err := core.Read(context.Background(), "doc.txt", dest, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(dest[:n]))

	n, err = core.Read(context.Background(), "doc.txt", dest, 6)
	require.NoError(t, err)
	assert.Equal(t, "world", string(dest[:n]))

	*clock = clock.Add(time.Hour)
	_, err = core.Read(context.Background(), "doc.txt", dest, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, store.downloadCalls, "read cache never expires within a session")
}

func TestReadPastEnd(t *testing.T) {
	core, store, _ := newTestCore(t)
	store.files["/Shared/doc.txt"] = []byte("abc")

	n, err := core.Read(context.Background(), "doc.txt", make([]byte, 4), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCreateIsLocalOnly(t *testing.T) {
	core, store, _ := newTestCore(t)

	core.Create("new.txt")

	attr, err := core.GetAttr(context.Background(), "new.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(0), attr.Size)
	assert.Equal(t, 0, store.infoCalls)
	assert.Empty(t, store.uploads)
}

func TestWritePadsOffsetGapsWithZeros(t *testing.T) {
	core, _, _ := newTestCore(t)
	core.Create("sparse.bin")

	n, err := core.Write("sparse.bin", []byte("xy"), 4)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	dest := make([]byte, 10)
	read, err := core.Read(context.Background(), "sparse.bin", dest, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0, 'x', 'y'}, dest[:read])
}

func TestReleaseUploadsAndDiscardsBuffer(t *testing.T) {
	core, store, _ := newTestCore(t)
	core.Create("doc.txt")
	_, err := core.Write("doc.txt", []byte("payload"), 0)
	require.NoError(t, err)

	require.NoError(t, core.Release(context.Background(), "doc.txt"))

	assert.Equal(t, []string{"/Shared/doc.txt"}, store.uploads)
	assert.Equal(t, []byte("payload"), store.files["/Shared/doc.txt"])
	assert.False(t, core.HasWriteBuffer("doc.txt"))

	// The released content serves reads without a download
	dest := make([]byte, 7)
	n, err := core.Read(context.Background(), "doc.txt", dest, 0)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(dest[:n]))
	assert.Equal(t, 0, store.downloadCalls)
}

func TestReleaseWithoutBufferIsNoOp(t *testing.T) {
	core, store, _ := newTestCore(t)

	require.NoError(t, core.Release(context.Background(), "untouched.txt"))
	assert.Empty(t, store.uploads)
}

func TestOpenWriteSeedsExistingContent(t *testing.T) {
	core, store, _ := newTestCore(t)
	store.files["/Shared/doc.txt"] = []byte("original text")

	require.NoError(t, core.OpenWrite(context.Background(), "doc.txt", false))
	_, err := core.Write("doc.txt", []byte("NEW"), 0)
	require.NoError(t, err)
	require.NoError(t, core.Release(context.Background(), "doc.txt"))

	assert.Equal(t, []byte("NEWginal text"), store.files["/Shared/doc.txt"])
}

func TestOpenWriteTruncate(t *testing.T) {
	core, store, _ := newTestCore(t)
	store.files["/Shared/doc.txt"] = []byte("original text")

	require.NoError(t, core.OpenWrite(context.Background(), "doc.txt", true))
	_, err := core.Write("doc.txt", []byte("NEW"), 0)
	require.NoError(t, err)
	require.NoError(t, core.Release(context.Background(), "doc.txt"))

	assert.Equal(t, []byte("NEW"), store.files["/Shared/doc.txt"])
	assert.Equal(t, 0, store.downloadCalls, "truncate skips the seed download")
}

func TestTruncateResizesBuffer(t *testing.T) {
	core, _, _ := newTestCore(t)
	core.Create("doc.txt")
	_, err := core.Write("doc.txt", []byte("abcdef"), 0)
	require.NoError(t, err)

	core.Truncate("doc.txt", 3)

	attr, err := core.GetAttr(context.Background(), "doc.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(3), attr.Size)
}

func TestMkdirCachesSyntheticAttr(t *testing.T) {
	core, store, _ := newTestCore(t)

	require.NoError(t, core.Mkdir(context.Background(), "newdir"))

	assert.True(t, store.folders["/Shared/newdir"])
	attr, err := core.GetAttr(context.Background(), "newdir")
	require.NoError(t, err)
	assert.True(t, attr.IsDir)
	assert.Equal(t, 0, store.infoCalls)
}

func TestUnlinkPurgesCaches(t *testing.T) {
	core, store, _ := newTestCore(t)
	store.files["/Shared/doc.txt"] = []byte("bye")

	_, err := core.GetAttr(context.Background(), "doc.txt")
	require.NoError(t, err)

	require.NoError(t, core.Unlink(context.Background(), "doc.txt"))
	assert.Equal(t, []string{"/Shared/doc.txt"}, store.deletes)

	_, err = core.GetAttr(context.Background(), "doc.txt")
	assert.ErrorIs(t, err, ErrNotFound, "the stale attr cache must not survive the delete")
}

func TestRmdir(t *testing.T) {
	core, store, _ := newTestCore(t)
	store.folders["/Shared/sub"] = true

	require.NoError(t, core.Rmdir(context.Background(), "sub"))
	assert.Equal(t, []string{"/Shared/sub"}, store.deletes)
}
