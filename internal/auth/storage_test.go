package auth

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStorageRoundTrip(t *testing.T) {
	store := NewFileStorage(t.TempDir())

	saved := TokenSet{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		Expiry:       time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Save(saved))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, saved.AccessToken, loaded.AccessToken)
	assert.Equal(t, saved.RefreshToken, loaded.RefreshToken)
	assert.True(t, saved.Expiry.Equal(loaded.Expiry))
}

func TestFileStorageMissingFile(t *testing.T) {
	store := NewFileStorage(t.TempDir())

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestFileStorageCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, tokenFileName), []byte("{broken"), 0600))

	store := NewFileStorage(dir)
	_, err := store.Load()
	assert.Error(t, err)
}

func TestFileStoragePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes not meaningful on windows")
	}
	dir := t.TempDir()
	store := NewFileStorage(dir)
	require.NoError(t, store.Save(TokenSet{AccessToken: "secret"}))

	info, err := os.Stat(filepath.Join(dir, tokenFileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFileStorageDeleteIdempotent(t *testing.T) {
	store := NewFileStorage(t.TempDir())
	require.NoError(t, store.Save(TokenSet{AccessToken: "x"}))

	require.NoError(t, store.Delete())
	require.NoError(t, store.Delete())

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}
