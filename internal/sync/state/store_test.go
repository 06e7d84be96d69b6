package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMissingFile(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 0, store.Len())
}

func TestOpenCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, StateFileName), []byte("{not json"), 0600))

	store, err := Open(dir)
	require.NoError(t, err)
	assert.Equal(t, 0, store.Len())
}

func TestPutRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	require.NoError(t, err)

	localHash := "aaa"
	require.NoError(t, store.Put("/home/u/doc.txt", "/Shared/doc.txt", &localHash, nil))

	reopened, err := Open(dir)
	require.NoError(t, err)

	rec, ok := reopened.Get("/home/u/doc.txt", "/Shared/doc.txt")
	require.True(t, ok)
	require.NotNil(t, rec.LocalHash)
	assert.Equal(t, "aaa", *rec.LocalHash)
	assert.Nil(t, rec.RemoteHash)
	assert.NotEmpty(t, rec.LastSync)
}

func TestPersistedShape(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	require.NoError(t, err)

	h := "bbb"
	require.NoError(t, store.Put("/l/a", "/r/a", &h, nil))

	data, err := os.ReadFile(filepath.Join(dir, StateFileName))
	require.NoError(t, err)

	var raw map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))

	rec, ok := raw["/l/a:/r/a"]
	require.True(t, ok, "keys are <local>:<remote>")
	assert.Equal(t, "bbb", rec["local_hash"])
	assert.Contains(t, rec, "remote_hash")
	assert.Nil(t, rec["remote_hash"])
	assert.Contains(t, rec, "last_sync")
}

func TestObservedTriState(t *testing.T) {
	empty := ""
	hash := "ccc"

	assert.False(t, Record{}.LocalObserved(), "nil hash means absent")
	assert.False(t, Record{LocalHash: &empty}.LocalObserved(), "empty hash means unhashable, not observed")
	assert.True(t, Record{LocalHash: &hash}.LocalObserved())

	assert.False(t, Record{}.RemoteObserved())
	assert.True(t, Record{RemoteHash: &hash}.RemoteObserved())
}

func TestGetUnknownPair(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	_, ok := store.Get("/l/missing", "/r/missing")
	assert.False(t, ok)
}
