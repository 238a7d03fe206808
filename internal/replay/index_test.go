package replay

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestIndex(t *testing.T) *ReplayIndex {
	t.Helper()
	idx, err := OpenIndex(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestIndexPutAndGet(t *testing.T) {
	idx := openTestIndex(t)
	entry := IndexEntry{SessionID: 42, LogPath: "/tmp/a.rpl", StartedAt: 100, Ops: 3, Bytes: 10, Mismatches: 0}
	require.NoError(t, idx.Put(entry))

	got, found, err := idx.Get(42)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, entry, got)
}

func TestIndexGetMissing(t *testing.T) {
	idx := openTestIndex(t)
	_, found, err := idx.Get(999)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestIndexListOrderedBySessionID(t *testing.T) {
	idx := openTestIndex(t)
	require.NoError(t, idx.Put(IndexEntry{SessionID: 5, LogPath: "b"}))
	require.NoError(t, idx.Put(IndexEntry{SessionID: 1, LogPath: "a"}))
	require.NoError(t, idx.Put(IndexEntry{SessionID: 9, LogPath: "c"}))

	entries, err := idx.List()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, uint64(1), entries[0].SessionID)
	assert.Equal(t, uint64(5), entries[1].SessionID)
	assert.Equal(t, uint64(9), entries[2].SessionID)
}

func TestIndexPutOverwritesExisting(t *testing.T) {
	idx := openTestIndex(t)
	require.NoError(t, idx.Put(IndexEntry{SessionID: 1, Ops: 1}))
	require.NoError(t, idx.Put(IndexEntry{SessionID: 1, Ops: 99}))

	got, found, err := idx.Get(1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint64(99), got.Ops)
}

func TestIndexDelete(t *testing.T) {
	idx := openTestIndex(t)
	require.NoError(t, idx.Put(IndexEntry{SessionID: 7}))
	require.NoError(t, idx.Delete(7))

	_, found, err := idx.Get(7)
	require.NoError(t, err)
	assert.False(t, found)
}
