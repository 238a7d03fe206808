package stage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/agentvfs/nvim-agentfs/internal/vfscommon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	got []byte
}

func (f *fakeWriter) Write(_ context.Context, _ int, buf []byte) (int, vfscommon.Errno) {
	f.got = append(f.got, buf...)
	return len(buf), vfscommon.OK
}

func TestStageAppendAndCommit(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "stage.db"))
	require.NoError(t, err)
	defer s.Close()

	key := s.NewKey("/workspace/big.bin")
	require.NoError(t, s.Append(key, []byte("hello ")))
	require.NoError(t, s.Append(key, []byte("world")))

	n, err := s.Len(key)
	require.NoError(t, err)
	assert.Equal(t, 11, n)

	fw := &fakeWriter{}
	errno := s.CommitTo(context.Background(), key, 3, fw)
	require.Equal(t, vfscommon.OK, errno)
	assert.Equal(t, "hello world", string(fw.got))

	n, err = s.Len(key)
	require.NoError(t, err)
	assert.Zero(t, n, "staged entry must be cleared after commit")
}

func TestStageDiscard(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "stage.db"))
	require.NoError(t, err)
	defer s.Close()

	key := s.NewKey("/x")
	require.NoError(t, s.Append(key, []byte("abc")))
	require.NoError(t, s.Discard(key))

	n, err := s.Len(key)
	require.NoError(t, err)
	assert.Zero(t, n)
}
