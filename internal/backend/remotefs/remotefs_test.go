package remotefs

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/agentvfs/nvim-agentfs/internal/backend/memfs"
	"github.com/agentvfs/nvim-agentfs/internal/vfscommon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPair(t *testing.T) *Backend {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	target := memfs.New()
	go Serve(serverConn, target)
	t.Cleanup(func() { clientConn.Close(); serverConn.Close() })
	return New(clientConn)
}

func TestRemoteOpenWriteReadRoundTrip(t *testing.T) {
	b := newTestPair(t)
	ctx := context.Background()

	fd, errno := b.Open(ctx, "/a.txt", vfscommon.OCreate|vfscommon.OWrite, 0)
	require.Equal(t, vfscommon.OK, errno)

	n, errno := b.Write(ctx, fd, []byte("hello"))
	require.Equal(t, vfscommon.OK, errno)
	assert.Equal(t, 5, n)

	require.Equal(t, vfscommon.OK, b.Close(ctx, fd))

	fd2, errno := b.Open(ctx, "/a.txt", vfscommon.ORead, 0)
	require.Equal(t, vfscommon.OK, errno)
	buf := make([]byte, 16)
	n, errno = b.Read(ctx, fd2, buf)
	require.Equal(t, vfscommon.OK, errno)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestRemoteStatAndReaddir(t *testing.T) {
	b := newTestPair(t)
	ctx := context.Background()

	fd, errno := b.Open(ctx, "/dir/file", vfscommon.OCreate|vfscommon.OWrite, 0)
	require.Equal(t, vfscommon.OK, errno)
	b.Write(ctx, fd, []byte("xyz"))
	require.Equal(t, vfscommon.OK, b.Close(ctx, fd))

	st, errno := b.Stat(ctx, "/dir/file")
	require.Equal(t, vfscommon.OK, errno)
	assert.Equal(t, int64(3), st.Size)

	entries, errno := b.Readdir(ctx, "/dir")
	require.Equal(t, vfscommon.OK, errno)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, "file")
}

func TestRemoteStatNotFound(t *testing.T) {
	b := newTestPair(t)
	_, errno := b.Stat(context.Background(), "/missing")
	assert.Equal(t, vfscommon.ENOENT, errno)
}

func TestRemoteCallTimesOut(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	b := New(clientConn)
	// No server goroutine reading: the write will eventually block on
	// net.Pipe's unbuffered channel past the call's deadline. Use a
	// short per-call context deadline so the test doesn't wait 5s.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, errno := b.Stat(ctx, "/x")
	assert.Equal(t, vfscommon.ETIMEDOUT, errno)
}
