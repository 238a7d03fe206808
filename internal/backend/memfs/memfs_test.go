package memfs

import (
	"context"
	"testing"

	"github.com/agentvfs/nvim-agentfs/internal/vfscommon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := New()

	fd, errno := b.Open(ctx, "/hello.txt", vfscommon.OCreate|vfscommon.OWrite, 0644)
	require.Equal(t, vfscommon.OK, errno)

	n, errno := b.Write(ctx, fd, []byte("hello"))
	require.Equal(t, vfscommon.OK, errno)
	assert.Equal(t, 5, n)

	require.Equal(t, vfscommon.OK, b.Close(ctx, fd))

	fd2, errno := b.Open(ctx, "/hello.txt", vfscommon.ORead, 0)
	require.Equal(t, vfscommon.OK, errno)

	buf := make([]byte, 8)
	n, errno = b.Read(ctx, fd2, buf)
	require.Equal(t, vfscommon.OK, errno)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestOpenExclusiveExisting(t *testing.T) {
	ctx := context.Background()
	b := New()
	fd, errno := b.Open(ctx, "/x", vfscommon.OCreate|vfscommon.OWrite, 0)
	require.Equal(t, vfscommon.OK, errno)
	require.Equal(t, vfscommon.OK, b.Close(ctx, fd))

	_, errno = b.Open(ctx, "/x", vfscommon.OCreate|vfscommon.OExclusive|vfscommon.OWrite, 0)
	assert.Equal(t, vfscommon.EEXIST, errno)
}

func TestOpenMissingWithoutCreate(t *testing.T) {
	ctx := context.Background()
	b := New()
	_, errno := b.Open(ctx, "/missing", vfscommon.ORead, 0)
	assert.Equal(t, vfscommon.ENOENT, errno)
}

func TestTruncateAndAppend(t *testing.T) {
	ctx := context.Background()
	b := New()
	fd, _ := b.Open(ctx, "/f", vfscommon.OCreate|vfscommon.OWrite, 0)
	b.Write(ctx, fd, []byte("abcdef"))
	b.Close(ctx, fd)

	fd, errno := b.Open(ctx, "/f", vfscommon.OWrite|vfscommon.OTruncate, 0)
	require.Equal(t, vfscommon.OK, errno)
	n, errno := b.Write(ctx, fd, []byte("xyz"))
	require.Equal(t, vfscommon.OK, errno)
	assert.Equal(t, 3, n)
	b.Close(ctx, fd)

	fd, _ = b.Open(ctx, "/f", vfscommon.ORead, 0)
	buf := make([]byte, 16)
	n, _ = b.Read(ctx, fd, buf)
	assert.Equal(t, "xyz", string(buf[:n]))
	b.Close(ctx, fd)

	fd, _ = b.Open(ctx, "/f", vfscommon.OWrite|vfscommon.OAppend, 0)
	b.Write(ctx, fd, []byte("123"))
	b.Close(ctx, fd)

	fd, _ = b.Open(ctx, "/f", vfscommon.ORead, 0)
	n, _ = b.Read(ctx, fd, buf)
	assert.Equal(t, "xyz123", string(buf[:n]))
}

func TestReadEOF(t *testing.T) {
	ctx := context.Background()
	b := New()
	fd, _ := b.Open(ctx, "/empty", vfscommon.OCreate|vfscommon.ORead, 0)
	buf := make([]byte, 4)
	n, errno := b.Read(ctx, fd, buf)
	assert.Equal(t, vfscommon.OK, errno)
	assert.Equal(t, 0, n)
}

func TestStatDirAndFile(t *testing.T) {
	ctx := context.Background()
	b := New()
	fd, _ := b.Open(ctx, "/dir/file", vfscommon.OCreate|vfscommon.OWrite, 0)
	b.Write(ctx, fd, []byte("12345"))
	b.Close(ctx, fd)

	st, errno := b.Stat(ctx, "/dir")
	require.Equal(t, vfscommon.OK, errno)
	assert.True(t, st.Mode.IsDir())
	assert.Equal(t, int64(0), st.Size)

	st, errno = b.Stat(ctx, "/dir/file")
	require.Equal(t, vfscommon.OK, errno)
	assert.False(t, st.Mode.IsDir())
	assert.Equal(t, int64(5), st.Size)
}

func TestReaddirOrderingAndDotEntries(t *testing.T) {
	ctx := context.Background()
	b := New()
	for _, name := range []string{"/dir/b", "/dir/a", "/dir/c"} {
		fd, _ := b.Open(ctx, name, vfscommon.OCreate|vfscommon.OWrite, 0)
		b.Close(ctx, fd)
	}
	entries, errno := b.Readdir(ctx, "/dir")
	require.Equal(t, vfscommon.OK, errno)
	require.Len(t, entries, 5)
	assert.Equal(t, ".", entries[0].Name)
	assert.Equal(t, "..", entries[1].Name)
	assert.Equal(t, []string{"b", "a", "c"}, []string{entries[2].Name, entries[3].Name, entries[4].Name})
}

func TestDescriptorsReservedAndUnique(t *testing.T) {
	ctx := context.Background()
	b := New()
	fd1, _ := b.Open(ctx, "/a", vfscommon.OCreate|vfscommon.OWrite, 0)
	fd2, _ := b.Open(ctx, "/b", vfscommon.OCreate|vfscommon.OWrite, 0)
	assert.GreaterOrEqual(t, fd1, 3)
	assert.NotEqual(t, fd1, fd2)
}

func TestCloseInvalidatesDescriptor(t *testing.T) {
	ctx := context.Background()
	b := New()
	fd, _ := b.Open(ctx, "/a", vfscommon.OCreate|vfscommon.OWrite, 0)
	require.Equal(t, vfscommon.OK, b.Close(ctx, fd))
	_, errno := b.Read(ctx, fd, make([]byte, 1))
	assert.Equal(t, vfscommon.EBADF, errno)
}

func TestWalkAndReset(t *testing.T) {
	ctx := context.Background()
	b := New()
	fd, _ := b.Open(ctx, "/a/b.txt", vfscommon.OCreate|vfscommon.OWrite, 0)
	b.Write(ctx, fd, []byte("hi"))
	b.Close(ctx, fd)

	seen := map[string]string{}
	b.Walk(func(path string, content []byte) {
		seen[path] = string(content)
	})
	assert.Equal(t, map[string]string{"/a/b.txt": "hi"}, seen)

	b.Reset()
	seen = map[string]string{}
	b.Walk(func(path string, content []byte) {
		seen[path] = string(content)
	})
	assert.Empty(t, seen)
}
