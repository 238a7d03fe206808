package sftpfs

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/agentvfs/nvim-agentfs/internal/vfscommon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFile is an in-memory stand-in for *sftp.File.
type fakeFile struct {
	buf    *bytes.Buffer
	closed bool
}

func (f *fakeFile) Read(p []byte) (int, error)  { return f.buf.Read(p) }
func (f *fakeFile) Write(p []byte) (int, error) { return f.buf.Write(p) }
func (f *fakeFile) Close() error                { f.closed = true; return nil }

// fakeFileInfo is a minimal os.FileInfo for directory-listing tests.
type fakeFileInfo struct {
	name  string
	size  int64
	isDir bool
}

func (fi fakeFileInfo) Name() string       { return fi.name }
func (fi fakeFileInfo) Size() int64        { return fi.size }
func (fi fakeFileInfo) Mode() os.FileMode  { return 0 }
func (fi fakeFileInfo) ModTime() time.Time { return time.Time{} }
func (fi fakeFileInfo) IsDir() bool        { return fi.isDir }
func (fi fakeFileInfo) Sys() any           { return nil }

type fakeClient struct {
	files map[string]*bytes.Buffer
	dirs  map[string][]os.FileInfo
}

func newFakeClient() *fakeClient {
	return &fakeClient{files: make(map[string]*bytes.Buffer), dirs: make(map[string][]os.FileInfo)}
}

func (c *fakeClient) OpenFile(path string, flag int) (sftpFile, error) {
	buf, ok := c.files[path]
	if !ok {
		if flag&os.O_CREATE == 0 {
			return nil, os.ErrNotExist
		}
		buf = &bytes.Buffer{}
		c.files[path] = buf
	}
	if flag&os.O_TRUNC != 0 {
		buf.Reset()
	}
	return &fakeFile{buf: buf}, nil
}

func (c *fakeClient) Mkdir(path string) error { return nil }

func (c *fakeClient) Stat(path string) (os.FileInfo, error) {
	if infos, ok := c.dirs[path]; ok {
		_ = infos
		return fakeFileInfo{name: path, isDir: true}, nil
	}
	buf, ok := c.files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return fakeFileInfo{name: path, size: int64(buf.Len())}, nil
}

func (c *fakeClient) ReadDir(path string) ([]os.FileInfo, error) {
	infos, ok := c.dirs[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return infos, nil
}

func newTestBackend() (*Backend, *fakeClient) {
	fake := newFakeClient()
	return newWithClient("/home/agent", fake), fake
}

func TestSFTPWriteReadRoundTrip(t *testing.T) {
	b, _ := newTestBackend()
	ctx := context.Background()

	fd, errno := b.Open(ctx, "/a.txt", vfscommon.OCreate|vfscommon.OWrite|vfscommon.OTruncate, 0)
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

func TestSFTPOpenMissingWithoutCreateIsENOENT(t *testing.T) {
	b, _ := newTestBackend()
	_, errno := b.Open(context.Background(), "/missing.txt", vfscommon.ORead, 0)
	assert.Equal(t, vfscommon.ENOENT, errno)
}

func TestSFTPStatFile(t *testing.T) {
	b, fake := newTestBackend()
	fake.files["/home/agent/dir/f"] = bytes.NewBufferString("abcdef")

	st, errno := b.Stat(context.Background(), "/dir/f")
	require.Equal(t, vfscommon.OK, errno)
	assert.Equal(t, int64(6), st.Size)
	assert.False(t, st.Mode.IsDir())
}

func TestSFTPStatMissingIsENOENT(t *testing.T) {
	b, _ := newTestBackend()
	_, errno := b.Stat(context.Background(), "/nope")
	assert.Equal(t, vfscommon.ENOENT, errno)
}

func TestSFTPReaddir(t *testing.T) {
	b, fake := newTestBackend()
	fake.dirs["/home/agent/dir"] = []os.FileInfo{
		fakeFileInfo{name: "file1"},
		fakeFileInfo{name: "sub", isDir: true},
	}

	entries, errno := b.Readdir(context.Background(), "/dir")
	require.Equal(t, vfscommon.OK, errno)

	var names []string
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		names = append(names, e.Name)
	}
	assert.ElementsMatch(t, []string{"file1", "sub"}, names)
}

func TestSFTPCloseUnknownFdIsEBADF(t *testing.T) {
	b, _ := newTestBackend()
	assert.Equal(t, vfscommon.EBADF, b.Close(context.Background(), 999))
}
