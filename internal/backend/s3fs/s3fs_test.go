package s3fs

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/agentvfs/nvim-agentfs/internal/vfscommon"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 is an in-memory stand-in for the slice of the SDK s3fs.api
// needs, keyed exactly like a real bucket would be.
type fakeS3 struct {
	objects map[string][]byte
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: make(map[string][]byte)} }

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "no such key", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObjectWithContext(_ aws.Context, in *s3.HeadObjectInput, _ ...request.Option) (*s3.HeadObjectOutput, error) {
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, awserr.New("NotFound", "not found", nil)
	}
	size := int64(len(data))
	return &s3.HeadObjectOutput{ContentLength: &size}, nil
}

func (f *fakeS3) ListObjectsV2WithContext(_ aws.Context, in *s3.ListObjectsV2Input, _ ...request.Option) (*s3.ListObjectsV2Output, error) {
	prefix := aws.StringValue(in.Prefix)
	seenDirs := make(map[string]bool)
	out := &s3.ListObjectsV2Output{}
	for key := range f.objects {
		if len(key) < len(prefix) || key[:len(prefix)] != prefix {
			continue
		}
		rest := key[len(prefix):]
		if in.Delimiter != nil {
			if idx := indexByte(rest, '/'); idx >= 0 {
				dir := prefix + rest[:idx+1]
				if !seenDirs[dir] {
					seenDirs[dir] = true
					out.CommonPrefixes = append(out.CommonPrefixes, &s3.CommonPrefix{Prefix: aws.String(dir)})
				}
				continue
			}
		}
		k := key
		out.Contents = append(out.Contents, &s3.Object{Key: &k})
	}
	return out, nil
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func newTestBackend() (*Backend, *fakeS3) {
	fake := newFakeS3()
	return newWithClient(Config{Bucket: "test-bucket", Prefix: "root"}, fake), fake
}

func TestS3WriteReadRoundTrip(t *testing.T) {
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

func TestS3StatMissingReturnsENOENT(t *testing.T) {
	b, _ := newTestBackend()
	_, errno := b.Stat(context.Background(), "/missing")
	assert.Equal(t, vfscommon.ENOENT, errno)
}

func TestS3StatReportsObjectSize(t *testing.T) {
	b, fake := newTestBackend()
	fake.objects["root/dir/f"] = []byte("abcdef")

	st, errno := b.Stat(context.Background(), "/dir/f")
	require.Equal(t, vfscommon.OK, errno)
	assert.Equal(t, int64(6), st.Size)
}

func TestS3ReaddirSplitsFilesAndPrefixes(t *testing.T) {
	b, fake := newTestBackend()
	fake.objects["root/dir/file1"] = []byte("1")
	fake.objects["root/dir/file2"] = []byte("2")
	fake.objects["root/dir/sub/nested"] = []byte("3")

	entries, errno := b.Readdir(context.Background(), "/dir")
	require.Equal(t, vfscommon.OK, errno)

	var names []string
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		names = append(names, e.Name)
	}
	assert.ElementsMatch(t, []string{"file1", "file2", "sub"}, names)
}

func TestS3PreferStaging(t *testing.T) {
	b, _ := newTestBackend()
	assert.True(t, b.PreferStaging())
}
