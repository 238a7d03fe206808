package vfscommon

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanPath(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want string
		errno Errno
	}{
		{"/", "/", OK},
		{"/a/b", "/a/b", OK},
		{"/a//b", "/a/b", OK},
		{"/a/./b", "/a/b", OK},
		{"/a/../b", "", EINVAL},
		{"relative", "", EINVAL},
		{"", "", EINVAL},
	} {
		got, errno := CleanPath(tc.in)
		assert.Equal(t, tc.want, got, tc.in)
		assert.Equal(t, tc.errno, errno, tc.in)
	}
}

func TestCleanPathTooLong(t *testing.T) {
	long := "/" + strings.Repeat("a", MaxPathLen+1)
	_, errno := CleanPath(long)
	assert.Equal(t, EINVAL, errno)
}

func TestSplitComponents(t *testing.T) {
	parts, errno := SplitComponents("/workspace/hello.txt")
	assert.Equal(t, OK, errno)
	assert.Equal(t, []string{"workspace", "hello.txt"}, parts)

	parts, errno = SplitComponents("/")
	assert.Equal(t, OK, errno)
	assert.Nil(t, parts)
}
