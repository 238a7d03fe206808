//go:build !(js && wasm)

package opfsfs

import (
	"context"
	"testing"

	"github.com/agentvfs/nvim-agentfs/internal/vfscommon"
	"github.com/stretchr/testify/assert"
)

func TestUnsupportedBackendReturnsENOSYS(t *testing.T) {
	b := New()
	ctx := context.Background()

	_, errno := b.Open(ctx, "/a", vfscommon.OCreate, 0)
	assert.Equal(t, vfscommon.ENOSYS, errno)

	assert.Equal(t, vfscommon.ENOSYS, b.Close(ctx, 3))

	_, errno = b.Read(ctx, 3, make([]byte, 4))
	assert.Equal(t, vfscommon.ENOSYS, errno)

	_, errno = b.Write(ctx, 3, []byte("x"))
	assert.Equal(t, vfscommon.ENOSYS, errno)

	_, errno = b.Stat(ctx, "/a")
	assert.Equal(t, vfscommon.ENOSYS, errno)

	_, errno = b.Readdir(ctx, "/")
	assert.Equal(t, vfscommon.ENOSYS, errno)
}
