package vfsmount

import (
	"testing"

	"github.com/agentvfs/nvim-agentfs/internal/backend/memfs"
	"github.com/agentvfs/nvim-agentfs/internal/vfscommon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTable(t *testing.T) *Table {
	tbl := New()
	require.NoError(t, tbl.Add(&Mount{Mountpoint: "/", Backend: memfs.New(), Perm: PermReadWrite, Policy: vfscommon.ReadWritePolicy(0, 0)}))
	require.NoError(t, tbl.Add(&Mount{Mountpoint: "/runtime", Backend: memfs.New(), Perm: PermReadOnly, Policy: vfscommon.ReadOnlyPolicy()}))
	require.NoError(t, tbl.Add(&Mount{Mountpoint: "/workspace", Backend: memfs.New(), Perm: PermReadWrite, Policy: vfscommon.ReadWritePolicy(0, 0)}))
	require.NoError(t, tbl.Freeze())
	return tbl
}

func TestResolveLongestPrefix(t *testing.T) {
	tbl := newTestTable(t)

	m, sub, errno := tbl.Resolve("/workspace/a/b.txt")
	require.Equal(t, vfscommon.OK, errno)
	assert.Equal(t, "/workspace", m.Mountpoint)
	assert.Equal(t, "/a/b.txt", sub)

	m, sub, errno = tbl.Resolve("/etc/foo")
	require.Equal(t, vfscommon.OK, errno)
	assert.Equal(t, "/", m.Mountpoint)
	assert.Equal(t, "/etc/foo", sub)

	m, sub, errno = tbl.Resolve("/workspace")
	require.Equal(t, vfscommon.OK, errno)
	assert.Equal(t, "/workspace", m.Mountpoint)
	assert.Equal(t, "/", sub)
}

func TestResolveDoesNotMatchPartialComponent(t *testing.T) {
	tbl := newTestTable(t)
	m, _, errno := tbl.Resolve("/workspacefoo")
	require.Equal(t, vfscommon.OK, errno)
	assert.Equal(t, "/", m.Mountpoint, "must fall back to root, not /workspace")
}

func TestNoDuplicateMountpoints(t *testing.T) {
	tbl := New()
	require.NoError(t, tbl.Add(&Mount{Mountpoint: "/", Backend: memfs.New(), Perm: PermReadWrite}))
	err := tbl.Add(&Mount{Mountpoint: "/", Backend: memfs.New(), Perm: PermReadOnly})
	assert.Error(t, err)
}

func TestFreezeRequiresRoot(t *testing.T) {
	tbl := New()
	require.NoError(t, tbl.Add(&Mount{Mountpoint: "/workspace", Backend: memfs.New(), Perm: PermReadWrite}))
	assert.Error(t, tbl.Freeze())
}

func TestCheckOpenPermission(t *testing.T) {
	roMount := &Mount{Mountpoint: "/runtime", Perm: PermReadOnly}
	assert.Equal(t, vfscommon.EACCES, CheckOpenPermission(roMount, vfscommon.OWrite))
	assert.Equal(t, vfscommon.OK, CheckOpenPermission(roMount, vfscommon.ORead))

	rwMount := &Mount{Mountpoint: "/workspace", Perm: PermReadWrite}
	assert.Equal(t, vfscommon.OK, CheckOpenPermission(rwMount, vfscommon.OWrite|vfscommon.OCreate))
}

func TestAddAfterFreezeFails(t *testing.T) {
	tbl := newTestTable(t)
	err := tbl.Add(&Mount{Mountpoint: "/late", Backend: memfs.New(), Perm: PermReadOnly})
	assert.Error(t, err)
}
