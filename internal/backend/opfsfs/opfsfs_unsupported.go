//go:build !(js && wasm)

package opfsfs

import (
	"context"

	"github.com/agentvfs/nvim-agentfs/internal/vfscommon"
)

// Backend is the inert stand-in used on every build except js/wasm.
// It exists purely so a mount table referencing an "opfs" backend kind
// compiles and runs identically across targets; every call fails with
// ENOSYS rather than panicking or being compiled out, matching the
// teacher's `cache_unsupported.go` stub philosophy of "present in the
// tree, behaviorally absent".
type Backend struct{}

// New returns the inert stand-in.
func New() *Backend { return &Backend{} }

// Name implements backend.Named.
func (b *Backend) Name() string { return "opfs (unsupported on this build)" }

func (b *Backend) Open(ctx context.Context, subpath string, flags vfscommon.OpenFlags, mode vfscommon.Mode) (int, vfscommon.Errno) {
	return -1, vfscommon.ENOSYS
}

func (b *Backend) Close(ctx context.Context, fd int) vfscommon.Errno {
	return vfscommon.ENOSYS
}

func (b *Backend) Read(ctx context.Context, fd int, buf []byte) (int, vfscommon.Errno) {
	return 0, vfscommon.ENOSYS
}

func (b *Backend) Write(ctx context.Context, fd int, buf []byte) (int, vfscommon.Errno) {
	return 0, vfscommon.ENOSYS
}

func (b *Backend) Stat(ctx context.Context, subpath string) (vfscommon.Stat, vfscommon.Errno) {
	return vfscommon.Stat{}, vfscommon.ENOSYS
}

func (b *Backend) Readdir(ctx context.Context, subpath string) ([]vfscommon.DirEntry, vfscommon.Errno) {
	return nil, vfscommon.ENOSYS
}
