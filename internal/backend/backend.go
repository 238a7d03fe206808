// Package backend defines the six-operation storage contract every
// mount in the VFS substrate resolves onto (spec §4.1). Concrete
// backends live in sibling packages (memfs, remotefs, opfsfs, s3fs,
// sftpfs); the replay backend lives in package replay since it is
// paired tightly with the log reader.
package backend

import (
	"context"

	"github.com/agentvfs/nvim-agentfs/internal/vfscommon"
)

// Backend is the storage engine behind a mount. Every method is
// synchronous and must be internally deterministic for a fixed call
// sequence against a fresh instance (spec §4.1) — that property is what
// makes record/replay equivalence meaningful in package agent.
//
// A Backend must never recurse into the mount layer: subpath arguments
// are already relative to the mount, and a Backend has no way to reach
// any other mount.
type Backend interface {
	// Open resolves subpath under flags/mode and returns a backend-local
	// descriptor. Descriptors must be monotonic and never reused before
	// Close, matching spec §5's "Shared resources" requirement that the
	// mount layer can key a map by the fd a backend hands back.
	Open(ctx context.Context, subpath string, flags vfscommon.OpenFlags, mode vfscommon.Mode) (fd int, errno vfscommon.Errno)
	Close(ctx context.Context, fd int) vfscommon.Errno
	Read(ctx context.Context, fd int, buf []byte) (n int, errno vfscommon.Errno)
	Write(ctx context.Context, fd int, buf []byte) (n int, errno vfscommon.Errno)
	Stat(ctx context.Context, subpath string) (vfscommon.Stat, vfscommon.Errno)
	Readdir(ctx context.Context, subpath string) ([]vfscommon.DirEntry, vfscommon.Errno)
}

// Named is implemented by backends that report a short identifying
// name; it is optional.
type Named interface {
	Name() string
}

// StagingPreference is implemented by backends whose write commits are
// cheaper to stage through a temp area than to buffer fully in RAM
// (spec §4.3 "backend-staging" strategy) — s3fs is the one backend in
// this module that implements it.
// A backend that does not implement this interface is assumed to
// prefer in-RAM buffering.
type StagingPreference interface {
	PreferStaging() bool
}
