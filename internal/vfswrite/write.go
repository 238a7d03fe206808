// Package vfswrite implements the write layer: per-descriptor write
// contexts that buffer every write in memory (or backend staging,
// package vfswrite/stage) until close, at which point the buffer is
// committed atomically or discarded entirely (spec §4.3). Grounded on
// vfs_write.c/vfs_write.h for the field set, and on the teacher's
// vfs.RWFileHandle (vfs/read_write_test.go) for the Go shape of a
// buffered write handle.
package vfswrite

import (
	"context"
	"os"
	"sync"
	"sync/atomic"

	"github.com/agentvfs/nvim-agentfs/internal/metrics"
	"github.com/agentvfs/nvim-agentfs/internal/vfscommon"
	"github.com/agentvfs/nvim-agentfs/internal/vfswrite/stage"
)

// ErrClosed is returned by Context methods called after Commit has run,
// mirroring the teacher's ECLOSED sentinel for a handle used past close.
var ErrClosed = vfscommon.EBADF

// forceCommitFailure is the environment-controlled test hook named in
// spec §6: "One environment-controlled test hook enables forced commit
// failure (to exercise atomicity)". It is read once at package init and
// can be overridden at runtime by tests via SetForceCommitFailure.
var forceCommitFailure int32

func init() {
	if os.Getenv("NVIM_AGENTFS_FORCE_COMMIT_FAILURE") != "" {
		atomic.StoreInt32(&forceCommitFailure, 1)
	}
}

// SetForceCommitFailure flips the test hook. It is how the dedicated
// test hook mentioned in spec §4.3 ("forcing commit failure after the
// buffer is built") is driven from Go tests.
func SetForceCommitFailure(on bool) {
	v := int32(0)
	if on {
		v = 1
	}
	atomic.StoreInt32(&forceCommitFailure, v)
}

func commitShouldFail() bool {
	return atomic.LoadInt32(&forceCommitFailure) != 0
}

// Accounting tracks the live buffered-byte total for one mount, shared
// across every write context open on that mount (spec §3: "per-mount
// limits" are "kept under policy cap" across contexts).
type Accounting struct {
	mu   sync.Mutex
	used int64
}

func (a *Accounting) tryReserve(n int64, limit int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if limit > 0 && a.used+n > limit {
		return false
	}
	a.used += n
	return true
}

func (a *Accounting) release(n int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.used -= n
}

// Context is the per-descriptor pending-write state (spec §3 "Write
// Context"). It is created when a descriptor is opened writable and
// destroyed when it is closed, regardless of whether the commit
// succeeded.
//
// truncate records that the open that created this context carried the
// truncate flag. The facade strips that flag before it ever reaches the
// backend's own Open, precisely so the backend's content is untouched
// until commit — applying truncate immediately at open time would let a
// fresh descriptor opened concurrently observe a half-written file,
// which the write-isolation invariant forbids.
type Context struct {
	backendFd int
	subpath   string
	policy    vfscommon.WritePolicy
	acct      *Accounting
	buffer    []byte
	truncate  bool
	closed    bool

	// staging is non-nil when policy.Strategy is StrategyBackendStaging
	// and the caller supplied a store; pendingBytes then tracks the
	// staged length instead of len(buffer), since buffer stays empty on
	// this path (spec §4.3 EXPANSION "backend-staging strategy").
	staging      *stage.Store
	stageKey     stage.Key
	pendingBytes int64
}

// NewContext allocates a write context for a freshly opened writable
// descriptor. acct must be the Accounting shared by every context on
// the same mount. store may be nil; it is only consulted when policy
// selects StrategyBackendStaging, matching a mount whose backend
// reported backend.StagingPreference at table-build time.
func NewContext(backendFd int, subpath string, policy vfscommon.WritePolicy, acct *Accounting, truncate bool, store *stage.Store) *Context {
	c := &Context{backendFd: backendFd, subpath: subpath, policy: policy, acct: acct, truncate: truncate}
	if policy.Strategy == vfscommon.StrategyBackendStaging && store != nil {
		c.staging = store
		c.stageKey = store.NewKey(subpath)
	}
	return c
}

// Write appends to the pending buffer without ever calling the backend
// (spec §4.3 step 2). Exceeding either limit fails the whole append;
// there is no partial append on failure.
func (c *Context) Write(buf []byte) (int, vfscommon.Errno) {
	if c.closed {
		return 0, ErrClosed
	}
	n := int64(len(buf))
	if c.policy.PerFDLimit > 0 && c.pendingBytes+n > c.policy.PerFDLimit {
		return 0, vfscommon.ENOSPC
	}
	if !c.acct.tryReserve(n, c.policy.PerMountLimit) {
		return 0, vfscommon.ENOSPC
	}
	if c.staging != nil {
		if err := c.staging.Append(c.stageKey, buf); err != nil {
			c.acct.release(n)
			return 0, vfscommon.EIO
		}
	} else {
		c.buffer = append(c.buffer, buf...)
	}
	c.pendingBytes += n
	return len(buf), vfscommon.OK
}

// Len reports the number of pending buffered bytes (in RAM or staged),
// the in-flight length before close, the way RWFileHandle.Size reports
// it (vfs/read_write_test.go TestRWFileHandleMethodsRead).
func (c *Context) Len() int { return int(c.pendingBytes) }

// Committer is the surface Commit needs from a backend. Open/Close are
// only used when the context's truncate flag is set, to get a freshly
// truncated descriptor at commit time rather than at the original open
// (see the Context doc comment). The real backend.Backend satisfies
// this directly.
type Committer interface {
	Open(ctx context.Context, subpath string, flags vfscommon.OpenFlags, mode vfscommon.Mode) (int, vfscommon.Errno)
	Close(ctx context.Context, fd int) vfscommon.Errno
	Write(ctx context.Context, fd int, buf []byte) (int, vfscommon.Errno)
}

// Commit applies the buffered bytes as one logical write and releases
// this context's share of the mount's accounting regardless of outcome
// (spec §4.3 step 4: "On any failure ... the buffer is discarded"). The
// caller is responsible for closing the descriptor's own original
// backend fd; Commit only closes the ephemeral truncate-reopen fd it
// creates itself.
func (c *Context) Commit(ctx context.Context, be Committer) vfscommon.Errno {
	if c.closed {
		return ErrClosed
	}
	defer func() {
		c.acct.release(c.pendingBytes)
		c.closed = true
	}()

	if commitShouldFail() {
		if c.staging != nil {
			c.staging.Discard(c.stageKey)
		}
		return vfscommon.EIO
	}

	targetFd := c.backendFd
	if c.truncate {
		fd, errno := be.Open(ctx, c.subpath, vfscommon.OWrite|vfscommon.OCreate|vfscommon.OTruncate, 0)
		if errno != vfscommon.OK {
			if c.staging != nil {
				c.staging.Discard(c.stageKey)
			}
			return vfscommon.EIO
		}
		defer be.Close(ctx, fd)
		targetFd = fd
	}

	if c.staging != nil {
		if errno := c.staging.CommitTo(ctx, c.stageKey, targetFd, be); errno != vfscommon.OK {
			return errno
		}
		metrics.RecordBytesWritten(int(c.pendingBytes))
		return vfscommon.OK
	}

	remaining := c.buffer
	for len(remaining) > 0 {
		n, errno := be.Write(ctx, targetFd, remaining)
		if errno != vfscommon.OK {
			return vfscommon.EIO
		}
		if n <= 0 {
			return vfscommon.EIO
		}
		remaining = remaining[n:]
	}
	metrics.RecordBytesWritten(len(c.buffer))
	return vfscommon.OK
}

// Discard abandons the buffer without committing, dropping any staged
// entry and releasing the mount accounting. vfs.VFS.Close does not call
// it; Close always goes through Commit.
func (c *Context) Discard() {
	if c.closed {
		return
	}
	if c.staging != nil {
		c.staging.Discard(c.stageKey)
	}
	c.acct.release(c.pendingBytes)
	c.closed = true
	c.buffer = nil
}
