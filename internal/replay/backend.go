package replay

import (
	"context"
	"sync"

	"github.com/agentvfs/nvim-agentfs/internal/backend/memfs"
	"github.com/agentvfs/nvim-agentfs/internal/vfscommon"
)

// Backend is the replay-driven deterministic filesystem surrogate
// (spec §4.4c): it consumes a log instead of touching real storage.
//
// Open/Write also replicate their effect into an internal memfs
// mirror. This is what lets Readdir answer correctly even though
// directory listings are never themselves recorded (spec §4.4b: "entry
// list is not recorded because the reference backend is deterministic
// on entries given an identical preceding trace") — the mirror *is*
// that identical preceding trace, replayed.
//
// Read and Stat return the payload recorded in the log, not anything
// derived from the mirror, per spec §4.4c step 4 ("copy the payload
// into the caller's buffer"). Write, by contrast, applies the buffer
// it is actually called with into the mirror: this is what allows a
// second, nondeterministic run of an agent callback to produce a
// different final mirror state that the envelope's snapshot comparison
// can detect (spec §4.5 step 9) — the replay backend only refuses on
// structural divergence (wrong op, wrong path, wrong write length), not
// on content divergence, which is the envelope's job to catch.
type Backend struct {
	mu         sync.Mutex
	reader     *Reader
	mirror     *memfs.Backend
	fdToMirror map[int]int
	replayed   uint64
	mismatches uint64
}

// NewBackend wraps an already-open Reader.
func NewBackend(r *Reader) *Backend {
	return &Backend{
		reader:     r,
		mirror:     memfs.New(),
		fdToMirror: make(map[int]int),
	}
}

// Reset rewinds the log to the first record and discards the mirror's
// accumulated state, so a fresh replay pass starts from empty exactly
// like the real backend would at the start of an agent execution
// (spec §4.4c "reset operation").
func (b *Backend) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mirror.Reset()
	b.fdToMirror = make(map[int]int)
	return b.reader.Reset()
}

// Stats returns the operations-replayed and mismatches-seen counters
// the envelope uses to help decide acceptance (spec §4.4c).
func (b *Backend) Stats() (replayed, mismatches uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.replayed, b.mismatches
}

// Name implements backend.Named.
func (b *Backend) Name() string { return "replay" }

// Walk exposes the rebuilt mirror's content so the envelope's snapshot
// capture (internal/vfs.VFS.CaptureContent) works identically whether
// the active backend is real or a replay stand-in.
func (b *Backend) Walk(fn func(path string, content []byte)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mirror.Walk(fn)
}

// next returns the next logged record. Running off the end of the log
// counts as a mismatch: the caller expected one more recorded call than
// the trace actually contains.
func (b *Backend) next() (Record, bool) {
	rec, err := b.reader.Next()
	if err != nil {
		b.mismatches++
		return Record{}, false
	}
	return rec, true
}

func errnoFromRecord(rec Record) vfscommon.Errno {
	return vfscommon.Errno(rec.Errno)
}

// Open implements backend.Backend.
func (b *Backend) Open(ctx context.Context, subpath string, flags vfscommon.OpenFlags, mode vfscommon.Mode) (int, vfscommon.Errno) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.next()
	if !ok {
		return -1, vfscommon.EPERM
	}
	if rec.Op != OpOpen || rec.Path != subpath {
		b.mismatches++
		return -1, vfscommon.EPERM
	}
	b.replayed++

	if errno := errnoFromRecord(rec); errno != vfscommon.OK {
		return -1, errno
	}

	mirrorFd, merrno := b.mirror.Open(ctx, subpath, flags, mode)
	if merrno != vfscommon.OK {
		// The real trace says this open succeeded; if our mirror can't
		// reproduce that, the log and the mirror have diverged.
		b.mismatches++
		return -1, vfscommon.EPERM
	}
	b.fdToMirror[int(rec.Ret)] = mirrorFd
	return int(rec.Ret), vfscommon.OK
}

// Close implements backend.Backend.
func (b *Backend) Close(ctx context.Context, fd int) vfscommon.Errno {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.next()
	if !ok {
		return vfscommon.EPERM
	}
	if rec.Op != OpClose {
		b.mismatches++
		return vfscommon.EPERM
	}
	b.replayed++

	if mirrorFd, found := b.fdToMirror[fd]; found {
		b.mirror.Close(ctx, mirrorFd)
		delete(b.fdToMirror, fd)
	}
	return errnoFromRecord(rec)
}

// Read implements backend.Backend.
func (b *Backend) Read(ctx context.Context, fd int, buf []byte) (int, vfscommon.Errno) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.next()
	if !ok {
		return 0, vfscommon.EPERM
	}
	if rec.Op != OpRead {
		b.mismatches++
		return 0, vfscommon.EPERM
	}
	b.replayed++

	if errno := errnoFromRecord(rec); errno != vfscommon.OK {
		return 0, errno
	}
	n := copy(buf, rec.Data)
	return n, vfscommon.OK
}

// Write implements backend.Backend. Unlike Read, it applies the
// caller's actual bytes (not the logged payload) to the mirror — see
// the type doc comment for why.
func (b *Backend) Write(ctx context.Context, fd int, buf []byte) (int, vfscommon.Errno) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.next()
	if !ok {
		return 0, vfscommon.EPERM
	}
	if rec.Op != OpWrite || uint64(len(buf)) != rec.Size {
		b.mismatches++
		return 0, vfscommon.EPERM
	}
	b.replayed++

	if errno := errnoFromRecord(rec); errno != vfscommon.OK {
		return 0, errno
	}
	if mirrorFd, found := b.fdToMirror[fd]; found {
		b.mirror.Write(ctx, mirrorFd, buf)
	}
	return int(rec.Ret), vfscommon.OK
}

// Stat implements backend.Backend.
func (b *Backend) Stat(ctx context.Context, subpath string) (vfscommon.Stat, vfscommon.Errno) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.next()
	if !ok {
		return vfscommon.Stat{}, vfscommon.EPERM
	}
	if rec.Op != OpStat || rec.Path != subpath {
		b.mismatches++
		return vfscommon.Stat{}, vfscommon.EPERM
	}
	b.replayed++

	errno := errnoFromRecord(rec)
	if errno != vfscommon.OK {
		return vfscommon.Stat{}, errno
	}
	st, err := decodeStat(rec.Data)
	if err != nil {
		b.mismatches++
		return vfscommon.Stat{}, vfscommon.EPERM
	}
	return st, vfscommon.OK
}

// Readdir implements backend.Backend. Entries come from the mirror,
// not the log — see the type doc comment.
func (b *Backend) Readdir(ctx context.Context, subpath string) ([]vfscommon.DirEntry, vfscommon.Errno) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.next()
	if !ok {
		return nil, vfscommon.EPERM
	}
	if rec.Op != OpReaddir || rec.Path != subpath {
		b.mismatches++
		return nil, vfscommon.EPERM
	}
	b.replayed++

	if errno := errnoFromRecord(rec); errno != vfscommon.OK {
		return nil, errno
	}
	entries, merrno := b.mirror.Readdir(ctx, subpath)
	if merrno != vfscommon.OK {
		b.mismatches++
		return nil, vfscommon.EPERM
	}
	return entries, vfscommon.OK
}
