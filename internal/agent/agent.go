// Package agent implements the Agent Envelope (spec §4.5): the
// snapshot → record → restore → replay → compare → decide protocol
// that lets an arbitrary mutating callback run against the VFS only if
// it proves deterministic. Grounded on
// _examples/original_source/src/nvim/os/agent_runtime.c, whose stub
// fixes the ten-step order and the SHA-256/full-tree-restore choices
// this package implements for real.
package agent

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/agentvfs/nvim-agentfs/internal/metrics"
	"github.com/agentvfs/nvim-agentfs/internal/replay"
	"github.com/agentvfs/nvim-agentfs/internal/vfs"
	"github.com/agentvfs/nvim-agentfs/internal/vfscommon"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Callback is the agent's mutating computation. Its contract, per spec
// §4.5, is that it only touches the filesystem through v.
type Callback func(v *vfs.VFS) error

// Entry is one (path, content-hash) pair in a Snapshot.
type Entry struct {
	Path string
	Hash [32]byte
}

// Snapshot is a sorted hash-tree of the VFS at a moment (spec §3).
// Equality is defined structurally, not by identity: same length, and
// for each index the same path and hash (spec §9 design note).
type Snapshot struct {
	Entries []Entry
}

// Equal implements the spec §4.5 step 9 comparison.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s.Entries) != len(other.Entries) {
		return false
	}
	for i := range s.Entries {
		if s.Entries[i].Path != other.Entries[i].Path {
			return false
		}
		if s.Entries[i].Hash != other.Entries[i].Hash {
			return false
		}
	}
	return true
}

func snapshotFromContent(content map[string][]byte) Snapshot {
	entries := make([]Entry, 0, len(content))
	for path, data := range content {
		entries = append(entries, Entry{Path: path, Hash: sha256.Sum256(data)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return Snapshot{Entries: entries}
}

// Result is the envelope's decision (spec §4.5 step 10).
type Result struct {
	Accepted bool
	Error    vfscommon.Errno
}

// Envelope owns the VFS it verifies agent runs against and the
// directory replay logs are written to. The log's nominal VFS location
// (spec §6: "a fixed location under the VFS, /.nvim/replay/...") is a
// naming convention only — the log itself is written with a raw
// *os.File outside the VFS (package replay), so Envelope maps that
// convention onto a real host directory.
type Envelope struct {
	v      *vfs.VFS
	logDir string
	index  *replay.ReplayIndex
}

// New returns an envelope over v, writing replay logs under logDir.
func New(v *vfs.VFS, logDir string) *Envelope {
	return &Envelope{v: v, logDir: logDir}
}

// SetIndex attaches a side index that every execution's session gets
// recorded into (SPEC_FULL.md §4.4 EXPANSION). Optional: a nil index
// (the default) simply skips indexing.
func (e *Envelope) SetIndex(idx *replay.ReplayIndex) { e.index = idx }

// ExecuteVerified runs the ten-step protocol and returns the decision.
// Invariants guaranteed on return (spec §4.5):
//   - Accepted: the VFS equals the post-execution state, and the
//     on-disk log is a complete record of what happened.
//   - Rejected: the VFS equals the pre-execution state byte-for-byte.
func (e *Envelope) ExecuteVerified(ctx context.Context, cb Callback) Result {
	result := e.executeVerified(ctx, cb)
	if result.Accepted {
		metrics.RecordAccept()
		log.Debug("agent: execute-verified accepted")
	} else {
		metrics.RecordReject(result.Error.Name())
		log.WithField("reason", result.Error.Name()).Warn("agent: execute-verified rejected")
	}
	return result
}

func (e *Envelope) executeVerified(ctx context.Context, cb Callback) Result {
	if cb == nil {
		return Result{Accepted: false, Error: vfscommon.EINVAL}
	}

	// 1. Snapshot-before.
	beforeContent := e.v.CaptureContent()
	snapBefore := snapshotFromContent(beforeContent)

	// 2. Start recording.
	if err := os.MkdirAll(e.logDir, 0o700); err != nil {
		return Result{Accepted: false, Error: vfscommon.EIO}
	}
	logPath := filepath.Join(e.logDir, uuid.New().String()+".rpl")
	session := replay.NewSession()
	sessionID := uint64(time.Now().UnixNano())
	if errno := session.Start(logPath, sessionID); errno != vfscommon.OK {
		return Result{Accepted: false, Error: vfscommon.EIO}
	}
	e.v.SetSession(session)

	// 3. Execute.
	cbErr := cb(e.v)

	// 4. Stop recording.
	e.v.SetSession(nil)
	stopErrno := session.Stop()
	cleanExit := cbErr == nil && stopErrno == vfscommon.OK

	// 5. Snapshot-after.
	afterContent := e.v.CaptureContent()
	snapAfter := snapshotFromContent(afterContent)

	// 6. Restore to the pre-execution state. Verifying the restore
	// against snapBefore, rather than trusting RestoreContent blindly,
	// is what makes a restore bug surface as EIO here instead of as a
	// silent divergence later in step 9.
	if errno := e.v.RestoreContent(ctx, beforeContent); errno != vfscommon.OK {
		return Result{Accepted: false, Error: vfscommon.EIO}
	}
	if !snapshotFromContent(e.v.CaptureContent()).Equal(snapBefore) {
		return Result{Accepted: false, Error: vfscommon.EIO}
	}

	// 7. Replay: swap in the replay backend and re-issue the callback.
	reader, err := replay.OpenReader(logPath)
	if err != nil {
		return Result{Accepted: false, Error: vfscommon.EIO}
	}
	defer reader.Close()
	replayBackend := replay.NewBackend(reader)

	original := e.v.SwapBackends(replayBackend)
	replayErr := cb(e.v)

	// 8. Snapshot-replay.
	replayContent := e.v.CaptureContent()
	snapReplay := snapshotFromContent(replayContent)
	_, mismatches := replayBackend.Stats()
	metrics.RecordReplayMismatches(mismatches)

	e.v.RestoreBackends(original)

	if e.index != nil {
		ops, bytes := session.Stats()
		e.index.Put(replay.IndexEntry{
			SessionID:  sessionID,
			LogPath:    logPath,
			StartedAt:  int64(sessionID),
			Ops:        ops,
			Bytes:      bytes,
			Mismatches: mismatches,
		})
	}

	// 9. Compare.
	deterministic := cleanExit && replayErr == nil && mismatches == 0 && snapAfter.Equal(snapReplay)

	// 10. Decide.
	if deterministic {
		if errno := e.v.RestoreContent(ctx, afterContent); errno != vfscommon.OK {
			return Result{Accepted: false, Error: vfscommon.EIO}
		}
		return Result{Accepted: true, Error: vfscommon.OK}
	}

	reason := vfscommon.EPROTO
	if cbErr != nil || replayErr != nil {
		reason = vfscommon.EIO
	}
	return Result{Accepted: false, Error: reason}
}
