package replay

import (
	"os"
	"sync"

	"github.com/agentvfs/nvim-agentfs/internal/vfscommon"
)

// Session is the recording state (spec §3 "Replay Session"). Start on an
// already-enabled Session returns EALREADY; separate Session values are
// not checked against each other, so two of them can record at once.
//
// The log file is opened with a raw *os.File, deliberately bypassing
// the VFS mount/log wrappers entirely (vfs_replay.c does the same with
// a bare open(2)) — logging the log's own writes would recurse forever.
type Session struct {
	mu         sync.Mutex
	enabled    bool
	f          *os.File
	sessionID  uint64
	seq        uint64
	opsLogged  uint64
	bytesLogged uint64
}

// NewSession returns an idle session. sessionID should be a monotonic
// time value (spec §3), not a cryptographic identifier; callers
// typically pass time.Now().UnixNano().
func NewSession() *Session {
	return &Session{}
}

// Start begins recording to a fresh log file at path, truncating any
// existing file there (spec §4.5 step 2: "Open a fresh log file").
func (s *Session) Start(path string, sessionID uint64) vfscommon.Errno {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled {
		return vfscommon.EALREADY
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return vfscommon.EIO
	}
	if err := writeHeader(f, sessionID); err != nil {
		f.Close()
		return vfscommon.EIO
	}
	s.f = f
	s.sessionID = sessionID
	s.seq = 0
	s.opsLogged = 0
	s.bytesLogged = 0
	s.enabled = true
	return vfscommon.OK
}

// IsEnabled reports whether a recording is in progress.
func (s *Session) IsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Log appends one record to the log (spec §4.4b). It is best-effort: a
// write failure silently deactivates the session rather than
// propagating to the caller, who already has their own result to
// return from the mount-boundary call that triggered this log entry.
func (s *Session) Log(op Op, path string, fd int, offset, size uint64, flags, mode uint32, ret, errno int32, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return
	}
	rec := Record{
		Seq: s.seq, Op: op, Fd: int32(fd), Path: path,
		Offset: offset, Size: size, Flags: flags, Mode: mode,
		Ret: ret, Errno: errno, Data: data,
	}
	if err := writeRecord(s.f, rec); err != nil {
		s.enabled = false
		return
	}
	s.seq++
	s.opsLogged++
	s.bytesLogged += uint64(len(data))
}

// LogStat is a convenience wrapper that encodes a Stat result as the
// record payload (spec §4.4b).
func (s *Session) LogStat(path string, ret, errno int32, st vfscommon.Stat) {
	var data []byte
	if errno == 0 {
		data = encodeStat(st)
	}
	s.Log(OpStat, path, -1, 0, 0, 0, 0, ret, errno, data)
}

// Stop ends recording and closes the log file (spec §4.5 step 4).
func (s *Session) Stop() vfscommon.Errno {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return vfscommon.OK
	}
	s.enabled = false
	if err := s.f.Close(); err != nil {
		return vfscommon.EIO
	}
	return vfscommon.OK
}

// Stats returns the session's running counters (spec §3).
func (s *Session) Stats() (ops, bytes uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opsLogged, s.bytesLogged
}
