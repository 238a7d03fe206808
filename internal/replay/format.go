// Package replay implements the binary append-only operation log and
// its paired replay backend (spec §4.4). Grounded on
// _examples/original_source/src/nvim/os/vfs_replay.{h,c}: the header
// and record layouts below are field-for-field translations of
// VFSReplayHeader / VFSReplayRecord, and Session.Start follows the
// original's "open the log with a raw, unlogged file handle" approach
// so that writing the log itself can never recurse back through the
// mount-boundary logging it implements.
package replay

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/agentvfs/nvim-agentfs/internal/vfscommon"
	"github.com/pkg/errors"
)

// Magic identifies a replay log file (spec §4.4a).
var Magic = [8]byte{'N', 'V', 'I', 'M', 'R', 'P', 'L', 0}

// Version is the current on-disk format version.
const Version uint32 = 1

// Op enumerates the six loggable operations (spec §4.4a).
type Op uint32

const (
	OpOpen    Op = 1
	OpRead    Op = 2
	OpWrite   Op = 3
	OpClose   Op = 4
	OpStat    Op = 5
	OpReaddir Op = 6
)

func (o Op) String() string {
	switch o {
	case OpOpen:
		return "OPEN"
	case OpRead:
		return "READ"
	case OpWrite:
		return "WRITE"
	case OpClose:
		return "CLOSE"
	case OpStat:
		return "STAT"
	case OpReaddir:
		return "READDIR"
	default:
		return "UNKNOWN"
	}
}

// Header is the fixed 28-byte log header (spec §4.4a).
type Header struct {
	Magic     [8]byte
	Version   uint32
	SessionID uint64
	Reserved  uint64
}

// recordPathLen is the fixed width of the record's path field.
const recordPathLen = vfscommon.MaxRecordPathLen

// wireRecord is the exact 312-byte on-disk record header, laid out the
// way a C reader/writer on the same host would agree on it (spec §9
// design note: "use a fixed C-compatible struct"). Payload bytes follow
// immediately and are handled separately by Writer/Reader.
type wireRecord struct {
	Seq     uint64
	Op      uint32
	Fd      int32
	Path    [recordPathLen]byte
	Offset  uint64
	Size    uint64
	Flags   uint32
	Mode    uint32
	Ret     int32
	Errno   int32
	DataLen uint64
}

// Record is the decoded, caller-friendly view of one log entry.
type Record struct {
	Seq    uint64
	Op     Op
	Fd     int32
	Path   string
	Offset uint64
	Size   uint64
	Flags  uint32
	Mode   uint32
	Ret    int32
	Errno  int32
	Data   []byte
}

func truncatePath(p string) [recordPathLen]byte {
	var out [recordPathLen]byte
	// Paths longer than 255 bytes are truncated to fit (spec §4.4a);
	// replay only ever compares by byte-equality against this stored
	// copy, so truncation never changes what "matches" means.
	n := copy(out[:], p)
	_ = n
	return out
}

func pathFromWire(b [recordPathLen]byte) string {
	i := bytes.IndexByte(b[:], 0)
	if i < 0 {
		i = len(b)
	}
	return string(b[:i])
}

func writeHeader(w io.Writer, sessionID uint64) error {
	h := Header{Magic: Magic, Version: Version, SessionID: sessionID}
	return binary.Write(w, binary.LittleEndian, &h)
}

func readHeader(r io.Reader) (Header, error) {
	var h Header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return Header{}, err
	}
	if h.Magic != Magic {
		return Header{}, errors.New("replay: bad magic, not a replay log")
	}
	return h, nil
}

func writeRecord(w io.Writer, rec Record) error {
	wr := wireRecord{
		Seq:     rec.Seq,
		Op:      uint32(rec.Op),
		Fd:      rec.Fd,
		Path:    truncatePath(rec.Path),
		Offset:  rec.Offset,
		Size:    rec.Size,
		Flags:   rec.Flags,
		Mode:    rec.Mode,
		Ret:     rec.Ret,
		Errno:   rec.Errno,
		DataLen: uint64(len(rec.Data)),
	}
	if err := binary.Write(w, binary.LittleEndian, &wr); err != nil {
		return err
	}
	if len(rec.Data) == 0 {
		return nil
	}
	_, err := w.Write(rec.Data)
	return err
}

func readRecord(r io.Reader) (Record, error) {
	var wr wireRecord
	if err := binary.Read(r, binary.LittleEndian, &wr); err != nil {
		return Record{}, err
	}
	rec := Record{
		Seq:    wr.Seq,
		Op:     Op(wr.Op),
		Fd:     wr.Fd,
		Path:   pathFromWire(wr.Path),
		Offset: wr.Offset,
		Size:   wr.Size,
		Flags:  wr.Flags,
		Mode:   wr.Mode,
		Ret:    wr.Ret,
		Errno:  wr.Errno,
	}
	if wr.DataLen > 0 {
		rec.Data = make([]byte, wr.DataLen)
		if _, err := io.ReadFull(r, rec.Data); err != nil {
			return Record{}, err
		}
	}
	return rec, nil
}

// statPayload is the fixed encoding of a vfscommon.Stat recorded for a
// successful stat() call (spec §4.4b: "with the stat buffer as
// payload").
type statPayload struct {
	Size      int64
	Mode      uint32
	LinkCount uint32
}

func encodeStat(st vfscommon.Stat) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, statPayload{
		Size:      st.Size,
		Mode:      uint32(st.Mode),
		LinkCount: st.LinkCount,
	})
	return buf.Bytes()
}

func decodeStat(data []byte) (vfscommon.Stat, error) {
	var sp statPayload
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &sp); err != nil {
		return vfscommon.Stat{}, err
	}
	return vfscommon.Stat{Size: sp.Size, Mode: vfscommon.Mode(sp.Mode), LinkCount: sp.LinkCount}, nil
}
