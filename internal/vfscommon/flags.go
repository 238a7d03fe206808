package vfscommon

// OpenFlags mirrors the POSIX open(2) flag bits the spec requires
// (spec §4.1). Kept as a distinct bitset rather than reusing os.O_*
// so the wire format in the replay log (spec §4.4a) is stable
// regardless of host OS flag numbering.
type OpenFlags uint32

const (
	ORead OpenFlags = 1 << iota
	OWrite
	OCreate
	OExclusive
	OTruncate
	OAppend
)

// ReadWrite reports the combination used by "readwrite" in spec prose.
const ReadWrite = ORead | OWrite

// Writing reports whether flags request a writable descriptor: any of
// write, readwrite, or create (spec §4.2 permission-check wording).
func (f OpenFlags) Writing() bool {
	return f&(OWrite|OCreate) != 0
}

func (f OpenFlags) Has(bit OpenFlags) bool { return f&bit != 0 }

// Mode is a minimal POSIX-ish file mode: only the bits this substrate
// cares about (regular vs directory) are meaningful; permission bits
// are carried through verbatim for round-tripping but never interpreted
// (spec §1 non-goal: "no chmod/chown effects").
type Mode uint32

const (
	ModeRegular   Mode = 0
	ModeDirectory Mode = 1 << 31
)

func (m Mode) IsDir() bool { return m&ModeDirectory != 0 }

// Stat is the fixed-shape result of a stat(2) call (spec §4.1).
type Stat struct {
	Size      int64
	Mode      Mode
	LinkCount uint32
}

// DirEntry is one entry from readdir(2); "." and ".." are always the
// first two entries a Backend returns (spec §4.1).
type DirEntry struct {
	Name string
	Mode Mode
}
