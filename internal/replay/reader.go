package replay

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// Reader sequentially decodes records from an on-disk replay log,
// starting just past the header (spec §4.4c "reset operation seeks the
// log past the header so replay can be re-driven").
type Reader struct {
	f          *os.File
	headerEnd  int64
	Header     Header
}

// OpenReader opens path and reads its header, leaving the read cursor
// positioned at the first record.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "replay: opening log")
	}
	h, err := readHeader(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "replay: reading header")
	}
	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Reader{f: f, headerEnd: pos, Header: h}, nil
}

// Reset seeks back to the first record (spec §4.4c).
func (r *Reader) Reset() error {
	_, err := r.f.Seek(r.headerEnd, io.SeekStart)
	return err
}

// Next returns the next record, or io.EOF when the log is exhausted.
func (r *Reader) Next() (Record, error) {
	return readRecord(r.f)
}

func (r *Reader) Close() error { return r.f.Close() }

// ReadAll drains the whole log into a slice, starting from the current
// position. Used by the `replay dump` CLI subcommand and by tests.
func (r *Reader) ReadAll() ([]Record, error) {
	var out []Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}
