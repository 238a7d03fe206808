package remotefs

import (
	"context"
	"encoding/binary"
	"net"
	"sync"
	"time"

	"github.com/agentvfs/nvim-agentfs/internal/vfscommon"
	"github.com/pkg/errors"
)

// callTimeout is the fixed per-call deadline (SPEC_FULL.md §4.1:
// "5s per-call timeout via context").
const callTimeout = 5 * time.Second

// Backend is a backend.Backend implementation that forwards every call
// across conn to a Server on the other end. It allows only one
// outstanding request at a time (mu serializes calls), matching the
// substrate's single-threaded cooperative model (spec §5) — there is
// no pipelining to get wrong.
type Backend struct {
	mu   sync.Mutex
	conn net.Conn
}

// New wraps an already-connected net.Conn. The caller owns the
// connection's lifecycle; closing conn is the caller's responsibility.
func New(conn net.Conn) *Backend {
	return &Backend{conn: conn}
}

// Name implements backend.Named.
func (b *Backend) Name() string { return "remote" }

func (b *Backend) call(ctx context.Context, req []byte) ([]byte, vfscommon.Errno) {
	b.mu.Lock()
	defer b.mu.Unlock()

	deadline := time.Now().Add(callTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := b.conn.SetDeadline(deadline); err != nil {
		return nil, vfscommon.EIO
	}

	if err := writeFrame(b.conn, req); err != nil {
		return nil, errnoFromNetErr(err)
	}
	resp, err := readFrame(b.conn)
	if err != nil {
		return nil, errnoFromNetErr(err)
	}
	return resp, vfscommon.OK
}

func errnoFromNetErr(err error) vfscommon.Errno {
	if ne, ok := errors.Cause(err).(net.Error); ok && ne.Timeout() {
		return vfscommon.ETIMEDOUT
	}
	return vfscommon.EIO
}

// Open implements backend.Backend.
func (b *Backend) Open(ctx context.Context, subpath string, flags vfscommon.OpenFlags, mode vfscommon.Mode) (int, vfscommon.Errno) {
	req := []byte{byte(opOpen)}
	var num [8]byte
	binary.BigEndian.PutUint32(num[:4], uint32(flags))
	binary.BigEndian.PutUint32(num[4:], uint32(mode))
	req = append(req, num[:]...)
	req = putString(req, subpath)

	resp, errno := b.call(ctx, req)
	if errno != vfscommon.OK {
		return -1, errno
	}
	if len(resp) < 8 {
		return -1, vfscommon.EIO
	}
	respErrno := vfscommon.Errno(binary.BigEndian.Uint32(resp[:4]))
	if respErrno != vfscommon.OK {
		return -1, respErrno
	}
	fd := int(int32(binary.BigEndian.Uint32(resp[4:8])))
	return fd, vfscommon.OK
}

// Close implements backend.Backend.
func (b *Backend) Close(ctx context.Context, fd int) vfscommon.Errno {
	req := make([]byte, 5)
	req[0] = byte(opClose)
	binary.BigEndian.PutUint32(req[1:], uint32(fd))

	resp, errno := b.call(ctx, req)
	if errno != vfscommon.OK {
		return errno
	}
	if len(resp) < 4 {
		return vfscommon.EIO
	}
	return vfscommon.Errno(binary.BigEndian.Uint32(resp[:4]))
}

// Read implements backend.Backend.
func (b *Backend) Read(ctx context.Context, fd int, buf []byte) (int, vfscommon.Errno) {
	req := make([]byte, 9)
	req[0] = byte(opRead)
	binary.BigEndian.PutUint32(req[1:5], uint32(fd))
	binary.BigEndian.PutUint32(req[5:9], uint32(len(buf)))

	resp, errno := b.call(ctx, req)
	if errno != vfscommon.OK {
		return 0, errno
	}
	if len(resp) < 8 {
		return 0, vfscommon.EIO
	}
	respErrno := vfscommon.Errno(binary.BigEndian.Uint32(resp[:4]))
	n := int(binary.BigEndian.Uint32(resp[4:8]))
	if respErrno != vfscommon.OK {
		return 0, respErrno
	}
	data := resp[8:]
	if len(data) < n {
		return 0, vfscommon.EIO
	}
	copy(buf, data[:n])
	return n, vfscommon.OK
}

// Write implements backend.Backend.
func (b *Backend) Write(ctx context.Context, fd int, buf []byte) (int, vfscommon.Errno) {
	req := make([]byte, 9, 9+len(buf))
	req[0] = byte(opWrite)
	binary.BigEndian.PutUint32(req[1:5], uint32(fd))
	binary.BigEndian.PutUint32(req[5:9], uint32(len(buf)))
	req = append(req, buf...)

	resp, errno := b.call(ctx, req)
	if errno != vfscommon.OK {
		return 0, errno
	}
	if len(resp) < 8 {
		return 0, vfscommon.EIO
	}
	respErrno := vfscommon.Errno(binary.BigEndian.Uint32(resp[:4]))
	n := int(binary.BigEndian.Uint32(resp[4:8]))
	return n, respErrno
}

// Stat implements backend.Backend.
func (b *Backend) Stat(ctx context.Context, subpath string) (vfscommon.Stat, vfscommon.Errno) {
	req := []byte{byte(opStat)}
	req = putString(req, subpath)

	resp, errno := b.call(ctx, req)
	if errno != vfscommon.OK {
		return vfscommon.Stat{}, errno
	}
	if len(resp) < 4 {
		return vfscommon.Stat{}, vfscommon.EIO
	}
	respErrno := vfscommon.Errno(binary.BigEndian.Uint32(resp[:4]))
	if respErrno != vfscommon.OK {
		return vfscommon.Stat{}, respErrno
	}
	if len(resp) < 20 {
		return vfscommon.Stat{}, vfscommon.EIO
	}
	st := vfscommon.Stat{
		Size:      int64(binary.BigEndian.Uint64(resp[4:12])),
		Mode:      vfscommon.Mode(binary.BigEndian.Uint32(resp[12:16])),
		LinkCount: binary.BigEndian.Uint32(resp[16:20]),
	}
	return st, vfscommon.OK
}

// Readdir implements backend.Backend.
func (b *Backend) Readdir(ctx context.Context, subpath string) ([]vfscommon.DirEntry, vfscommon.Errno) {
	req := []byte{byte(opReaddir)}
	req = putString(req, subpath)

	resp, errno := b.call(ctx, req)
	if errno != vfscommon.OK {
		return nil, errno
	}
	if len(resp) < 8 {
		return nil, vfscommon.EIO
	}
	respErrno := vfscommon.Errno(binary.BigEndian.Uint32(resp[:4]))
	if respErrno != vfscommon.OK {
		return nil, respErrno
	}
	count := int(binary.BigEndian.Uint32(resp[4:8]))
	rest := resp[8:]
	entries := make([]vfscommon.DirEntry, 0, count)
	for i := 0; i < count; i++ {
		name, r, err := takeString(rest)
		if err != nil {
			return nil, vfscommon.EIO
		}
		rest = r
		if len(rest) < 4 {
			return nil, vfscommon.EIO
		}
		mode := vfscommon.Mode(binary.BigEndian.Uint32(rest[:4]))
		rest = rest[4:]
		entries = append(entries, vfscommon.DirEntry{Name: name, Mode: mode})
	}
	return entries, vfscommon.OK
}
