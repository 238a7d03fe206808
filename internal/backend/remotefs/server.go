package remotefs

import (
	"context"
	"encoding/binary"
	"io"
	"net"

	"github.com/agentvfs/nvim-agentfs/internal/backend"
	"github.com/agentvfs/nvim-agentfs/internal/vfscommon"
)

// Serve reads request frames from conn, dispatches each to target, and
// writes the response frame back, until conn is closed or a framing
// error occurs. It is meant to run in its own goroutine per connection,
// the way a small RPC server serving one client at a time typically
// does — there is exactly one request outstanding at a time because
// Backend never pipelines.
func Serve(conn net.Conn, target backend.Backend) error {
	ctx := context.Background()
	for {
		req, err := readFrame(conn)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		resp := dispatch(ctx, target, req)
		if err := writeFrame(conn, resp); err != nil {
			return err
		}
	}
}

func dispatch(ctx context.Context, target backend.Backend, req []byte) []byte {
	if len(req) < 1 {
		return encodeErrno(vfscommon.EINVAL)
	}
	op := opCode(req[0])
	body := req[1:]

	switch op {
	case opOpen:
		return handleOpen(ctx, target, body)
	case opClose:
		return handleClose(ctx, target, body)
	case opRead:
		return handleRead(ctx, target, body)
	case opWrite:
		return handleWrite(ctx, target, body)
	case opStat:
		return handleStat(ctx, target, body)
	case opReaddir:
		return handleReaddir(ctx, target, body)
	default:
		return encodeErrno(vfscommon.EINVAL)
	}
}

func encodeErrno(errno vfscommon.Errno) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(errno))
	return buf
}

func handleOpen(ctx context.Context, target backend.Backend, body []byte) []byte {
	if len(body) < 8 {
		return encodeErrno(vfscommon.EINVAL)
	}
	flags := vfscommon.OpenFlags(binary.BigEndian.Uint32(body[:4]))
	mode := vfscommon.Mode(binary.BigEndian.Uint32(body[4:8]))
	subpath, _, err := takeString(body[8:])
	if err != nil {
		return encodeErrno(vfscommon.EINVAL)
	}
	fd, errno := target.Open(ctx, subpath, flags, mode)
	resp := encodeErrno(errno)
	var fdBuf [4]byte
	binary.BigEndian.PutUint32(fdBuf[:], uint32(fd))
	return append(resp, fdBuf[:]...)
}

func handleClose(ctx context.Context, target backend.Backend, body []byte) []byte {
	if len(body) < 4 {
		return encodeErrno(vfscommon.EINVAL)
	}
	fd := int(int32(binary.BigEndian.Uint32(body[:4])))
	return encodeErrno(target.Close(ctx, fd))
}

func handleRead(ctx context.Context, target backend.Backend, body []byte) []byte {
	if len(body) < 8 {
		return encodeErrno(vfscommon.EINVAL)
	}
	fd := int(int32(binary.BigEndian.Uint32(body[:4])))
	size := binary.BigEndian.Uint32(body[4:8])
	buf := make([]byte, size)
	n, errno := target.Read(ctx, fd, buf)
	resp := encodeErrno(errno)
	var nBuf [4]byte
	binary.BigEndian.PutUint32(nBuf[:], uint32(n))
	resp = append(resp, nBuf[:]...)
	if errno == vfscommon.OK {
		resp = append(resp, buf[:n]...)
	}
	return resp
}

func handleWrite(ctx context.Context, target backend.Backend, body []byte) []byte {
	if len(body) < 8 {
		return encodeErrno(vfscommon.EINVAL)
	}
	fd := int(int32(binary.BigEndian.Uint32(body[:4])))
	size := int(binary.BigEndian.Uint32(body[4:8]))
	if len(body) < 8+size {
		return encodeErrno(vfscommon.EINVAL)
	}
	data := body[8 : 8+size]
	n, errno := target.Write(ctx, fd, data)
	resp := encodeErrno(errno)
	var nBuf [4]byte
	binary.BigEndian.PutUint32(nBuf[:], uint32(n))
	return append(resp, nBuf[:]...)
}

func handleStat(ctx context.Context, target backend.Backend, body []byte) []byte {
	subpath, _, err := takeString(body)
	if err != nil {
		return encodeErrno(vfscommon.EINVAL)
	}
	st, errno := target.Stat(ctx, subpath)
	resp := encodeErrno(errno)
	if errno != vfscommon.OK {
		return resp
	}
	var fields [16]byte
	binary.BigEndian.PutUint64(fields[0:8], uint64(st.Size))
	binary.BigEndian.PutUint32(fields[8:12], uint32(st.Mode))
	binary.BigEndian.PutUint32(fields[12:16], st.LinkCount)
	return append(resp, fields[:]...)
}

func handleReaddir(ctx context.Context, target backend.Backend, body []byte) []byte {
	subpath, _, err := takeString(body)
	if err != nil {
		return encodeErrno(vfscommon.EINVAL)
	}
	entries, errno := target.Readdir(ctx, subpath)
	resp := encodeErrno(errno)
	if errno != vfscommon.OK {
		return resp
	}
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(entries)))
	resp = append(resp, countBuf[:]...)
	for _, e := range entries {
		resp = putString(resp, e.Name)
		var modeBuf [4]byte
		binary.BigEndian.PutUint32(modeBuf[:], uint32(e.Mode))
		resp = append(resp, modeBuf[:]...)
	}
	return resp
}
