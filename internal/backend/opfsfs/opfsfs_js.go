//go:build js && wasm

package opfsfs

import (
	"context"
	"sync"
	"syscall/js"

	"github.com/agentvfs/nvim-agentfs/internal/vfscommon"
)

// Backend talks to the browser's Origin Private File System through
// syscall/js. OPFS's directory/file-handle API is promise-based;
// await blocks the calling goroutine on a channel until the JS
// microtask resolves, which is the standard Go/wasm pattern for
// presenting an async browser API as the synchronous calls
// backend.Backend requires (spec §4.1: every Backend method is
// synchronous).
type Backend struct {
	mu   sync.Mutex
	root js.Value // a FileSystemDirectoryHandle, from navigator.storage.getDirectory()
	fds  []js.Value
}

// New obtains the origin's root OPFS directory handle. It blocks until
// the browser resolves navigator.storage.getDirectory().
func New() (*Backend, error) {
	root, err := await(js.Global().Get("navigator").Get("storage").Call("getDirectory"))
	if err != nil {
		return nil, err
	}
	return &Backend{root: root, fds: make([]js.Value, 3)}, nil
}

// Name implements backend.Named.
func (b *Backend) Name() string { return "opfs" }

// await blocks on a JS Promise and returns its resolved value or its
// rejection reason as a Go error.
func await(promise js.Value) (js.Value, error) {
	resultCh := make(chan js.Value, 1)
	errCh := make(chan error, 1)

	thenFn := js.FuncOf(func(this js.Value, args []js.Value) any {
		resultCh <- args[0]
		return nil
	})
	catchFn := js.FuncOf(func(this js.Value, args []js.Value) any {
		msg := "opfs: promise rejected"
		if len(args) > 0 {
			msg = args[0].Call("toString").String()
		}
		errCh <- &jsError{msg: msg}
		return nil
	})
	defer thenFn.Release()
	defer catchFn.Release()

	promise.Call("then", thenFn).Call("catch", catchFn)

	select {
	case v := <-resultCh:
		return v, nil
	case err := <-errCh:
		return js.Undefined(), err
	}
}

type jsError struct{ msg string }

func (e *jsError) Error() string { return e.msg }

func (b *Backend) resolveDir(subpath string) (js.Value, string, error) {
	parts, errno := vfscommon.SplitComponents(subpath)
	if errno != vfscommon.OK {
		return js.Undefined(), "", &jsError{msg: "invalid path"}
	}
	if len(parts) == 0 {
		return b.root, "", nil
	}
	dir := b.root
	for _, p := range parts[:len(parts)-1] {
		next, err := await(dir.Call("getDirectoryHandle", p))
		if err != nil {
			return js.Undefined(), "", err
		}
		dir = next
	}
	return dir, parts[len(parts)-1], nil
}

func (b *Backend) allocFd(handle js.Value) int {
	for i := 3; i < len(b.fds); i++ {
		if b.fds[i].IsUndefined() {
			b.fds[i] = handle
			return i
		}
	}
	b.fds = append(b.fds, handle)
	return len(b.fds) - 1
}

// Open implements backend.Backend.
func (b *Backend) Open(ctx context.Context, subpath string, flags vfscommon.OpenFlags, mode vfscommon.Mode) (int, vfscommon.Errno) {
	b.mu.Lock()
	defer b.mu.Unlock()

	dir, name, err := b.resolveDir(subpath)
	if err != nil {
		return -1, vfscommon.ENOENT
	}
	opts := js.Global().Get("Object").New()
	opts.Set("create", flags.Has(vfscommon.OCreate))
	fileHandle, err := await(dir.Call("getFileHandle", name, opts))
	if err != nil {
		return -1, vfscommon.ENOENT
	}
	accessHandle, err := await(fileHandle.Call("createSyncAccessHandle"))
	if err != nil {
		return -1, vfscommon.EIO
	}
	if flags.Has(vfscommon.OTruncate) {
		accessHandle.Call("truncate", 0)
	}
	return b.allocFd(accessHandle), vfscommon.OK
}

// Close implements backend.Backend.
func (b *Backend) Close(ctx context.Context, fd int) vfscommon.Errno {
	b.mu.Lock()
	defer b.mu.Unlock()
	if fd < 0 || fd >= len(b.fds) || b.fds[fd].IsUndefined() {
		return vfscommon.EBADF
	}
	b.fds[fd].Call("close")
	b.fds[fd] = js.Value{}
	return vfscommon.OK
}

// Read implements backend.Backend.
func (b *Backend) Read(ctx context.Context, fd int, buf []byte) (int, vfscommon.Errno) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if fd < 0 || fd >= len(b.fds) || b.fds[fd].IsUndefined() {
		return 0, vfscommon.EBADF
	}
	jsBuf := js.Global().Get("Uint8Array").New(len(buf))
	n := b.fds[fd].Call("read", jsBuf).Int()
	js.CopyBytesToGo(buf[:n], jsBuf)
	return n, vfscommon.OK
}

// Write implements backend.Backend.
func (b *Backend) Write(ctx context.Context, fd int, buf []byte) (int, vfscommon.Errno) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if fd < 0 || fd >= len(b.fds) || b.fds[fd].IsUndefined() {
		return 0, vfscommon.EBADF
	}
	jsBuf := js.Global().Get("Uint8Array").New(len(buf))
	js.CopyBytesToJS(jsBuf, buf)
	n := b.fds[fd].Call("write", jsBuf).Int()
	b.fds[fd].Call("flush")
	return n, vfscommon.OK
}

// Stat implements backend.Backend.
func (b *Backend) Stat(ctx context.Context, subpath string) (vfscommon.Stat, vfscommon.Errno) {
	b.mu.Lock()
	defer b.mu.Unlock()
	dir, name, err := b.resolveDir(subpath)
	if err != nil {
		return vfscommon.Stat{}, vfscommon.ENOENT
	}
	fileHandle, err := await(dir.Call("getFileHandle", name))
	if err != nil {
		return vfscommon.Stat{}, vfscommon.ENOENT
	}
	file, err := await(fileHandle.Call("getFile"))
	if err != nil {
		return vfscommon.Stat{}, vfscommon.EIO
	}
	return vfscommon.Stat{Size: int64(file.Get("size").Int()), LinkCount: 1}, vfscommon.OK
}

// Readdir implements backend.Backend.
func (b *Backend) Readdir(ctx context.Context, subpath string) ([]vfscommon.DirEntry, vfscommon.Errno) {
	b.mu.Lock()
	defer b.mu.Unlock()
	parts, errno := vfscommon.SplitComponents(subpath)
	if errno != vfscommon.OK {
		return nil, errno
	}
	dir := b.root
	for _, p := range parts {
		next, err := await(dir.Call("getDirectoryHandle", p))
		if err != nil {
			return nil, vfscommon.ENOENT
		}
		dir = next
	}
	entries := []vfscommon.DirEntry{
		{Name: ".", Mode: vfscommon.ModeDirectory},
		{Name: "..", Mode: vfscommon.ModeDirectory},
	}
	iter := dir.Call("entries")
	for {
		next, err := await(iter.Call("next"))
		if err != nil {
			return nil, vfscommon.EIO
		}
		if next.Get("done").Bool() {
			break
		}
		pair := next.Get("value")
		name := pair.Index(0).String()
		kind := pair.Index(1).Get("kind").String()
		mode := vfscommon.ModeRegular
		if kind == "directory" {
			mode = vfscommon.ModeDirectory
		}
		entries = append(entries, vfscommon.DirEntry{Name: name, Mode: mode})
	}
	return entries, vfscommon.OK
}
