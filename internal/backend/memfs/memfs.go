// Package memfs is the reference Backend: a deterministic in-memory
// tree, grounded on the original vfs_mem.c in-memory VFS (see
// _examples/original_source under the teacher's DESIGN.md entry for
// this package). It is the default backend for every mount in the
// reference configuration (spec §6).
package memfs

import (
	"context"
	"strings"
	"sync"

	"github.com/agentvfs/nvim-agentfs/internal/vfscommon"
)

// node is one file or directory in the tree. Children are kept in
// insertion order, which is what makes Readdir deterministic (spec
// §4.1: "directory ordering is insertion order").
type node struct {
	name     string
	isDir    bool
	parent   *node
	children []*node
	content  []byte
}

// handle is the open-file state for one descriptor.
type handle struct {
	node   *node
	offset int
	flags  vfscommon.OpenFlags
}

// Backend is the in-memory tree. Every exported method holds mu for its
// whole duration, so concurrent calls are serialized; the substrate
// itself drives it from a single flow of control (spec §5).
type Backend struct {
	mu   sync.Mutex // held by every exported method; not reentrant
	root *node
	fds  []*handle // index 0..2 always nil (reserved); grows as needed
}

// New returns a freshly initialised, empty in-memory backend.
func New() *Backend {
	b := &Backend{
		root: &node{name: "", isDir: true},
		fds:  make([]*handle, 3),
	}
	return b
}

func (b *Backend) Name() string { return "memfs" }

func splitParent(subpath string) (dir, name string, errno vfscommon.Errno) {
	clean, errno := vfscommon.CleanPath(subpath)
	if errno != vfscommon.OK {
		return "", "", errno
	}
	if clean == "/" {
		return "", "", vfscommon.EINVAL
	}
	idx := strings.LastIndexByte(clean, '/')
	dir = clean[:idx]
	if dir == "" {
		dir = "/"
	}
	name = clean[idx+1:]
	if name == "" || len(name) > 255 {
		return "", "", vfscommon.EINVAL
	}
	return dir, name, vfscommon.OK
}

func (b *Backend) findNode(path string) *node {
	clean, errno := vfscommon.CleanPath(path)
	if errno != vfscommon.OK {
		return nil
	}
	if clean == "/" {
		return b.root
	}
	parts, errno := vfscommon.SplitComponents(clean)
	if errno != vfscommon.OK {
		return nil
	}
	cur := b.root
	for _, part := range parts {
		if !cur.isDir {
			return nil
		}
		next := findChild(cur, part)
		if next == nil {
			return nil
		}
		cur = next
	}
	return cur
}

func findChild(dir *node, name string) *node {
	for _, c := range dir.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// findOrCreateDir walks path, creating missing intermediate directories
// along the way — the reference backend's open helper does this walk
// inline (spec §4.1).
func (b *Backend) findOrCreateDir(path string) *node {
	clean, errno := vfscommon.CleanPath(path)
	if errno != vfscommon.OK {
		return nil
	}
	if clean == "/" {
		return b.root
	}
	parts, errno := vfscommon.SplitComponents(clean)
	if errno != vfscommon.OK {
		return nil
	}
	cur := b.root
	for _, part := range parts {
		if !cur.isDir {
			return nil
		}
		child := findChild(cur, part)
		if child == nil {
			child = &node{name: part, isDir: true, parent: cur}
			cur.children = append(cur.children, child)
		} else if !child.isDir {
			return nil
		}
		cur = child
	}
	return cur
}

func (b *Backend) allocFd() (int, vfscommon.Errno) {
	for i := 3; i < len(b.fds); i++ {
		if b.fds[i] == nil {
			return i, vfscommon.OK
		}
	}
	b.fds = append(b.fds, nil)
	return len(b.fds) - 1, vfscommon.OK
}

// Open implements Backend (spec §4.1).
func (b *Backend) Open(_ context.Context, subpath string, flags vfscommon.OpenFlags, _ vfscommon.Mode) (int, vfscommon.Errno) {
	b.mu.Lock()
	defer b.mu.Unlock()

	dirPath, name, errno := splitParent(subpath)
	if errno != vfscommon.OK {
		return -1, errno
	}
	dir := b.findOrCreateDir(dirPath)
	if dir == nil {
		return -1, vfscommon.ENOENT
	}

	file := findChild(dir, name)
	if file != nil {
		if file.isDir {
			return -1, vfscommon.EISDIR
		}
		if flags.Has(vfscommon.OCreate) && flags.Has(vfscommon.OExclusive) {
			return -1, vfscommon.EEXIST
		}
		if flags.Has(vfscommon.OTruncate) {
			file.content = file.content[:0]
		}
	} else {
		if !flags.Has(vfscommon.OCreate) {
			return -1, vfscommon.ENOENT
		}
		file = &node{name: name, isDir: false, parent: dir}
		dir.children = append(dir.children, file)
	}

	fd, errno := b.allocFd()
	if errno != vfscommon.OK {
		return -1, errno
	}
	h := &handle{node: file, flags: flags}
	if flags.Has(vfscommon.OAppend) {
		h.offset = len(file.content)
	}
	b.fds[fd] = h
	return fd, vfscommon.OK
}

func (b *Backend) handleFor(fd int) *handle {
	if fd < 3 || fd >= len(b.fds) {
		return nil
	}
	return b.fds[fd]
}

// Close implements Backend.
func (b *Backend) Close(_ context.Context, fd int) vfscommon.Errno {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handleFor(fd) == nil {
		return vfscommon.EBADF
	}
	b.fds[fd] = nil
	return vfscommon.OK
}

// Read implements Backend.
func (b *Backend) Read(_ context.Context, fd int, buf []byte) (int, vfscommon.Errno) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h := b.handleFor(fd)
	if h == nil {
		return 0, vfscommon.EBADF
	}
	if h.node.isDir {
		return 0, vfscommon.EISDIR
	}
	remaining := len(h.node.content) - h.offset
	if remaining <= 0 {
		return 0, vfscommon.OK
	}
	n := len(buf)
	if n > remaining {
		n = remaining
	}
	copy(buf[:n], h.node.content[h.offset:h.offset+n])
	h.offset += n
	return n, vfscommon.OK
}

// Write implements Backend.
func (b *Backend) Write(_ context.Context, fd int, buf []byte) (int, vfscommon.Errno) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h := b.handleFor(fd)
	if h == nil {
		return 0, vfscommon.EBADF
	}
	if h.node.isDir {
		return 0, vfscommon.EISDIR
	}
	newLen := h.offset + len(buf)
	if newLen > len(h.node.content) {
		grown := make([]byte, newLen)
		copy(grown, h.node.content)
		h.node.content = grown
	}
	copy(h.node.content[h.offset:newLen], buf)
	h.offset = newLen
	return len(buf), vfscommon.OK
}

// Stat implements Backend.
func (b *Backend) Stat(_ context.Context, subpath string) (vfscommon.Stat, vfscommon.Errno) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.findNode(subpath)
	if n == nil {
		return vfscommon.Stat{}, vfscommon.ENOENT
	}
	st := vfscommon.Stat{LinkCount: 1}
	if n.isDir {
		st.Mode = vfscommon.ModeDirectory
	} else {
		st.Size = int64(len(n.content))
	}
	return st, vfscommon.OK
}

// Readdir implements Backend.
func (b *Backend) Readdir(_ context.Context, subpath string) ([]vfscommon.DirEntry, vfscommon.Errno) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.findNode(subpath)
	if n == nil {
		return nil, vfscommon.ENOENT
	}
	if !n.isDir {
		return nil, vfscommon.ENOTDIR
	}
	entries := make([]vfscommon.DirEntry, 0, len(n.children)+2)
	entries = append(entries, vfscommon.DirEntry{Name: ".", Mode: vfscommon.ModeDirectory})
	entries = append(entries, vfscommon.DirEntry{Name: "..", Mode: vfscommon.ModeDirectory})
	for _, c := range n.children {
		mode := vfscommon.ModeRegular
		if c.isDir {
			mode = vfscommon.ModeDirectory
		}
		entries = append(entries, vfscommon.DirEntry{Name: c.name, Mode: mode})
	}
	return entries, vfscommon.OK
}

// Walk calls fn for every regular file under the tree, with its full
// absolute path relative to this backend's root. It exists purely to
// support snapshotting (package agent) without exposing node internals.
func (b *Backend) Walk(fn func(path string, content []byte)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var rec func(n *node, prefix string)
	rec = func(n *node, prefix string) {
		for _, c := range n.children {
			p := prefix + "/" + c.name
			if c.isDir {
				rec(c, p)
			} else {
				fn(p, c.content)
			}
		}
	}
	rec(b.root, "")
}

// Reset discards all content, returning the backend to a fresh empty
// tree. Used by the agent envelope's full-tree restore (spec §4.5 step
// 6, SPEC_FULL.md Open Question 4).
func (b *Backend) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.root = &node{name: "", isDir: true}
	b.fds = make([]*handle, 3)
}
