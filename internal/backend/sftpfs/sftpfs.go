// Package sftpfs mirrors a mount onto a remote directory tree over
// SFTP (SPEC_FULL.md §4.1 DOMAIN STACK), grounded on
// `backend/sftp/{sftp.go,ssh_internal.go}`: an `*ssh.ClientConfig` dials
// the server, `pkg/sftp` drives the file protocol over that connection,
// and paths are joined onto a configured root the same way `sftp.go`
// joins its `root` with each remote path.
package sftpfs

import (
	"context"
	"io"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/agentvfs/nvim-agentfs/internal/vfscommon"
	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// sftpFile is the slice of *sftp.File this backend calls, kept as an
// interface so tests can hand it a fake instead of a real SFTP session.
type sftpFile interface {
	io.Reader
	io.Writer
	io.Closer
}

// client is the slice of *sftp.Client this backend calls.
type client interface {
	OpenFile(path string, flag int) (sftpFile, error)
	Mkdir(path string) error
	Stat(path string) (os.FileInfo, error)
	ReadDir(path string) ([]os.FileInfo, error)
}

// realClient adapts *sftp.Client to client: OpenFile's *sftp.File
// return value already satisfies sftpFile, so the only work is
// re-exposing the method with that narrower return type.
type realClient struct{ c *sftp.Client }

func (r realClient) OpenFile(path string, flag int) (sftpFile, error) { return r.c.OpenFile(path, flag) }
func (r realClient) Mkdir(path string) error                          { return r.c.Mkdir(path) }
func (r realClient) Stat(path string) (os.FileInfo, error)            { return r.c.Stat(path) }
func (r realClient) ReadDir(path string) ([]os.FileInfo, error)       { return r.c.ReadDir(path) }

// Config names the remote endpoint and credentials for one mount.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string // password auth; when empty, New configures no auth method at all
	Root     string
	// HostKeyCallback defaults to ssh.InsecureIgnoreHostKey if nil; callers
	// that need real host-key verification should set it explicitly.
	HostKeyCallback ssh.HostKeyCallback
}

// Backend implements backend.Backend against one SFTP root.
type Backend struct {
	mu      sync.Mutex
	sshConn *ssh.Client // nil when built directly from a client for tests
	client  client
	root    string
	handles map[int]sftpFile
	nextFd  int
}

// New dials cfg.Host and returns a Backend backed by a real SFTP session.
func New(cfg Config) (*Backend, error) {
	hostKeyCallback := cfg.HostKeyCallback
	if hostKeyCallback == nil {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}
	sshConfig := &ssh.ClientConfig{
		User:            cfg.User,
		HostKeyCallback: hostKeyCallback,
	}
	if cfg.Password != "" {
		sshConfig.Auth = []ssh.AuthMethod{ssh.Password(cfg.Password)}
	}

	addr := cfg.Host
	if cfg.Port != "" {
		addr = cfg.Host + ":" + cfg.Port
	}
	sshConn, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return nil, errors.Wrap(err, "sftpfs: dialing ssh")
	}
	sc, err := sftp.NewClient(sshConn)
	if err != nil {
		_ = sshConn.Close()
		return nil, errors.Wrap(err, "sftpfs: starting sftp session")
	}

	b := newWithClient(cfg.Root, realClient{c: sc})
	b.sshConn = sshConn
	return b, nil
}

func newWithClient(root string, c client) *Backend {
	return &Backend{
		client:  c,
		root:    strings.TrimSuffix(root, "/"),
		handles: make(map[int]sftpFile),
		nextFd:  3,
	}
}

// Name implements backend.Named.
func (b *Backend) Name() string { return "sftp:" + b.root }

func (b *Backend) resolve(subpath string) string {
	if b.root == "" {
		return subpath
	}
	if subpath == "/" || subpath == "" {
		return b.root
	}
	return path.Join(b.root, subpath)
}

func sftpOpenFlags(flags vfscommon.OpenFlags) int {
	osFlags := os.O_RDONLY
	switch {
	case flags.Has(vfscommon.ReadWrite):
		osFlags = os.O_RDWR
	case flags.Has(vfscommon.OWrite):
		osFlags = os.O_WRONLY
	}
	if flags.Has(vfscommon.OCreate) {
		osFlags |= os.O_CREATE
	}
	if flags.Has(vfscommon.OExclusive) {
		osFlags |= os.O_EXCL
	}
	if flags.Has(vfscommon.OTruncate) {
		osFlags |= os.O_TRUNC
	}
	if flags.Has(vfscommon.OAppend) {
		osFlags |= os.O_APPEND
	}
	return osFlags
}

func classifyErr(err error) vfscommon.Errno {
	if err == nil {
		return vfscommon.OK
	}
	if os.IsNotExist(err) {
		return vfscommon.ENOENT
	}
	if os.IsPermission(err) {
		return vfscommon.EACCES
	}
	return vfscommon.EIO
}

// Open implements backend.Backend.
func (b *Backend) Open(ctx context.Context, subpath string, flags vfscommon.OpenFlags, mode vfscommon.Mode) (int, vfscommon.Errno) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := b.client.OpenFile(b.resolve(subpath), sftpOpenFlags(flags))
	if err != nil {
		return -1, classifyErr(err)
	}
	fd := b.nextFd
	b.nextFd++
	b.handles[fd] = f
	return fd, vfscommon.OK
}

// Close implements backend.Backend.
func (b *Backend) Close(ctx context.Context, fd int) vfscommon.Errno {
	b.mu.Lock()
	f, ok := b.handles[fd]
	delete(b.handles, fd)
	b.mu.Unlock()
	if !ok {
		return vfscommon.EBADF
	}
	if err := f.Close(); err != nil {
		return vfscommon.EIO
	}
	return vfscommon.OK
}

// Read implements backend.Backend.
func (b *Backend) Read(ctx context.Context, fd int, buf []byte) (int, vfscommon.Errno) {
	b.mu.Lock()
	f, ok := b.handles[fd]
	b.mu.Unlock()
	if !ok {
		return 0, vfscommon.EBADF
	}
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return n, vfscommon.EIO
	}
	return n, vfscommon.OK
}

// Write implements backend.Backend.
func (b *Backend) Write(ctx context.Context, fd int, buf []byte) (int, vfscommon.Errno) {
	b.mu.Lock()
	f, ok := b.handles[fd]
	b.mu.Unlock()
	if !ok {
		return 0, vfscommon.EBADF
	}
	n, err := f.Write(buf)
	if err != nil {
		return n, vfscommon.EIO
	}
	return n, vfscommon.OK
}

// Stat implements backend.Backend.
func (b *Backend) Stat(ctx context.Context, subpath string) (vfscommon.Stat, vfscommon.Errno) {
	b.mu.Lock()
	defer b.mu.Unlock()
	info, err := b.client.Stat(b.resolve(subpath))
	if err != nil {
		return vfscommon.Stat{}, classifyErr(err)
	}
	mode := vfscommon.ModeRegular
	if info.IsDir() {
		mode = vfscommon.ModeDirectory
	}
	return vfscommon.Stat{Size: info.Size(), Mode: mode, LinkCount: 1}, vfscommon.OK
}

// Readdir implements backend.Backend.
func (b *Backend) Readdir(ctx context.Context, subpath string) ([]vfscommon.DirEntry, vfscommon.Errno) {
	b.mu.Lock()
	defer b.mu.Unlock()
	infos, err := b.client.ReadDir(b.resolve(subpath))
	if err != nil {
		return nil, classifyErr(err)
	}
	entries := []vfscommon.DirEntry{
		{Name: ".", Mode: vfscommon.ModeDirectory},
		{Name: "..", Mode: vfscommon.ModeDirectory},
	}
	for _, info := range infos {
		mode := vfscommon.ModeRegular
		if info.IsDir() {
			mode = vfscommon.ModeDirectory
		}
		entries = append(entries, vfscommon.DirEntry{Name: info.Name(), Mode: mode})
	}
	return entries, vfscommon.OK
}
