// Package vfsmount holds the ordered, immutable-after-init mount table
// that is the single point at which the substrate resolves paths and
// checks permissions (spec §4.2). Grounded on vfs_mount.c's
// length-descending sort plus linear-scan prefix resolution, and on
// the teacher's backend/union package for the Go idiom of an ordered
// list of storage entries resolved against one namespace.
package vfsmount

import (
	"sort"
	"strings"

	"github.com/agentvfs/nvim-agentfs/internal/backend"
	"github.com/agentvfs/nvim-agentfs/internal/vfscommon"
	"github.com/pkg/errors"
)

// Mount binds a path prefix to a backend, its permission bitset and its
// write policy (spec §3).
type Mount struct {
	Mountpoint string
	Backend    backend.Backend
	Perm       Permission
	Policy     vfscommon.WritePolicy
	// Record controls whether calls crossing this mount are eligible
	// for replay logging (EXPANSION: mirror backends default to false
	// since they are not internally deterministic, SPEC_FULL.md §4.1).
	Record bool
}

// Table is the ordered mount list. It is built once via Add and then
// frozen with Freeze; Resolve may be called concurrently with itself
// (it only reads), but never concurrently with Add (spec §3: "table is
// immutable after first op").
type Table struct {
	mounts []*Mount
	frozen bool
}

// New returns an empty table. Callers must Add at least a "/" mount
// and then Freeze before any Resolve (spec §4.2 invariant).
func New() *Table {
	return &Table{}
}

// Add registers a mount. It must be called before Freeze.
func (t *Table) Add(m *Mount) error {
	if t.frozen {
		return errors.New("vfsmount: table is frozen, cannot add more mounts")
	}
	if m.Mountpoint == "" || m.Mountpoint[0] != '/' {
		return errors.Errorf("vfsmount: mountpoint %q must be absolute", m.Mountpoint)
	}
	if len(m.Mountpoint) > vfscommon.MaxMountpointLen {
		return errors.Errorf("vfsmount: mountpoint %q exceeds %d bytes", m.Mountpoint, vfscommon.MaxMountpointLen)
	}
	for _, existing := range t.mounts {
		if existing.Mountpoint == m.Mountpoint {
			return errors.Errorf("vfsmount: duplicate mountpoint %q", m.Mountpoint)
		}
	}
	t.mounts = append(t.mounts, m)
	return nil
}

// Freeze sorts the table by descending mountpoint length (spec §4.2)
// and verifies the "/" root invariant. After Freeze the table never
// changes again.
func (t *Table) Freeze() error {
	hasRoot := false
	for _, m := range t.mounts {
		if m.Mountpoint == "/" {
			hasRoot = true
		}
	}
	if !hasRoot {
		return errors.New("vfsmount: table has no \"/\" mount")
	}
	sort.SliceStable(t.mounts, func(i, j int) bool {
		return len(t.mounts[i].Mountpoint) > len(t.mounts[j].Mountpoint)
	})
	t.frozen = true
	return nil
}

// Resolve performs longest-prefix match and returns the owning mount
// plus the subpath relative to it (spec §4.2). It is total: since "/"
// is always present and shortest, resolution never fails for a
// well-formed absolute path.
func (t *Table) Resolve(path string) (*Mount, string, vfscommon.Errno) {
	clean, errno := vfscommon.CleanPath(path)
	if errno != vfscommon.OK {
		return nil, "", errno
	}
	for _, m := range t.mounts {
		mp := m.Mountpoint
		if mp == "/" {
			return m, clean, vfscommon.OK
		}
		if !strings.HasPrefix(clean, mp) {
			continue
		}
		boundary := clean[len(mp):]
		if boundary != "" && boundary[0] != '/' {
			continue
		}
		if boundary == "" {
			return m, "/", vfscommon.OK
		}
		return m, boundary, vfscommon.OK
	}
	return nil, "", vfscommon.ENOENT
}

// CheckOpenPermission enforces spec §4.2's permission-before-backend
// rule for an opening call: writing flags require PermWrite, anything
// else requires only PermRead.
func CheckOpenPermission(m *Mount, flags vfscommon.OpenFlags) vfscommon.Errno {
	if flags.Writing() {
		if !m.Perm.Has(PermWrite) {
			return vfscommon.EACCES
		}
	} else if !m.Perm.Has(PermRead) {
		return vfscommon.EACCES
	}
	return vfscommon.OK
}

// Mounts returns the frozen mount list, longest-prefix first, for
// callers that want to enumerate the table (vfs.New and the `serve`
// startup log, EXPANSION).
func (t *Table) Mounts() []*Mount {
	out := make([]*Mount, len(t.mounts))
	copy(out, t.mounts)
	return out
}
