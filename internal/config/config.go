// Package config loads the declarative startup configuration named in
// SPEC_FULL.md §3 — the mount-tuple list plus global options — from
// YAML, the teacher's own configuration format (`fs/config`). Grounded
// on the teacher's `NewFs`-time validation style: typed, wrapped errors
// rather than panics, checked once at load time before anything else
// starts.
package config

import (
	"os"

	"github.com/agentvfs/nvim-agentfs/internal/backend"
	"github.com/agentvfs/nvim-agentfs/internal/vfscommon"
	"github.com/agentvfs/nvim-agentfs/internal/vfsmount"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// BackendSpec names one backend to construct and the options its
// factory needs. Kind is a short registry key ("memfs", "s3", "sftp",
// "remote", "opfs") rather than a Go type, so the config file never
// names an internal package path.
type BackendSpec struct {
	Kind    string            `yaml:"kind"`
	Options map[string]string `yaml:"options,omitempty"`
}

// MountSpec is one entry in the mount table, field-for-field the
// on-disk shape of a `vfsmount.Mount` before its backend is built.
type MountSpec struct {
	Mountpoint    string      `yaml:"mountpoint"`
	Perm          string      `yaml:"perm"` // "ro" or "rw"
	Backend       BackendSpec `yaml:"backend"`
	Record        bool        `yaml:"record"`
	PerFDLimit    int64       `yaml:"per_fd_limit,omitempty"`
	PerMountLimit int64       `yaml:"per_mount_limit,omitempty"`
}

// Config is the full startup configuration (SPEC_FULL.md §3's ambient
// `Config` data-model addition).
type Config struct {
	Mounts      []MountSpec `yaml:"mounts"`
	ReplayDir   string      `yaml:"replay_dir"`
	StagePath   string      `yaml:"stage_path,omitempty"`
	MetricsAddr string      `yaml:"metrics_addr,omitempty"`
}

// Load reads and parses a YAML config file, then validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "config: reading %s", path)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "config: parsing %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the structural invariants SPEC_FULL.md §4.2 demands
// before a mount table is ever built: a "/" mount present, no two
// mounts sharing a mountpoint, and a recognized perm string. This
// duplicates what `vfsmount.Table.Add`/`Freeze` would also catch, but
// catching it here gives the caller a config-specific error instead of
// a mount-table one, matching the teacher's layered validation (each
// package validates its own inputs rather than trusting the layer
// above).
func (c *Config) Validate() error {
	if len(c.Mounts) == 0 {
		return errors.New("config: no mounts defined")
	}
	hasRoot := false
	seen := make(map[string]bool, len(c.Mounts))
	for _, m := range c.Mounts {
		if m.Mountpoint == "" || m.Mountpoint[0] != '/' {
			return errors.Errorf("config: mountpoint %q must be absolute", m.Mountpoint)
		}
		if seen[m.Mountpoint] {
			return errors.Errorf("config: duplicate mountpoint %q", m.Mountpoint)
		}
		seen[m.Mountpoint] = true
		if m.Mountpoint == "/" {
			hasRoot = true
		}
		switch m.Perm {
		case "ro", "rw":
		default:
			return errors.Errorf("config: mount %q has unknown perm %q (want \"ro\" or \"rw\")", m.Mountpoint, m.Perm)
		}
		if m.Backend.Kind == "" {
			return errors.Errorf("config: mount %q has no backend kind", m.Mountpoint)
		}
	}
	if !hasRoot {
		return errors.New("config: no \"/\" mount defined")
	}
	return nil
}

// BackendFactory constructs a backend.Backend from a BackendSpec's
// options. Each backend package registers its own factory; config
// stays ignorant of every concrete backend type, matching the
// teacher's `fs.Register`-style plugin registry (`backend/all`)
// rather than a hardcoded switch over backend packages.
type BackendFactory func(options map[string]string) (backend.Backend, error)

// Registry maps a BackendSpec.Kind to its factory.
type Registry map[string]BackendFactory

// BuildTable constructs a frozen vfsmount.Table from the config using
// reg to instantiate each mount's backend.
func (c *Config) BuildTable(reg Registry) (*vfsmount.Table, error) {
	table := vfsmount.New()
	for _, m := range c.Mounts {
		factory, ok := reg[m.Backend.Kind]
		if !ok {
			return nil, errors.Errorf("config: no backend factory registered for kind %q (mount %q)", m.Backend.Kind, m.Mountpoint)
		}
		be, err := factory(m.Backend.Options)
		if err != nil {
			return nil, errors.Wrapf(err, "config: building backend for mount %q", m.Mountpoint)
		}

		var perm vfsmount.Permission
		var policy vfscommon.WritePolicy
		if m.Perm == "rw" {
			perm = vfsmount.PermReadWrite
			policy = vfscommon.ReadWritePolicy(m.PerFDLimit, m.PerMountLimit)
			if pref, ok := be.(backend.StagingPreference); ok && pref.PreferStaging() {
				policy.Strategy = vfscommon.StrategyBackendStaging
			}
		} else {
			perm = vfsmount.PermReadOnly
			policy = vfscommon.ReadOnlyPolicy()
		}

		if err := table.Add(&vfsmount.Mount{
			Mountpoint: m.Mountpoint,
			Backend:    be,
			Perm:       perm,
			Policy:     policy,
			Record:     m.Record,
		}); err != nil {
			return nil, err
		}
	}
	if err := table.Freeze(); err != nil {
		return nil, err
	}
	return table, nil
}

// Reference returns the default reference configuration (SPEC_FULL.md
// §6): five in-memory mounts, used when no --config flag is given. It
// declares no s3 or sftp mirror mounts; those come only from a config
// file. ReplayDir and
// StagePath are relative to the process's working directory rather
// than an absolute host path, so `serve` with no --config still works
// unprivileged instead of needing to create directories at the
// filesystem root.
func Reference() *Config {
	rw := func(mountpoint string) MountSpec {
		return MountSpec{Mountpoint: mountpoint, Perm: "rw", Backend: BackendSpec{Kind: "memfs"}, Record: true}
	}
	ro := func(mountpoint string) MountSpec {
		return MountSpec{Mountpoint: mountpoint, Perm: "ro", Backend: BackendSpec{Kind: "memfs"}, Record: true}
	}
	return &Config{
		ReplayDir: ".nvim-agentfs/replay",
		StagePath: ".nvim-agentfs/stage.db",
		Mounts: []MountSpec{
			rw("/"),
			ro("/runtime"),
			rw("/workspace"),
			ro("/plugins-readonly"),
			rw("/plugins-local"),
		},
	}
}
