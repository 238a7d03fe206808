package main

import (
	"net"

	"github.com/agentvfs/nvim-agentfs/internal/backend"
	"github.com/agentvfs/nvim-agentfs/internal/backend/memfs"
	"github.com/agentvfs/nvim-agentfs/internal/backend/opfsfs"
	"github.com/agentvfs/nvim-agentfs/internal/backend/remotefs"
	"github.com/agentvfs/nvim-agentfs/internal/backend/s3fs"
	"github.com/agentvfs/nvim-agentfs/internal/backend/sftpfs"
	"github.com/agentvfs/nvim-agentfs/internal/config"
	"github.com/pkg/errors"
)

// buildRegistry wires every backend package this binary links against
// into a config.Registry, keyed the way SPEC_FULL.md's config schema
// names backend kinds. Each factory reads its options out of the
// string map a mount's config entry carries.
func buildRegistry() config.Registry {
	return config.Registry{
		"memfs": func(options map[string]string) (backend.Backend, error) {
			return memfs.New(), nil
		},
		"s3": func(options map[string]string) (backend.Backend, error) {
			return s3fs.New(s3fs.Config{
				Bucket:          options["bucket"],
				Prefix:          options["prefix"],
				Region:          options["region"],
				Endpoint:        options["endpoint"],
				AccessKeyID:     options["access_key_id"],
				SecretAccessKey: options["secret_access_key"],
				ForcePathStyle:  options["force_path_style"] == "true",
			})
		},
		"sftp": func(options map[string]string) (backend.Backend, error) {
			return sftpfs.New(sftpfs.Config{
				Host:     options["host"],
				Port:     options["port"],
				User:     options["user"],
				Password: options["password"],
				Root:     options["root"],
			})
		},
		"remote": func(options map[string]string) (backend.Backend, error) {
			conn, err := net.Dial("tcp", options["addr"])
			if err != nil {
				return nil, errors.Wrapf(err, "remote backend: dialing %q", options["addr"])
			}
			return remotefs.New(conn), nil
		},
		"opfs": func(options map[string]string) (backend.Backend, error) {
			return opfsfs.New(), nil
		},
	}
}
