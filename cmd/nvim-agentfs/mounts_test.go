package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfigYAML = `
mounts:
  - mountpoint: /
    perm: rw
    backend:
      kind: memfs
    record: true
  - mountpoint: /runtime
    perm: ro
    backend:
      kind: memfs
    record: true
replay_dir: /.nvim/replay
`

func writeTestConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfigYAML), 0o600))
	return path
}

func TestMountsCommandListsConfiguredMounts(t *testing.T) {
	path := writeTestConfig(t)
	mountsConfigPath = path

	var out bytes.Buffer
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	err = runMounts(mountsCmd, nil)
	require.NoError(t, w.Close())
	os.Stdout = oldStdout
	require.NoError(t, err)

	_, copyErr := out.ReadFrom(r)
	require.NoError(t, copyErr)

	assert.Contains(t, out.String(), "/runtime")
	assert.Contains(t, out.String(), "memfs")
}

func TestRegistryBuildsMemfsBackend(t *testing.T) {
	reg := buildRegistry()
	factory, ok := reg["memfs"]
	require.True(t, ok)

	be, err := factory(nil)
	require.NoError(t, err)
	assert.Equal(t, "memfs", be.(interface{ Name() string }).Name())
}
