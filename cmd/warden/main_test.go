package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := buildRoot()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "warden")
}

func TestValidateRequiresConfig(t *testing.T) {
	_, err := runCommand(t, "validate")
	assert.Error(t, err)
}

func TestValidateAcceptsGoodConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warden.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[supervisor]
max_processes = 4
`), 0o644))

	out, err := runCommand(t, "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "valid")
}

func TestValidateRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warden.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[supervisor]
max_processes = -1
`), 0o644))

	_, err := runCommand(t, "validate", "--config", path)
	assert.Error(t, err)
}
