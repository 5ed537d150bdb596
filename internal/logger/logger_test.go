package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerLogConfigEnabled(t *testing.T) {
	assert.False(t, WorkerLogConfig{}.Enabled())
	assert.True(t, WorkerLogConfig{Dir: "/tmp"}.Enabled())
	assert.True(t, WorkerLogConfig{StdoutPath: "/tmp/out.log"}.Enabled())
}

func TestWritersDerivePathsFromDir(t *testing.T) {
	dir := t.TempDir()
	cfg := WorkerLogConfig{Dir: dir}

	outW, errW := cfg.Writers("proc-1")
	require.NotNil(t, outW)
	require.NotNil(t, errW)

	_, err := outW.Write([]byte("hello stdout\n"))
	require.NoError(t, err)
	_, err = errW.Write([]byte("hello stderr\n"))
	require.NoError(t, err)
	require.NoError(t, outW.Close())
	require.NoError(t, errW.Close())

	b, err := os.ReadFile(filepath.Join(dir, "proc-1.stdout.log"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "hello stdout")

	b, err = os.ReadFile(filepath.Join(dir, "proc-1.stderr.log"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "hello stderr")
}

func TestWritersNilWhenUnconfigured(t *testing.T) {
	outW, errW := WorkerLogConfig{}.Writers("proc-1")
	assert.Nil(t, outW)
	assert.Nil(t, errW)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}
