//go:build !windows

package probe

import (
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDetectsOwnProcess(t *testing.T) {
	assert.True(t, Default(os.Getpid()))
}

func TestDefaultRejectsInvalidPIDs(t *testing.T) {
	assert.False(t, Default(0))
	assert.False(t, Default(-1))
}

func TestDefaultDetectsExitedChild(t *testing.T) {
	cmd := exec.Command("/bin/sh", "-c", "exit 0")
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid
	require.NoError(t, cmd.Wait())

	assert.False(t, Default(pid), "reaped child must read as gone")
}

func TestTerminateStopsProcessGroup(t *testing.T) {
	cmd := exec.Command("/bin/sh", "-c", "sleep 30")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid

	require.NoError(t, Terminate(pid))
	done := make(chan struct{})
	go func() { _ = cmd.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		_ = Kill(pid)
		t.Fatal("process survived SIGTERM")
	}
	assert.False(t, Default(pid))
}
