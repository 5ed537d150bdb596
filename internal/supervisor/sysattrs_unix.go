//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// setSysProcAttr puts the worker in its own process group so termination
// signals reach shell-spawned children as well.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// exitStatus extracts the exit code and terminating signal name from a
// finished command. A signal death reports code -1 and the signal name.
func exitStatus(err error, cmd *exec.Cmd) (int, string) {
	if cmd.ProcessState == nil {
		return -1, ""
	}
	ws, ok := cmd.ProcessState.Sys().(syscall.WaitStatus)
	if ok && ws.Signaled() {
		return -1, ws.Signal().String()
	}
	code := cmd.ProcessState.ExitCode()
	if code < 0 && err != nil {
		return -1, ""
	}
	return code, ""
}
