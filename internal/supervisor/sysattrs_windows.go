//go:build windows

package supervisor

import "os/exec"

func setSysProcAttr(_ *exec.Cmd) {}

func exitStatus(_ error, cmd *exec.Cmd) (int, string) {
	if cmd.ProcessState == nil {
		return -1, ""
	}
	return cmd.ProcessState.ExitCode(), ""
}
