//go:build windows

package probe

import (
	"os"

	gops "github.com/shirou/gopsutil/v4/process"
)

// alive asks the process table; signal 0 has no equivalent here.
func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := gops.PidExists(int32(pid))
	return err == nil && ok
}

// Terminate on Windows is a hard kill; there is no TERM/KILL distinction.
func Terminate(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

func Kill(pid int) error { return Terminate(pid) }

// Throttle is a no-op on Windows: no cooperative signal exists. The caller
// still records the throttle action and emits its alert.
func Throttle(int) error { return nil }
