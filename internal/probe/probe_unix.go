//go:build !windows

package probe

import (
	"bytes"
	"os"
	"runtime"
	"strconv"
	"syscall"
)

// alive uses signal 0 delivery to test pid existence. On Linux a child that
// exited but has not been reaped yet is a zombie and still accepts signals,
// so treat that state as gone.
func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if runtime.GOOS == "linux" && isZombie(pid) {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}

// isZombie reports whether /proc/<pid>/status shows state Z.
func isZombie(pid int) bool {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}

// Terminate requests a graceful stop by sending SIGTERM to the process
// group, so shell-spawned children receive it too.
func Terminate(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}

// Kill forcefully ends the process group with SIGKILL.
func Kill(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}

// Throttle delivers the cooperative throttle signal (SIGUSR2). Workers that
// honor it are expected to shed load; workers that ignore it are unaffected.
func Throttle(pid int) error {
	return syscall.Kill(-pid, syscall.SIGUSR2)
}
