package stats

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	gops "github.com/shirou/gopsutil/v4/process"
)

// SystemProvider queries the OS process table via gopsutil.
type SystemProvider struct{}

func NewSystemProvider() SystemProvider { return SystemProvider{} }

func (SystemProvider) Snapshot(pid int) (Snapshot, error) {
	proc, err := gops.NewProcess(int32(pid))
	if err != nil {
		return Snapshot{}, fmt.Errorf("process handle for pid %d: %w", pid, err)
	}

	snap := Snapshot{PID: pid, Timestamp: time.Now()}

	// CPU percent needs a prior observation to be accurate; a zero first
	// reading is fine for trend buffers.
	if cpu, err := proc.CPUPercent(); err == nil {
		snap.CPUPercent = cpu
	} else {
		slog.Debug("cpu percent unavailable", "pid", pid, "error", err)
	}

	mem, err := proc.MemoryInfo()
	if err != nil {
		return Snapshot{}, fmt.Errorf("memory info for pid %d: %w", pid, err)
	}
	snap.MemoryRSS = mem.RSS
	snap.MemoryMB = float64(mem.RSS) / 1024 / 1024

	if n, err := proc.NumThreads(); err == nil {
		snap.NumThreads = n
	}
	if runtime.GOOS != "windows" {
		if n, err := proc.NumFDs(); err == nil {
			snap.NumFDs = n
		}
	}
	return snap, nil
}

// FallbackProvider tries the primary provider and falls back to measuring
// the supervisor's own process when cross-process introspection fails.
type FallbackProvider struct {
	Primary Provider
	SelfPID int
}

func NewFallbackProvider(primary Provider, selfPID int) FallbackProvider {
	return FallbackProvider{Primary: primary, SelfPID: selfPID}
}

func (p FallbackProvider) Snapshot(pid int) (Snapshot, error) {
	snap, err := p.Primary.Snapshot(pid)
	if err == nil {
		return snap, nil
	}
	self, serr := p.Primary.Snapshot(p.SelfPID)
	if serr != nil {
		return Snapshot{}, err
	}
	slog.Debug("using self metrics as fallback", "pid", pid, "error", err)
	self.PID = pid
	return self, nil
}
