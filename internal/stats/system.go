package stats

import (
	"runtime"

	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// SystemUsage is a host-wide snapshot used for admission control.
type SystemUsage struct {
	MemoryPercent float64 `json:"memory_percent"`
	Load1         float64 `json:"load1"`
	NumCPU        int     `json:"num_cpu"`
}

// ReadSystemUsage collects host memory pressure and 1-minute load. Partial
// failures degrade to zero values rather than erroring: admission checks
// must not block spawning because telemetry hiccuped.
func ReadSystemUsage() SystemUsage {
	u := SystemUsage{NumCPU: runtime.NumCPU()}
	if vm, err := mem.VirtualMemory(); err == nil {
		u.MemoryPercent = vm.UsedPercent
	}
	if avg, err := load.Avg(); err == nil {
		u.Load1 = avg.Load1
	}
	return u
}
