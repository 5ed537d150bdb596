package enforcer

import (
	"fmt"

	"github.com/wardenproc/warden/internal/stats"
)

// Host-level admission ceilings. The process-count ceiling lives with the
// supervisor; these guard the whole machine.
const (
	MaxSystemMemoryPercent = 85.0
	MaxLoadPerCPU          = 0.8
)

// readSystem is swapped out in tests.
var readSystem = stats.ReadSystemUsage

// CheckSystemCapacity reports whether the host can absorb another worker.
// It returns nil when memory pressure and load are under the ceilings.
func (e *Enforcer) CheckSystemCapacity() error {
	u := readSystem()
	if u.MemoryPercent >= MaxSystemMemoryPercent {
		return fmt.Errorf("system memory at %.1f%%, ceiling %.0f%%", u.MemoryPercent, MaxSystemMemoryPercent)
	}
	maxLoad := MaxLoadPerCPU * float64(u.NumCPU)
	if u.NumCPU > 0 && u.Load1 >= maxLoad {
		return fmt.Errorf("system load %.2f over ceiling %.2f", u.Load1, maxLoad)
	}
	return nil
}
