// Package stats abstracts per-process telemetry collection behind a single
// provider interface so monitoring and enforcement do not branch on the
// platform inline. The gopsutil-backed provider covers Linux, macOS and
// Windows; the self provider is the last-resort fallback when cross-process
// introspection is unavailable.
package stats

import "time"

// Snapshot is one observation of a process's resource consumption.
type Snapshot struct {
	PID        int       `json:"pid"`
	MemoryMB   float64   `json:"memory_mb"`
	MemoryRSS  uint64    `json:"memory_rss"`
	CPUPercent float64   `json:"cpu_percent"`
	NumThreads int32     `json:"num_threads"`
	NumFDs     int32     `json:"num_fds,omitempty"` // Unix only
	Timestamp  time.Time `json:"timestamp"`
}

// Provider collects a Snapshot for an arbitrary pid.
type Provider interface {
	Snapshot(pid int) (Snapshot, error)
}
