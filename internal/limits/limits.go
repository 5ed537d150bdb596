// Package limits defines per-process resource ceilings shared by the monitor
// and the enforcer.
package limits

import (
	"fmt"
	"time"
)

// Limits holds the hard ceilings for one supervised process. Zero values
// mean "no limit" for that dimension.
type Limits struct {
	MaxMemoryMB      float64       `json:"max_memory_mb" mapstructure:"max_memory_mb"`
	MaxCPUPercent    float64       `json:"max_cpu_percent" mapstructure:"max_cpu_percent"`
	MaxExecutionTime time.Duration `json:"max_execution_time" mapstructure:"max_execution_time"`
	MaxFileHandles   int           `json:"max_file_handles" mapstructure:"max_file_handles"`
	MaxDiskMB        float64       `json:"max_disk_mb" mapstructure:"max_disk_mb"`
}

// Default returns the ceilings applied when the configuration does not set
// any.
func Default() Limits {
	return Limits{
		MaxMemoryMB:      1024,
		MaxCPUPercent:    80,
		MaxExecutionTime: 10 * time.Minute,
		MaxFileHandles:   256,
		MaxDiskMB:        2048,
	}
}

// Validate rejects negative ceilings; zero stays legal as "unlimited".
func (l Limits) Validate() error {
	if l.MaxMemoryMB < 0 {
		return fmt.Errorf("max_memory_mb must not be negative: %v", l.MaxMemoryMB)
	}
	if l.MaxCPUPercent < 0 {
		return fmt.Errorf("max_cpu_percent must not be negative: %v", l.MaxCPUPercent)
	}
	if l.MaxExecutionTime < 0 {
		return fmt.Errorf("max_execution_time must not be negative: %v", l.MaxExecutionTime)
	}
	if l.MaxFileHandles < 0 {
		return fmt.Errorf("max_file_handles must not be negative: %d", l.MaxFileHandles)
	}
	if l.MaxDiskMB < 0 {
		return fmt.Errorf("max_disk_mb must not be negative: %v", l.MaxDiskMB)
	}
	return nil
}

// merge overlays set (non-zero) fields of o on top of l.
func (l Limits) merge(o Limits) Limits {
	if o.MaxMemoryMB > 0 {
		l.MaxMemoryMB = o.MaxMemoryMB
	}
	if o.MaxCPUPercent > 0 {
		l.MaxCPUPercent = o.MaxCPUPercent
	}
	if o.MaxExecutionTime > 0 {
		l.MaxExecutionTime = o.MaxExecutionTime
	}
	if o.MaxFileHandles > 0 {
		l.MaxFileHandles = o.MaxFileHandles
	}
	if o.MaxDiskMB > 0 {
		l.MaxDiskMB = o.MaxDiskMB
	}
	return l
}

// Resolver resolves effective limits for an agent type: global ceilings with
// optional per-agent-type overrides.
type Resolver struct {
	Global      Limits
	ByAgentType map[string]Limits
}

// NewResolver builds a resolver, substituting defaults for a zero global.
func NewResolver(global Limits, overrides map[string]Limits) Resolver {
	if global == (Limits{}) {
		global = Default()
	}
	return Resolver{Global: global, ByAgentType: overrides}
}

// For returns the effective limits for agentType.
func (r Resolver) For(agentType string) Limits {
	if o, ok := r.ByAgentType[agentType]; ok {
		return r.Global.merge(o)
	}
	return r.Global
}
