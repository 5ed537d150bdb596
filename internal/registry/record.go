package registry

import "time"

// Status is the lifecycle state of a supervised process.
type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusIdle     Status = "idle"
	StatusStopping Status = "stopping"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
	StatusCrashed  Status = "crashed"
)

// Terminal reports whether the status is final. Terminal records are
// eligible for stale cleanup and eviction.
func (s Status) Terminal() bool {
	return s == StatusStopped || s == StatusError || s == StatusCrashed
}

// Health is the coarse health classification held in the registry.
type Health string

const (
	HealthHealthy   Health = "healthy"
	HealthUnhealthy Health = "unhealthy"
	HealthUnknown   Health = "unknown"
	HealthCrashed   Health = "crashed"
)

// Priority orders processes for admission and persistence urgency.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// ResourceUsage is the latest usage snapshot stored on a record.
type ResourceUsage struct {
	MemoryMB        float64 `json:"memory_mb"`
	CPUPercent      float64 `json:"cpu_percent"`
	ExecutionTimeMs int64   `json:"execution_time_ms"`
	FileHandles     int     `json:"file_handles"`
}

// Record is the registry's authoritative description of one supervised
// process. Exactly one record exists per ProcessID and an id is never
// reused after removal.
type Record struct {
	ProcessID    string            `json:"process_id"`
	PID          int               `json:"pid"`
	TaskID       string            `json:"task_id"`
	AgentType    string            `json:"agent_type"`
	Command      string            `json:"command"`
	Args         []string          `json:"args,omitempty"`
	WorkDir      string            `json:"work_dir,omitempty"`
	Priority     Priority          `json:"priority"`
	StartTime    time.Time         `json:"start_time"`
	LastActive   time.Time         `json:"last_active"`
	EndTime      *time.Time        `json:"end_time,omitempty"`
	Status       Status            `json:"status"`
	Health       Health            `json:"health"`
	Usage        ResourceUsage     `json:"resource_usage"`
	RestartCount int               `json:"restart_count"`
	LastRestart  *time.Time        `json:"last_restart,omitempty"`
	ExitCode     *int              `json:"exit_code,omitempty"`
	ExitSignal   string            `json:"exit_signal,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	ParentPID    int               `json:"parent_pid,omitempty"`
	ChildPIDs    []int             `json:"child_pids,omitempty"`
}

// clone returns a deep copy so callers never alias registry-owned state.
func (r *Record) clone() Record {
	c := *r
	if r.Args != nil {
		c.Args = append([]string(nil), r.Args...)
	}
	if r.Tags != nil {
		c.Tags = append([]string(nil), r.Tags...)
	}
	if r.ChildPIDs != nil {
		c.ChildPIDs = append([]int(nil), r.ChildPIDs...)
	}
	if r.Metadata != nil {
		c.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			c.Metadata[k] = v
		}
	}
	if r.EndTime != nil {
		t := *r.EndTime
		c.EndTime = &t
	}
	if r.LastRestart != nil {
		t := *r.LastRestart
		c.LastRestart = &t
	}
	if r.ExitCode != nil {
		v := *r.ExitCode
		c.ExitCode = &v
	}
	return c
}
