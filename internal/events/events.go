// Package events carries typed lifecycle notifications between the core
// components and external collaborators. Each event category has its own
// subscription list with a fixed payload shape, instead of a string-keyed
// pub/sub surface.
package events

import "time"

// ProcessEventType enumerates process lifecycle transitions.
type ProcessEventType string

const (
	ProcessRegistered   ProcessEventType = "registered"
	ProcessUnregistered ProcessEventType = "unregistered"
	ProcessStarted      ProcessEventType = "started"
	ProcessStopped      ProcessEventType = "stopped"
	ProcessRestarted    ProcessEventType = "restarted"
	ProcessExited       ProcessEventType = "exited"
	ProcessError        ProcessEventType = "error"
)

// ProcessEvent describes one lifecycle transition of a supervised process.
type ProcessEvent struct {
	Type       ProcessEventType `json:"type"`
	ProcessID  string           `json:"process_id"`
	TaskID     string           `json:"task_id"`
	AgentType  string           `json:"agent_type"`
	PID        int              `json:"pid"`
	Reason     string           `json:"reason,omitempty"`
	ExitCode   *int             `json:"exit_code,omitempty"`
	ExitSignal string           `json:"exit_signal,omitempty"`
	Time       time.Time        `json:"time"`
}

// HealthEvent is emitted when a health assessment yields a non-healthy
// result or when an assessment completes.
type HealthEvent struct {
	ProcessID string    `json:"process_id"`
	Score     float64   `json:"score"`
	Status    string    `json:"status"`
	Trend     string    `json:"trend"`
	Issues    []string  `json:"issues,omitempty"`
	Time      time.Time `json:"time"`
}

// ResourceEvent is emitted for throttle, terminate and limit-violation
// alerts.
type ResourceEvent struct {
	Type      string    `json:"type"`
	Severity  string    `json:"severity"`
	ProcessID string    `json:"process_id"`
	TaskID    string    `json:"task_id"`
	Current   float64   `json:"current"`
	Limit     float64   `json:"limit"`
	Message   string    `json:"message"`
	Time      time.Time `json:"time"`
}

// RegistryEvent reports registry maintenance (cleanup passes, snapshots).
type RegistryEvent struct {
	Type    string    `json:"type"`
	Count   int       `json:"count"`
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time"`
}

// SupervisorEvent reports supervisor-level transitions (initialized,
// shutdown).
type SupervisorEvent struct {
	Type    string    `json:"type"`
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time"`
}
