package supervisor

import (
	"fmt"
	"strings"

	"github.com/wardenproc/warden/internal/limits"
	"github.com/wardenproc/warden/internal/registry"
)

// StartOptions describes one worker process to spawn.
type StartOptions struct {
	ProcessID string // generated when empty
	TaskID    string
	AgentType string
	Command   string
	Args      []string
	WorkDir   string
	Env       map[string]string
	Priority  registry.Priority
	Metadata  map[string]string
	Tags      []string

	// AutoRestart and MaxRestarts override the supervisor defaults when set.
	AutoRestart *bool
	MaxRestarts *int

	// HealthCheckCmd, when set, is run during health checks; exit code 0
	// means healthy, anything else or a timeout means unhealthy.
	HealthCheckCmd string

	// Limits overrides the resolved agent-type limits for this process.
	Limits *limits.Limits
}

func (o StartOptions) validate() error {
	if strings.TrimSpace(o.Command) == "" {
		return fmt.Errorf("command is required")
	}
	if strings.TrimSpace(o.TaskID) == "" {
		return fmt.Errorf("task id is required")
	}
	if strings.TrimSpace(o.AgentType) == "" {
		return fmt.Errorf("agent type is required")
	}
	if o.Limits != nil {
		if err := o.Limits.Validate(); err != nil {
			return err
		}
	}
	return nil
}
