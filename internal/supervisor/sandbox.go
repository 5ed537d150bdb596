package supervisor

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/wardenproc/warden/internal/config"
)

// sandbox validates spawn requests against the configured allow-lists.
// A disabled sandbox admits everything.
type sandbox struct {
	cfg config.SandboxConfig
}

func (s sandbox) checkCommand(command string) error {
	if !s.cfg.Enabled {
		return nil
	}
	clean := filepath.Clean(command)
	for _, allowed := range s.cfg.AllowedCommands {
		if clean == filepath.Clean(allowed) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrCommandNotAllowed, command)
}

func (s sandbox) checkWorkDir(dir string) error {
	if !s.cfg.Enabled || dir == "" {
		return nil
	}
	if len(s.cfg.AllowedWorkDirs) == 0 {
		return nil
	}
	clean := filepath.Clean(dir)
	for _, allowed := range s.cfg.AllowedWorkDirs {
		root := filepath.Clean(allowed)
		if clean == root || strings.HasPrefix(clean, root+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrWorkDirNotAllowed, dir)
}
