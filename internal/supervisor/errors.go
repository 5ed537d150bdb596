package supervisor

import "errors"

var (
	// ErrCapacityExceeded rejects a start when the process count or host
	// ceilings are hit. Retriable once load drops.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrCommandNotAllowed rejects a command outside the sandbox allow-list.
	ErrCommandNotAllowed = errors.New("command not allowed by sandbox policy")

	// ErrWorkDirNotAllowed rejects a working directory outside the sandbox
	// path list.
	ErrWorkDirNotAllowed = errors.New("working directory not allowed by sandbox policy")

	// ErrRestartLimitExceeded is returned when the restart budget is spent.
	ErrRestartLimitExceeded = errors.New("restart limit exceeded")

	// ErrProcessNotFound is returned for operations on unknown process ids.
	ErrProcessNotFound = errors.New("process not found")

	// ErrShuttingDown rejects new work during shutdown.
	ErrShuttingDown = errors.New("supervisor is shutting down")
)
