// Package probe provides pid-level liveness checks and signal delivery for
// supervised worker processes. A liveness probe is a boolean existence check
// that does not affect the target's execution.
package probe

// Func reports whether the process identified by pid still exists.
// Implementations must be cheap enough to call once per managed process per
// cleanup pass.
type Func func(pid int) bool

// Default is the platform liveness probe.
var Default Func = alive
