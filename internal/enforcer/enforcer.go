// Package enforcer applies resource-limit policy to running tasks: throttle
// at the soft threshold, terminate at the hard one, with deduplicated
// alerting. It polls usage on its own tick and keeps its own per-task state,
// sharing only the limits configuration with the monitor.
package enforcer

import (
	"log/slog"
	"sync"
	"time"

	"github.com/wardenproc/warden/internal/events"
	"github.com/wardenproc/warden/internal/limits"
	"github.com/wardenproc/warden/internal/metrics"
	"github.com/wardenproc/warden/internal/probe"
	"github.com/wardenproc/warden/internal/stats"
)

const (
	// ThrottleFraction is the fraction of a limit at which the cooperative
	// throttle signal is sent.
	ThrottleFraction = 0.85
	// TerminateFraction is the fraction at which the task is terminated
	// regardless of throttle state.
	TerminateFraction = 0.95

	defaultInterval      = time.Second
	defaultAlertCooldown = 30 * time.Second
	defaultAlertCap      = 1000
	defaultKillDelay     = 5 * time.Second
)

// Signaller delivers OS signals to a process group. The default uses the
// platform probe helpers; tests substitute a recorder.
type Signaller interface {
	Throttle(pid int) error
	Terminate(pid int) error
	Kill(pid int) error
}

type osSignaller struct{}

func (osSignaller) Throttle(pid int) error  { return probe.Throttle(pid) }
func (osSignaller) Terminate(pid int) error { return probe.Terminate(pid) }
func (osSignaller) Kill(pid int) error      { return probe.Kill(pid) }

// Violation types reported in alerts and metrics.
const (
	ViolationMemory    = "memory"
	ViolationCPU       = "cpu"
	ViolationExecution = "execution_time"
	ViolationHandles   = "file_handles"
)

// Alert is one deduplicated limit violation notification.
type Alert struct {
	TaskID    string    `json:"task_id"`
	ProcessID string    `json:"process_id"`
	Type      string    `json:"type"`
	Severity  string    `json:"severity"`
	Current   float64   `json:"current"`
	Limit     float64   `json:"limit"`
	Message   string    `json:"message"`
	Time      time.Time `json:"time"`
}

type alertKey struct {
	taskID string
	vtype  string
}

// task is the enforcer's per-task accounting entry.
type task struct {
	taskID    string
	processID string
	agentType string
	pid       int
	startedAt time.Time
	throttled bool
}

// Config tunes the enforcement loop.
type Config struct {
	Interval      time.Duration
	AlertCooldown time.Duration
	AlertCap      int
	KillDelay     time.Duration
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = defaultInterval
	}
	if c.AlertCooldown <= 0 {
		c.AlertCooldown = defaultAlertCooldown
	}
	if c.AlertCap <= 0 {
		c.AlertCap = defaultAlertCap
	}
	if c.KillDelay <= 0 {
		c.KillDelay = defaultKillDelay
	}
}

// Enforcer owns the per-task usage accounting and the enforcement tick.
type Enforcer struct {
	mu         sync.Mutex
	tasks      map[string]*task
	terminated map[string]bool
	lastAlert  map[alertKey]time.Time
	alerts     []Alert

	cfg      Config
	limits   limits.Resolver
	provider stats.Provider
	sig      Signaller
	alive    probe.Func
	bus      *events.Bus
	log      *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option configures optional collaborators.
type Option func(*Enforcer)

func WithSignaller(s Signaller) Option {
	return func(e *Enforcer) { e.sig = s }
}

func WithProbe(fn probe.Func) Option {
	return func(e *Enforcer) { e.alive = fn }
}

func WithBus(b *events.Bus) Option {
	return func(e *Enforcer) { e.bus = b }
}

func New(cfg Config, res limits.Resolver, provider stats.Provider, opts ...Option) *Enforcer {
	cfg.applyDefaults()
	e := &Enforcer{
		tasks:      make(map[string]*task),
		terminated: make(map[string]bool),
		lastAlert:  make(map[alertKey]time.Time),
		cfg:        cfg,
		limits:     res,
		provider:   provider,
		sig:        osSignaller{},
		alive:      probe.Default,
		log:        slog.Default().With("component", "enforcer"),
		stopCh:     make(chan struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Start launches the enforcement tick.
func (e *Enforcer) Start() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		t := time.NewTicker(e.cfg.Interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				e.Tick()
			case <-e.stopCh:
				return
			}
		}
	}()
}

// Close stops the tick and waits for it.
func (e *Enforcer) Close() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.wg.Wait()
}

// RegisterTask starts accounting for a task. Registration never fails;
// capacity refusal is the supervisor's concern.
func (e *Enforcer) RegisterTask(taskID, processID, agentType string, pid int) {
	e.mu.Lock()
	e.tasks[taskID] = &task{
		taskID:    taskID,
		processID: processID,
		agentType: agentType,
		pid:       pid,
		startedAt: time.Now(),
	}
	delete(e.terminated, taskID)
	e.mu.Unlock()
}

// UnregisterTask drops all accounting for a finished task, including its
// termination flag and alert cooldown entries. Task ids churn for the life
// of the supervisor; anything keyed by them must not outlive the task.
func (e *Enforcer) UnregisterTask(taskID string) {
	e.mu.Lock()
	delete(e.tasks, taskID)
	delete(e.terminated, taskID)
	for k := range e.lastAlert {
		if k.taskID == taskID {
			delete(e.lastAlert, k)
		}
	}
	e.mu.Unlock()
}

// Tick runs one enforcement pass over every registered task. Per-task
// errors are logged and never abort the pass.
func (e *Enforcer) Tick() {
	e.mu.Lock()
	snapshot := make([]task, 0, len(e.tasks))
	for _, t := range e.tasks {
		snapshot = append(snapshot, *t)
	}
	e.mu.Unlock()

	for _, t := range snapshot {
		e.enforceTask(t)
	}
}

func (e *Enforcer) enforceTask(t task) {
	e.mu.Lock()
	done := e.terminated[t.taskID]
	e.mu.Unlock()
	if done {
		return
	}

	snap, err := e.provider.Snapshot(t.pid)
	if err != nil {
		e.log.Debug("usage collection failed", "task_id", t.taskID, "pid", t.pid, "error", err)
		return
	}
	lim := e.limits.For(t.agentType)

	worst := 0.0
	worstType := ""
	check := func(vtype string, current, limit float64) {
		if limit <= 0 {
			return
		}
		f := current / limit
		if f >= ThrottleFraction {
			e.emitAlert(t, vtype, current, limit, severityFor(f))
		}
		if f > worst {
			worst = f
			worstType = vtype
		}
	}
	check(ViolationMemory, snap.MemoryMB, lim.MaxMemoryMB)
	check(ViolationCPU, snap.CPUPercent, lim.MaxCPUPercent)
	check(ViolationExecution, time.Since(t.startedAt).Seconds(), lim.MaxExecutionTime.Seconds())
	check(ViolationHandles, float64(snap.NumFDs), float64(lim.MaxFileHandles))

	switch {
	case worst >= TerminateFraction:
		metrics.IncViolation(worstType, "terminate")
		e.ForceTerminateTask(t.taskID, worstType+" limit exceeded")
	case worst >= ThrottleFraction:
		e.throttleTask(t.taskID, worstType)
	}
}

// throttleTask sends the cooperative throttle signal once per throttle
// episode; the flag clears when the task re-registers after a restart.
func (e *Enforcer) throttleTask(taskID, vtype string) {
	e.mu.Lock()
	t, ok := e.tasks[taskID]
	if !ok || t.throttled {
		e.mu.Unlock()
		return
	}
	t.throttled = true
	pid := t.pid
	e.mu.Unlock()

	metrics.IncViolation(vtype, "throttle")
	if err := e.sig.Throttle(pid); err != nil {
		e.log.Warn("throttle signal failed", "task_id", taskID, "pid", pid, "error", err)
		return
	}
	e.log.Info("task throttled", "task_id", taskID, "pid", pid, "violation", vtype)
}

// ForceTerminateTask gracefully terminates a task, escalating to a forced
// kill after the configured delay if the process is still alive. Repeat
// calls for the same task are no-ops.
func (e *Enforcer) ForceTerminateTask(taskID, reason string) {
	e.mu.Lock()
	if e.terminated[taskID] {
		e.mu.Unlock()
		return
	}
	t, ok := e.tasks[taskID]
	if !ok {
		e.mu.Unlock()
		return
	}
	e.terminated[taskID] = true
	pid := t.pid
	processID := t.processID
	e.mu.Unlock()

	e.log.Warn("terminating task", "task_id", taskID, "pid", pid, "reason", reason)
	if err := e.sig.Terminate(pid); err != nil {
		e.log.Warn("terminate signal failed", "task_id", taskID, "pid", pid, "error", err)
	}
	e.bus.PublishResource(events.ResourceEvent{
		Type:      "terminate",
		Severity:  "critical",
		ProcessID: processID,
		TaskID:    taskID,
		Message:   reason,
		Time:      time.Now(),
	})

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		select {
		case <-time.After(e.cfg.KillDelay):
		case <-e.stopCh:
			// Shutdown: escalate immediately rather than abandoning the kill.
		}
		if e.alive(pid) {
			if err := e.sig.Kill(pid); err != nil {
				e.log.Warn("kill signal failed", "task_id", taskID, "pid", pid, "error", err)
			}
		}
	}()
}

// emitAlert records one violation alert, suppressing duplicates of the same
// (task, type) within the cooldown window.
func (e *Enforcer) emitAlert(t task, vtype string, current, limit float64, severity string) {
	now := time.Now()
	key := alertKey{t.taskID, vtype}

	e.mu.Lock()
	if last, ok := e.lastAlert[key]; ok && now.Sub(last) < e.cfg.AlertCooldown {
		e.mu.Unlock()
		return
	}
	e.lastAlert[key] = now
	a := Alert{
		TaskID:    t.taskID,
		ProcessID: t.processID,
		Type:      vtype,
		Severity:  severity,
		Current:   current,
		Limit:     limit,
		Message:   vtype + " usage near limit",
		Time:      now,
	}
	e.alerts = append(e.alerts, a)
	if len(e.alerts) > e.cfg.AlertCap {
		// Halve the ring so sustained violations cannot grow memory unbounded.
		e.alerts = append([]Alert(nil), e.alerts[len(e.alerts)/2:]...)
	}
	e.mu.Unlock()

	metrics.IncAlert(vtype, severity)
	e.bus.PublishResource(events.ResourceEvent{
		Type:      vtype,
		Severity:  severity,
		ProcessID: t.processID,
		TaskID:    t.taskID,
		Current:   current,
		Limit:     limit,
		Message:   a.Message,
		Time:      now,
	})
}

// Alerts returns a copy of the retained alert history, newest last.
func (e *Enforcer) Alerts() []Alert {
	e.mu.Lock()
	out := append([]Alert(nil), e.alerts...)
	e.mu.Unlock()
	return out
}

// IsThrottled reports whether the task has been throttled in its current
// episode.
func (e *Enforcer) IsThrottled(taskID string) bool {
	e.mu.Lock()
	t, ok := e.tasks[taskID]
	th := ok && t.throttled
	e.mu.Unlock()
	return th
}

// IsTerminated reports whether ForceTerminateTask already fired for taskID.
func (e *Enforcer) IsTerminated(taskID string) bool {
	e.mu.Lock()
	done := e.terminated[taskID]
	e.mu.Unlock()
	return done
}

func severityFor(f float64) string {
	if f >= TerminateFraction {
		return "critical"
	}
	return "warning"
}
