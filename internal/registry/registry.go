// Package registry is the durable source of truth for supervised process
// metadata, status, health and restart history. The in-memory maps are
// authoritative; the snapshot on disk exists to survive supervisor
// restarts. All mutation goes through this API (single writer through API).
package registry

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wardenproc/warden/internal/events"
	"github.com/wardenproc/warden/internal/metrics"
	"github.com/wardenproc/warden/internal/probe"
)

const (
	// ExitSignalOrphaned marks records whose OS process vanished without a
	// wait handler observing the exit.
	ExitSignalOrphaned = "ORPHANED"

	defaultSnapshotInterval = 30 * time.Second
	defaultStaleAfter       = time.Hour
	defaultMaxRecords       = 1000
)

// Config tunes persistence and retention.
type Config struct {
	SnapshotPath     string
	SnapshotInterval time.Duration
	StaleAfter       time.Duration
	MaxRecords       int
}

func (c *Config) applyDefaults() {
	if c.SnapshotInterval <= 0 {
		c.SnapshotInterval = defaultSnapshotInterval
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = defaultStaleAfter
	}
	if c.MaxRecords <= 0 {
		c.MaxRecords = defaultMaxRecords
	}
}

// Registry holds the record map and the pid index. The pid index is valid
// only for records whose status is running.
type Registry struct {
	mu       sync.RWMutex
	procs    map[string]*Record
	pidIndex map[int]string

	cfg   Config
	alive probe.Func
	bus   *events.Bus
	log   *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option configures optional collaborators.
type Option func(*Registry)

// WithProbe overrides the liveness probe (tests use this).
func WithProbe(fn probe.Func) Option {
	return func(r *Registry) { r.alive = fn }
}

// WithBus attaches an event bus for registry events.
func WithBus(b *events.Bus) Option {
	return func(r *Registry) { r.bus = b }
}

// New builds a registry. Call Open to load the snapshot and start the
// persistence loop, Close to flush and stop it.
func New(cfg Config, opts ...Option) *Registry {
	cfg.applyDefaults()
	r := &Registry{
		procs:    make(map[string]*Record),
		pidIndex: make(map[int]string),
		cfg:      cfg,
		alive:    probe.Default,
		log:      slog.Default().With("component", "registry"),
		stopCh:   make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Open reloads the snapshot (if any) and starts periodic persistence.
// Reloaded running records are only re-indexed when their pid still passes
// the liveness probe; dead ones are left unmapped for the next orphan pass.
func (r *Registry) Open() error {
	if err := r.load(); err != nil {
		return err
	}
	r.wg.Add(1)
	go r.snapshotLoop()
	return nil
}

// Close stops the persistence loop and writes a final snapshot.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
	if err := r.snapshot(); err != nil {
		r.log.Warn("final snapshot failed", "error", err)
	}
}

// Register inserts a new record and indexes its pid. It fails when the
// ProcessID is already present. Critical-priority registrations flush the
// snapshot synchronously.
func (r *Registry) Register(rec Record) error {
	now := time.Now()
	r.mu.Lock()
	if _, exists := r.procs[rec.ProcessID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("process %q already registered", rec.ProcessID)
	}
	if rec.Status == "" {
		rec.Status = StatusStarting
	}
	if rec.Health == "" {
		rec.Health = HealthUnknown
	}
	if rec.StartTime.IsZero() {
		rec.StartTime = now
	}
	rec.LastActive = now
	stored := rec.clone()
	r.procs[rec.ProcessID] = &stored
	if rec.PID > 0 && rec.Status == StatusRunning {
		r.pidIndex[rec.PID] = rec.ProcessID
	}
	r.evictOverCapLocked()
	critical := rec.Priority == PriorityCritical
	r.mu.Unlock()

	r.bus.PublishRegistry(events.RegistryEvent{Type: "process_registered", Count: 1, Message: rec.ProcessID, Time: now})
	if critical {
		if err := r.snapshot(); err != nil {
			r.log.Warn("critical registration flush failed", "process_id", rec.ProcessID, "error", err)
		}
	}
	return nil
}

// Unregister removes a record entirely. The ProcessID must never be reused
// afterwards.
func (r *Registry) Unregister(processID string) bool {
	r.mu.Lock()
	rec, ok := r.procs[processID]
	if ok {
		delete(r.pidIndex, rec.PID)
		delete(r.procs, processID)
	}
	r.mu.Unlock()
	if ok {
		r.bus.PublishRegistry(events.RegistryEvent{Type: "process_unregistered", Count: 1, Message: processID, Time: time.Now()})
	}
	return ok
}

// UpdateStatus transitions a record's status, maintaining the pid index
// invariant: a pid mapping exists exactly while the status is running.
// Unknown ids are silently ignored to avoid races with exit handlers.
func (r *Registry) UpdateStatus(processID string, st Status) {
	r.mu.Lock()
	rec, ok := r.procs[processID]
	if !ok {
		r.mu.Unlock()
		return
	}
	from := rec.Status
	rec.Status = st
	rec.LastActive = time.Now()
	if st == StatusRunning {
		if rec.PID > 0 {
			r.pidIndex[rec.PID] = processID
		}
	} else {
		delete(r.pidIndex, rec.PID)
	}
	r.mu.Unlock()
	if from != st {
		metrics.RecordTransition(string(from), string(st))
	}
}

// UpdateHealth sets the coarse health classification.
func (r *Registry) UpdateHealth(processID string, h Health) {
	r.mu.Lock()
	if rec, ok := r.procs[processID]; ok {
		rec.Health = h
		rec.LastActive = time.Now()
	}
	r.mu.Unlock()
}

// UpdateResources stores the latest usage snapshot.
func (r *Registry) UpdateResources(processID string, u ResourceUsage) {
	r.mu.Lock()
	if rec, ok := r.procs[processID]; ok {
		rec.Usage = u
		rec.LastActive = time.Now()
	}
	r.mu.Unlock()
}

// RecordExit finalizes a record: exit code 0 becomes stopped/healthy-exit,
// anything else becomes error/unhealthy. The pid index entry is dropped.
func (r *Registry) RecordExit(processID string, exitCode int, exitSignal string) {
	now := time.Now()
	r.mu.Lock()
	rec, ok := r.procs[processID]
	if !ok {
		r.mu.Unlock()
		return
	}
	from := rec.Status
	rec.EndTime = &now
	rec.LastActive = now
	code := exitCode
	rec.ExitCode = &code
	rec.ExitSignal = exitSignal
	if exitCode == 0 {
		rec.Status = StatusStopped
		rec.Health = HealthHealthy
	} else {
		rec.Status = StatusError
		rec.Health = HealthUnhealthy
	}
	delete(r.pidIndex, rec.PID)
	to := rec.Status
	r.mu.Unlock()
	metrics.RecordTransition(string(from), string(to))
}

// RecordRestart remaps the pid index to newPID, bumps the restart counter
// and clears prior exit state, all atomically. A non-empty taskID replaces
// the record's task id (restart-suffixed by the supervisor).
func (r *Registry) RecordRestart(processID string, newPID int, taskID string) {
	now := time.Now()
	r.mu.Lock()
	rec, ok := r.procs[processID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.pidIndex, rec.PID)
	rec.PID = newPID
	if taskID != "" {
		rec.TaskID = taskID
	}
	rec.RestartCount++
	rec.LastRestart = &now
	rec.StartTime = now
	rec.LastActive = now
	rec.EndTime = nil
	rec.ExitCode = nil
	rec.ExitSignal = ""
	rec.Usage = ResourceUsage{}
	rec.Status = StatusRunning
	rec.Health = HealthUnknown
	if newPID > 0 {
		r.pidIndex[newPID] = processID
	}
	r.mu.Unlock()
}

// Get returns a copy of the record.
func (r *Registry) Get(processID string) (Record, bool) {
	r.mu.RLock()
	rec, ok := r.procs[processID]
	if !ok {
		r.mu.RUnlock()
		return Record{}, false
	}
	out := rec.clone()
	r.mu.RUnlock()
	return out, true
}

// LookupPID resolves a live pid to its process id.
func (r *Registry) LookupPID(pid int) (string, bool) {
	r.mu.RLock()
	id, ok := r.pidIndex[pid]
	r.mu.RUnlock()
	return id, ok
}

// Len returns the number of records held.
func (r *Registry) Len() int {
	r.mu.RLock()
	n := len(r.procs)
	r.mu.RUnlock()
	return n
}

// CleanupOrphans probes every running record's pid and reclassifies dead
// ones as crashed with a synthetic ORPHANED exit. Records named in exclude
// are skipped: the supervisor passes the ids whose exit watcher is still
// attached, since a just-exited child fails the probe during its zombie
// window while the watcher is about to record the real exit. Returns the
// count reclassified.
func (r *Registry) CleanupOrphans(exclude ...string) int {
	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	type candidate struct {
		id  string
		pid int
	}
	r.mu.RLock()
	var running []candidate
	for id, rec := range r.procs {
		if _, excluded := skip[id]; excluded {
			continue
		}
		if rec.Status == StatusRunning {
			running = append(running, candidate{id, rec.PID})
		}
	}
	r.mu.RUnlock()

	cleaned := 0
	now := time.Now()
	for _, c := range running {
		if r.alive(c.pid) {
			continue
		}
		r.mu.Lock()
		rec, ok := r.procs[c.id]
		// Re-check under lock: an exit handler may have won the race.
		if !ok || rec.Status != StatusRunning || rec.PID != c.pid {
			r.mu.Unlock()
			continue
		}
		rec.Status = StatusCrashed
		rec.Health = HealthCrashed
		rec.EndTime = &now
		rec.LastActive = now
		code := -1
		rec.ExitCode = &code
		rec.ExitSignal = ExitSignalOrphaned
		delete(r.pidIndex, rec.PID)
		agentType := rec.AgentType
		r.mu.Unlock()
		metrics.IncCrash(agentType)
		metrics.RecordTransition(string(StatusRunning), string(StatusCrashed))
		cleaned++
	}
	if cleaned > 0 {
		r.log.Info("orphaned processes reclassified", "count", cleaned)
	}
	r.bus.PublishRegistry(events.RegistryEvent{Type: "cleanup_completed", Count: cleaned, Time: time.Now()})
	return cleaned
}

// CleanupStale removes terminal records inactive beyond the staleness
// threshold. Returns the count removed.
func (r *Registry) CleanupStale() int {
	cutoff := time.Now().Add(-r.cfg.StaleAfter)
	r.mu.Lock()
	removed := 0
	for id, rec := range r.procs {
		if rec.Status.Terminal() && rec.LastActive.Before(cutoff) {
			delete(r.pidIndex, rec.PID)
			delete(r.procs, id)
			removed++
		}
	}
	r.mu.Unlock()
	if removed > 0 {
		r.log.Debug("stale records removed", "count", removed)
	}
	return removed
}

// evictOverCapLocked drops the oldest terminal records when the map exceeds
// MaxRecords, down to 80% of the cap. Live records are never evicted.
func (r *Registry) evictOverCapLocked() {
	if len(r.procs) <= r.cfg.MaxRecords {
		return
	}
	target := r.cfg.MaxRecords * 8 / 10
	for len(r.procs) > target {
		oldestID := ""
		var oldest time.Time
		for id, rec := range r.procs {
			if !rec.Status.Terminal() {
				continue
			}
			if oldestID == "" || rec.LastActive.Before(oldest) {
				oldestID = id
				oldest = rec.LastActive
			}
		}
		if oldestID == "" {
			return // nothing terminal left to evict
		}
		delete(r.pidIndex, r.procs[oldestID].PID)
		delete(r.procs, oldestID)
	}
}

func (r *Registry) snapshotLoop() {
	defer r.wg.Done()
	t := time.NewTicker(r.cfg.SnapshotInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := r.snapshot(); err != nil {
				// Persistence failures degrade durability only.
				r.log.Warn("snapshot failed", "error", err)
			}
		case <-r.stopCh:
			return
		}
	}
}
