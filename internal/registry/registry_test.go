package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, alive func(int) bool) *Registry {
	t.Helper()
	if alive == nil {
		alive = func(int) bool { return true }
	}
	r := New(Config{
		SnapshotPath:     filepath.Join(t.TempDir(), "registry.json"),
		SnapshotInterval: time.Hour,
	}, WithProbe(alive))
	require.NoError(t, r.Open())
	t.Cleanup(r.Close)
	return r
}

func running(id string, pid int) Record {
	return Record{
		ProcessID: id,
		PID:       pid,
		TaskID:    "task-" + id,
		AgentType: "coder",
		Command:   "/bin/sh",
		Priority:  PriorityNormal,
		Status:    StatusRunning,
	}
}

func TestRegisterRejectsDuplicateID(t *testing.T) {
	r := newTestRegistry(t, nil)
	require.NoError(t, r.Register(running("p1", 100)))
	err := r.Register(running("p1", 101))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestPIDIndexFollowsRunningStatus(t *testing.T) {
	r := newTestRegistry(t, nil)
	require.NoError(t, r.Register(running("p1", 100)))

	id, ok := r.LookupPID(100)
	require.True(t, ok)
	assert.Equal(t, "p1", id)

	r.UpdateStatus("p1", StatusStopping)
	_, ok = r.LookupPID(100)
	assert.False(t, ok, "pid index must drop when the record leaves running")

	r.UpdateStatus("p1", StatusRunning)
	_, ok = r.LookupPID(100)
	assert.True(t, ok)
}

func TestUpdatesOnUnknownIDAreNoOps(t *testing.T) {
	r := newTestRegistry(t, nil)
	r.UpdateStatus("ghost", StatusRunning)
	r.UpdateHealth("ghost", HealthHealthy)
	r.UpdateResources("ghost", ResourceUsage{MemoryMB: 1})
	r.RecordExit("ghost", 0, "")
	r.RecordRestart("ghost", 42, "")
	assert.Equal(t, 0, r.Len())
}

func TestRecordExitClassifiesByExitCode(t *testing.T) {
	r := newTestRegistry(t, nil)
	require.NoError(t, r.Register(running("ok", 100)))
	require.NoError(t, r.Register(running("bad", 101)))

	r.RecordExit("ok", 0, "")
	r.RecordExit("bad", 2, "")

	rec, ok := r.Get("ok")
	require.True(t, ok)
	assert.Equal(t, StatusStopped, rec.Status)
	assert.Equal(t, HealthHealthy, rec.Health)
	require.NotNil(t, rec.ExitCode)
	assert.Equal(t, 0, *rec.ExitCode)
	require.NotNil(t, rec.EndTime)

	rec, ok = r.Get("bad")
	require.True(t, ok)
	assert.Equal(t, StatusError, rec.Status)
	assert.Equal(t, HealthUnhealthy, rec.Health)
	require.NotNil(t, rec.ExitCode)
	assert.Equal(t, 2, *rec.ExitCode)

	_, mapped := r.LookupPID(100)
	assert.False(t, mapped)
}

func TestRecordRestartKeepsIdentityAndRemapsPID(t *testing.T) {
	r := newTestRegistry(t, nil)
	require.NoError(t, r.Register(running("p1", 100)))
	r.RecordExit("p1", 1, "SIGKILL")

	r.RecordRestart("p1", 200, "task-p1-r1")

	rec, ok := r.Get("p1")
	require.True(t, ok)
	assert.Equal(t, 200, rec.PID)
	assert.Equal(t, "task-p1-r1", rec.TaskID)
	assert.Equal(t, 1, rec.RestartCount)
	assert.Equal(t, StatusRunning, rec.Status)
	assert.Equal(t, HealthUnknown, rec.Health)
	assert.Nil(t, rec.ExitCode)
	assert.Nil(t, rec.EndTime)
	assert.Empty(t, rec.ExitSignal)
	require.NotNil(t, rec.LastRestart)

	_, oldMapped := r.LookupPID(100)
	assert.False(t, oldMapped)
	id, newMapped := r.LookupPID(200)
	require.True(t, newMapped)
	assert.Equal(t, "p1", id)
}

func TestCleanupOrphansReclassifiesDeadRunning(t *testing.T) {
	dead := map[int]bool{101: true}
	r := newTestRegistry(t, func(pid int) bool { return !dead[pid] })
	require.NoError(t, r.Register(running("live", 100)))
	require.NoError(t, r.Register(running("gone", 101)))

	n := r.CleanupOrphans()
	assert.Equal(t, 1, n)

	rec, ok := r.Get("gone")
	require.True(t, ok)
	assert.Equal(t, StatusCrashed, rec.Status)
	assert.Equal(t, HealthCrashed, rec.Health)
	assert.Equal(t, ExitSignalOrphaned, rec.ExitSignal)
	require.NotNil(t, rec.ExitCode)
	assert.Equal(t, -1, *rec.ExitCode)

	rec, ok = r.Get("live")
	require.True(t, ok)
	assert.Equal(t, StatusRunning, rec.Status)

	// Second pass finds nothing new.
	assert.Equal(t, 0, r.CleanupOrphans())
}

func TestCleanupOrphansSkipsExcludedIDs(t *testing.T) {
	r := newTestRegistry(t, func(int) bool { return false })
	require.NoError(t, r.Register(running("watched", 100)))
	require.NoError(t, r.Register(running("stray", 101)))

	// "watched" stands in for a process whose exit watcher is still
	// attached; its pid fails the probe during the zombie window but the
	// watcher owns its finalization.
	n := r.CleanupOrphans("watched")
	assert.Equal(t, 1, n)

	rec, ok := r.Get("watched")
	require.True(t, ok)
	assert.Equal(t, StatusRunning, rec.Status)
	assert.Empty(t, rec.ExitSignal)

	rec, ok = r.Get("stray")
	require.True(t, ok)
	assert.Equal(t, StatusCrashed, rec.Status)
	assert.Equal(t, ExitSignalOrphaned, rec.ExitSignal)
}

func TestCleanupStaleSparesLiveRecords(t *testing.T) {
	r := New(Config{StaleAfter: 10 * time.Minute}, WithProbe(func(int) bool { return true }))
	require.NoError(t, r.Register(running("old-done", 100)))
	require.NoError(t, r.Register(running("old-live", 101)))
	r.RecordExit("old-done", 0, "")

	// Backdate both past the staleness cutoff.
	r.mu.Lock()
	for _, rec := range r.procs {
		rec.LastActive = time.Now().Add(-time.Hour)
	}
	r.mu.Unlock()

	removed := r.CleanupStale()
	assert.Equal(t, 1, removed)
	_, ok := r.Get("old-done")
	assert.False(t, ok)
	_, ok = r.Get("old-live")
	assert.True(t, ok, "non-terminal records are never removed for staleness")
}

func TestEvictionDropsOldestTerminalOnly(t *testing.T) {
	r := New(Config{MaxRecords: 10}, WithProbe(func(int) bool { return true }))
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("p%02d", i)
		require.NoError(t, r.Register(running(id, 100+i)))
		if i < 8 {
			r.RecordExit(id, 0, "")
		}
	}
	// Over the cap now; eviction targets 80% and only touches terminal rows.
	require.NoError(t, r.Register(running("p10", 200)))

	assert.Equal(t, 8, r.Len())
	_, ok := r.Get("p10")
	assert.True(t, ok)
	_, ok = r.Get("p08")
	assert.True(t, ok, "running records survive eviction")
	_, ok = r.Get("p00")
	assert.False(t, ok, "oldest terminal record evicted first")
}

func TestListFilterSortPaginate(t *testing.T) {
	r := newTestRegistry(t, nil)
	for i := 0; i < 5; i++ {
		rec := running(fmt.Sprintf("p%d", i), 100+i)
		if i%2 == 0 {
			rec.AgentType = "tester"
		}
		require.NoError(t, r.Register(rec))
		r.UpdateResources(rec.ProcessID, ResourceUsage{MemoryMB: float64(100 * i)})
	}

	testers := r.List(Query{AgentType: "tester"})
	assert.Len(t, testers, 3)

	byMem := r.List(Query{SortBy: "memory", Descending: true, Limit: 2})
	require.Len(t, byMem, 2)
	assert.Equal(t, "p4", byMem[0].ProcessID)
	assert.Equal(t, "p3", byMem[1].ProcessID)

	page := r.List(Query{SortBy: "memory", Offset: 4})
	require.Len(t, page, 1)
	assert.Equal(t, "p4", page[0].ProcessID)

	assert.Empty(t, r.List(Query{Offset: 99}))
	assert.Empty(t, r.List(Query{Status: StatusCrashed}))
}

func TestListTimeAndResourceFilters(t *testing.T) {
	r := newTestRegistry(t, nil)
	for i := 0; i < 4; i++ {
		rec := running(fmt.Sprintf("p%d", i), 100+i)
		require.NoError(t, r.Register(rec))
		r.UpdateResources(rec.ProcessID, ResourceUsage{
			MemoryMB:   float64(100 * i),
			CPUPercent: float64(10 * i),
		})
	}
	r.mu.Lock()
	r.procs["p0"].StartTime = time.Now().Add(-2 * time.Hour)
	r.procs["p1"].StartTime = time.Now().Add(-time.Hour)
	r.mu.Unlock()

	cutoff := time.Now().Add(-30 * time.Minute)
	assert.Len(t, r.List(Query{StartedBefore: cutoff}), 2)
	assert.Len(t, r.List(Query{StartedAfter: cutoff}), 2)
	assert.Len(t, r.List(Query{ActiveAfter: time.Now().Add(-time.Minute)}), 4)

	assert.Len(t, r.List(Query{MinMemoryMB: 200}), 2)

	busy := r.List(Query{MinCPUPercent: 30})
	require.Len(t, busy, 1)
	assert.Equal(t, "p3", busy[0].ProcessID)

	// Filters compose.
	assert.Len(t, r.List(Query{StartedAfter: cutoff, MinMemoryMB: 300}), 1)
}

func TestSnapshotRoundTripRevalidatesPIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	r := New(Config{SnapshotPath: path}, WithProbe(func(int) bool { return true }))
	require.NoError(t, r.Open())
	require.NoError(t, r.Register(running("alive", 100)))
	require.NoError(t, r.Register(running("dead", 101)))
	r.Close()

	// Reload with a probe that only sees pid 100 alive.
	r2 := New(Config{SnapshotPath: path}, WithProbe(func(pid int) bool { return pid == 100 }))
	require.NoError(t, r2.Open())
	defer r2.Close()

	assert.Equal(t, 2, r2.Len())
	id, ok := r2.LookupPID(100)
	require.True(t, ok)
	assert.Equal(t, "alive", id)

	_, ok = r2.LookupPID(101)
	assert.False(t, ok, "dead pids stay unmapped until orphan cleanup")
	rec, ok := r2.Get("dead")
	require.True(t, ok)
	assert.Equal(t, StatusRunning, rec.Status)
}

func TestLoadToleratesCorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	r := New(Config{SnapshotPath: path})
	require.NoError(t, r.Open())
	defer r.Close()
	assert.Equal(t, 0, r.Len())
}

func TestGetReturnsCopy(t *testing.T) {
	r := newTestRegistry(t, nil)
	rec := running("p1", 100)
	rec.Tags = []string{"a"}
	require.NoError(t, r.Register(rec))

	got, ok := r.Get("p1")
	require.True(t, ok)
	got.Tags[0] = "mutated"
	got.Usage.MemoryMB = 999

	again, _ := r.Get("p1")
	assert.Equal(t, "a", again.Tags[0])
	assert.Zero(t, again.Usage.MemoryMB)
}
