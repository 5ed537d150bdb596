package registry

import (
	"slices"
	"sort"
	"strings"
	"time"
)

// Query filters, sorts and paginates the record set. Zero-value fields
// match everything.
type Query struct {
	Status    Status
	Health    Health
	AgentType string
	TaskID    string
	Priority  Priority
	Tags      []string // record must carry every listed tag

	StartedAfter  time.Time
	StartedBefore time.Time
	ActiveAfter   time.Time

	MinMemoryMB   float64 // last recorded usage at or above
	MinCPUPercent float64

	SortBy     string // start_time, last_active, memory, cpu, restart_count
	Descending bool
	Offset     int
	Limit      int // 0 means no limit
}

func (q Query) matches(rec *Record) bool {
	if q.Status != "" && rec.Status != q.Status {
		return false
	}
	if q.Health != "" && rec.Health != q.Health {
		return false
	}
	if q.AgentType != "" && rec.AgentType != q.AgentType {
		return false
	}
	if q.TaskID != "" && rec.TaskID != q.TaskID {
		return false
	}
	if q.Priority != "" && rec.Priority != q.Priority {
		return false
	}
	for _, tag := range q.Tags {
		if !slices.Contains(rec.Tags, tag) {
			return false
		}
	}
	if !q.StartedAfter.IsZero() && rec.StartTime.Before(q.StartedAfter) {
		return false
	}
	if !q.StartedBefore.IsZero() && !rec.StartTime.Before(q.StartedBefore) {
		return false
	}
	if !q.ActiveAfter.IsZero() && rec.LastActive.Before(q.ActiveAfter) {
		return false
	}
	if q.MinMemoryMB > 0 && rec.Usage.MemoryMB < q.MinMemoryMB {
		return false
	}
	if q.MinCPUPercent > 0 && rec.Usage.CPUPercent < q.MinCPUPercent {
		return false
	}
	return true
}

// List returns copies of all records matching q, ordered and paginated.
// The default order is start time ascending.
func (r *Registry) List(q Query) []Record {
	r.mu.RLock()
	out := make([]Record, 0, len(r.procs))
	for _, rec := range r.procs {
		if q.matches(rec) {
			out = append(out, rec.clone())
		}
	}
	r.mu.RUnlock()

	less := sortFunc(strings.ToLower(q.SortBy))
	sort.SliceStable(out, func(i, j int) bool {
		if q.Descending {
			return less(&out[j], &out[i])
		}
		return less(&out[i], &out[j])
	})

	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out
}

func sortFunc(key string) func(a, b *Record) bool {
	switch key {
	case "last_active":
		return func(a, b *Record) bool { return a.LastActive.Before(b.LastActive) }
	case "memory":
		return func(a, b *Record) bool { return a.Usage.MemoryMB < b.Usage.MemoryMB }
	case "cpu":
		return func(a, b *Record) bool { return a.Usage.CPUPercent < b.Usage.CPUPercent }
	case "restart_count":
		return func(a, b *Record) bool { return a.RestartCount < b.RestartCount }
	default:
		return func(a, b *Record) bool {
			if a.StartTime.Equal(b.StartTime) {
				return a.ProcessID < b.ProcessID
			}
			return a.StartTime.Before(b.StartTime)
		}
	}
}
