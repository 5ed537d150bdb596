package monitor

import (
	"fmt"
	"time"

	"github.com/wardenproc/warden/internal/events"
	"github.com/wardenproc/warden/internal/metrics"
)

// Health status buckets over the composite score.
const (
	StatusHealthy  = "healthy"  // score >= 80
	StatusWarning  = "warning"  // score >= 60
	StatusCritical = "critical" // score >= 30
	StatusFailing  = "failing"  // below 30
)

// Trend directions over the recent sample window.
const (
	TrendImproving     = "improving"
	TrendStable        = "stable"
	TrendDeteriorating = "deteriorating"
)

// Usage fractions of a limit at which penalties apply. Crossing the
// critical fraction incurs both penalties.
const (
	warnFraction = 0.8
	critFraction = 0.9
)

// HealthReport is the ephemeral output of one assessment. Only the latest
// report per process is retained.
type HealthReport struct {
	ProcessID       string    `json:"process_id"`
	Score           float64   `json:"health_score"`
	Status          string    `json:"status"`
	Trend           string    `json:"trend"`
	Issues          []string  `json:"issues,omitempty"`
	Recommendations []string  `json:"recommendations,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// AssessHealth scores processID against its configured limits. Scoring
// starts at 100 and subtracts fixed per-category penalties once usage
// crosses the warning and critical fractions of each limit.
func (m *Monitor) AssessHealth(processID string) (HealthReport, error) {
	m.mu.RLock()
	s, ok := m.samples[processID]
	if !ok {
		m.mu.RUnlock()
		return HealthReport{}, fmt.Errorf("monitor: unknown process %q", processID)
	}
	agentType := s.agentType
	hasStats := s.hasStats
	latest := s.latest
	startedAt := s.startedAt
	responsiveness := s.responsiveness
	memRecent := s.memTrend.lastN(trendSpan)
	memPrev := previousN(s.memTrend, trendSpan)
	cpuRecent := s.cpuTrend.lastN(trendSpan)
	cpuPrev := previousN(s.cpuTrend, trendSpan)
	m.mu.RUnlock()

	lim := m.limits.For(agentType)
	score := 100.0
	var issues, recs []string

	if !hasStats {
		score -= 10
		issues = append(issues, "no metrics collected yet")
	} else {
		score -= penalize(frac(latest.MemoryMB, lim.MaxMemoryMB), 15, 30, "memory", latest.MemoryMB, lim.MaxMemoryMB, "MB", &issues, &recs)
		score -= penalize(frac(latest.CPUPercent, lim.MaxCPUPercent), 10, 20, "cpu", latest.CPUPercent, lim.MaxCPUPercent, "%", &issues, &recs)
		elapsed := time.Since(startedAt)
		score -= penalize(frac(elapsed.Minutes(), lim.MaxExecutionTime.Minutes()), 5, 10, "execution time", elapsed.Minutes(), lim.MaxExecutionTime.Minutes(), "min", &issues, &recs)
		score -= penalize(frac(float64(latest.NumFDs), float64(lim.MaxFileHandles)), 5, 10, "file handles", float64(latest.NumFDs), float64(lim.MaxFileHandles), "", &issues, &recs)
	}
	if responsiveness < 80 {
		score -= 10
		issues = append(issues, fmt.Sprintf("responsiveness degraded (%.0f)", responsiveness))
	}
	if responsiveness < 50 {
		score -= 20
		recs = append(recs, "process is not answering metric collection, consider restarting")
	}
	if score < 0 {
		score = 0
	}

	trend := combineTrends(
		trendOf(memRecent, memPrev),
		trendOf(cpuRecent, cpuPrev),
	)

	report := HealthReport{
		ProcessID:       processID,
		Score:           score,
		Status:          bucket(score),
		Trend:           trend,
		Issues:          issues,
		Recommendations: recs,
		Timestamp:       time.Now(),
	}

	m.mu.Lock()
	m.reports[processID] = report
	if report.Status != StatusHealthy {
		m.alerts[processID] = pruneTimes(append(m.alerts[processID], report.Timestamp), report.Timestamp.Add(-alertRateWindow))
	}
	m.mu.Unlock()

	metrics.SetHealthScore(processID, agentType, score)
	if report.Status != StatusHealthy {
		m.bus.PublishHealth(events.HealthEvent{
			ProcessID: processID,
			Score:     score,
			Status:    report.Status,
			Trend:     trend,
			Issues:    issues,
			Time:      report.Timestamp,
		})
	}
	return report, nil
}

// LatestReport returns the last assessment for processID, if any.
func (m *Monitor) LatestReport(processID string) (HealthReport, bool) {
	m.mu.RLock()
	rep, ok := m.reports[processID]
	m.mu.RUnlock()
	return rep, ok
}

func frac(val, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return val / limit
}

// penalize applies the warning penalty at the warning fraction and the
// critical penalty on top of it at the critical fraction.
func penalize(f, warnPenalty, critPenalty float64, what string, val, limit float64, unit string, issues, recs *[]string) float64 {
	if f < warnFraction {
		return 0
	}
	p := warnPenalty
	*issues = append(*issues, fmt.Sprintf("%s at %.0f%% of limit (%.1f/%.1f%s)", what, f*100, val, limit, unit))
	if f >= critFraction {
		p += critPenalty
		*recs = append(*recs, fmt.Sprintf("reduce %s usage or raise the limit", what))
	}
	return p
}

func bucket(score float64) string {
	switch {
	case score >= 80:
		return StatusHealthy
	case score >= 60:
		return StatusWarning
	case score >= 30:
		return StatusCritical
	default:
		return StatusFailing
	}
}

// previousN returns the n samples preceding the most recent n, oldest
// first, or nil when the buffer holds fewer than 2n values.
func previousN(r *ringBuffer, n int) []float64 {
	both := r.lastN(2 * n)
	if both == nil {
		return nil
	}
	return both[:n]
}

// trendOf compares the recent mean to the preceding mean. Rising usage is
// the unfavorable direction for every tracked metric.
func trendOf(recent, previous []float64) string {
	if recent == nil || previous == nil {
		return TrendStable
	}
	prev := mean(previous)
	if prev == 0 {
		return TrendStable
	}
	change := (mean(recent) - prev) / prev
	switch {
	case change > trendThreshold:
		return TrendDeteriorating
	case change < -trendThreshold:
		return TrendImproving
	default:
		return TrendStable
	}
}

func combineTrends(trends ...string) string {
	improving := false
	for _, t := range trends {
		switch t {
		case TrendDeteriorating:
			return TrendDeteriorating
		case TrendImproving:
			improving = true
		}
	}
	if improving {
		return TrendImproving
	}
	return TrendStable
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func pruneTimes(ts []time.Time, cutoff time.Time) []time.Time {
	out := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			out = append(out, t)
		}
	}
	return out
}
