package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const snapshotVersion = 1

type snapshotFile struct {
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Processes []Record  `json:"processes"`
}

// snapshot writes the full record set as versioned JSON, via a temp file
// and rename so a crash mid-write never corrupts the previous snapshot.
func (r *Registry) snapshot() error {
	if r.cfg.SnapshotPath == "" {
		return nil
	}
	r.mu.RLock()
	sf := snapshotFile{
		Version:   snapshotVersion,
		Timestamp: time.Now(),
		Processes: make([]Record, 0, len(r.procs)),
	}
	for _, rec := range r.procs {
		sf.Processes = append(sf.Processes, rec.clone())
	}
	r.mu.RUnlock()

	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	dir := filepath.Dir(r.cfg.SnapshotPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("snapshot dir: %w", err)
	}
	tmp := r.cfg.SnapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, r.cfg.SnapshotPath); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// load restores records from the snapshot file. Records that were running
// when the snapshot was taken are probed: live pids are re-indexed, dead
// ones keep their stale running status for the next orphan cleanup pass to
// reclassify. A missing file is not an error; an unreadable or wrong-version
// file is logged and skipped so a bad snapshot never blocks startup.
func (r *Registry) load() error {
	if r.cfg.SnapshotPath == "" {
		return nil
	}
	data, err := os.ReadFile(r.cfg.SnapshotPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		r.log.Warn("snapshot unreadable, starting empty", "path", r.cfg.SnapshotPath, "error", err)
		return nil
	}
	var sf snapshotFile
	if err := json.Unmarshal(data, &sf); err != nil {
		r.log.Warn("snapshot corrupt, starting empty", "path", r.cfg.SnapshotPath, "error", err)
		return nil
	}
	if sf.Version != snapshotVersion {
		r.log.Warn("snapshot version mismatch, starting empty", "found", sf.Version, "want", snapshotVersion)
		return nil
	}

	relinked := 0
	r.mu.Lock()
	for i := range sf.Processes {
		rec := sf.Processes[i].clone()
		r.procs[rec.ProcessID] = &rec
		if rec.Status == StatusRunning && rec.PID > 0 && r.alive(rec.PID) {
			r.pidIndex[rec.PID] = rec.ProcessID
			relinked++
		}
	}
	total := len(r.procs)
	r.mu.Unlock()
	if total > 0 {
		r.log.Info("snapshot restored", "records", total, "relinked", relinked)
	}
	return nil
}
