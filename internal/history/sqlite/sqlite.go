// Package sqlite implements a history sink backed by an embedded SQLite
// database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/wardenproc/warden/internal/history"
)

// Sink appends lifecycle events to a local SQLite file.
type Sink struct {
	db *sql.DB
}

// New opens (or creates) the database at dsn. Accepted forms:
//   - "sqlite:///path/to/file.db"
//   - "/path/to/file.db"
//   - ":memory:"
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = strings.TrimPrefix(dsn, "sqlite://")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	s := &Sink{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS process_history(
			occurred_at TIMESTAMP NOT NULL,
			event TEXT NOT NULL,
			process_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			agent_type TEXT NOT NULL,
			pid INTEGER NOT NULL,
			exit_code INTEGER NULL,
			exit_signal TEXT NULL,
			detail TEXT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_process_history_process_id ON process_history(process_id);`,
		`CREATE INDEX IF NOT EXISTS idx_process_history_task_id ON process_history(task_id);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO process_history(occurred_at, event, process_id, task_id, agent_type, pid, exit_code, exit_signal, detail)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		e.OccurredAt.UTC(), e.Type, e.ProcessID, e.TaskID, e.AgentType, e.PID,
		nullableInt(e.ExitCode), nullableStr(e.ExitSignal), nullableStr(e.Detail))
	return err
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableStr(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
