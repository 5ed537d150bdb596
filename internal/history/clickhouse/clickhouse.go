// Package clickhouse implements a history sink using the official
// ClickHouse native client.
package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/wardenproc/warden/internal/history"
)

// Sink appends lifecycle events to a ClickHouse table. The table is
// expected to exist; analytics pipelines own their own DDL.
type Sink struct {
	conn  driver.Conn
	table string
}

// New connects to addr (host:port, native protocol) and verifies the
// connection with a ping.
func New(addr, table string) (*Sink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: "default",
			Password: "",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}
	return &Sink{conn: conn, table: table}, nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	query := fmt.Sprintf(`INSERT INTO %s (event, occurred_at, process_id, task_id, agent_type, pid, exit_code, exit_signal, detail) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)

	exitCode := int32(0)
	if e.ExitCode != nil {
		exitCode = int32(*e.ExitCode)
	}
	if err := s.conn.Exec(ctx, query,
		e.Type, e.OccurredAt, e.ProcessID, e.TaskID, e.AgentType,
		int32(e.PID), exitCode, e.ExitSignal, e.Detail,
	); err != nil {
		return fmt.Errorf("insert event into clickhouse: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
