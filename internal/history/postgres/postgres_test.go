package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/wardenproc/warden/internal/history"
)

func TestNewRejectsEmptyDSN(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

func TestSinkAgainstPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()
	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("warden"),
		tcpostgres.WithUsername("warden"),
		tcpostgres.WithPassword("warden"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	defer func() { _ = ctr.Terminate(ctx) }()

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := New(dsn)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	code := 0
	require.NoError(t, s.Send(ctx, history.Event{
		Type:       "stopped",
		OccurredAt: time.Now(),
		ProcessID:  "p1",
		TaskID:     "t1",
		AgentType:  "reviewer",
		PID:        55,
		ExitCode:   &code,
	}))

	var n int
	row := s.db.QueryRow(`SELECT COUNT(*) FROM process_history WHERE process_id = 'p1'`)
	require.NoError(t, row.Scan(&n))
	assert.Equal(t, 1, n)
}
