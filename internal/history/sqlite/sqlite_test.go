package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenproc/warden/internal/history"
)

func TestSinkRoundTrip(t *testing.T) {
	s, err := New(":memory:")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	code := 1
	err = s.Send(context.Background(), history.Event{
		Type:       "exited",
		OccurredAt: time.Now(),
		ProcessID:  "p1",
		TaskID:     "t1",
		AgentType:  "coder",
		PID:        123,
		ExitCode:   &code,
		ExitSignal: "SIGTERM",
	})
	require.NoError(t, err)

	var n int
	row := s.db.QueryRow(`SELECT COUNT(*) FROM process_history WHERE process_id = ? AND exit_code = 1`, "p1")
	require.NoError(t, row.Scan(&n))
	assert.Equal(t, 1, n)
}

func TestNewRejectsEmptyDSN(t *testing.T) {
	_, err := New("  ")
	assert.Error(t, err)
}

func TestNewStripsSchemePrefix(t *testing.T) {
	s, err := New("sqlite://:memory:")
	require.NoError(t, err)
	_ = s.Close()
}
