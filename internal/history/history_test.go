package history

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenproc/warden/internal/events"
)

type memSink struct {
	mu     sync.Mutex
	events []Event
}

func (m *memSink) Send(_ context.Context, e Event) error {
	m.mu.Lock()
	m.events = append(m.events, e)
	m.mu.Unlock()
	return nil
}

func (m *memSink) all() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

func TestRecorderForwardsBusEvents(t *testing.T) {
	bus := events.NewBus()
	sink := &memSink{}
	rec := NewRecorder(bus, sink)

	code := 0
	bus.PublishProcess(events.ProcessEvent{
		Type:      events.ProcessStarted,
		ProcessID: "p1",
		TaskID:    "t1",
		AgentType: "coder",
		PID:       100,
		Time:      time.Now(),
	})
	bus.PublishProcess(events.ProcessEvent{
		Type:      events.ProcessExited,
		ProcessID: "p1",
		TaskID:    "t1",
		AgentType: "coder",
		PID:       100,
		ExitCode:  &code,
		Time:      time.Now(),
	})
	rec.Close()

	got := sink.all()
	require.Len(t, got, 2)
	assert.Equal(t, "started", got[0].Type)
	assert.Equal(t, "exited", got[1].Type)
	require.NotNil(t, got[1].ExitCode)
	assert.Equal(t, 0, *got[1].ExitCode)
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	bus := events.NewBus()
	sink := &memSink{}
	rec := NewRecorder(bus, sink)

	bus.PublishProcess(events.ProcessEvent{Type: events.ProcessStarted, ProcessID: "p1", Time: time.Now()})
	rec.Close()
	rec.Close() // repeat close is a no-op

	// The bus subscription outlives the recorder; late publishes must be
	// discarded, not panic on the closed channel.
	bus.PublishProcess(events.ProcessEvent{Type: events.ProcessExited, ProcessID: "p1", Time: time.Now()})

	got := sink.all()
	require.Len(t, got, 1)
	assert.Equal(t, "started", got[0].Type)
}

func TestFromProcessEventMapsFields(t *testing.T) {
	now := time.Now()
	e := FromProcessEvent(events.ProcessEvent{
		Type:       events.ProcessError,
		ProcessID:  "p1",
		TaskID:     "t1",
		AgentType:  "tester",
		PID:        42,
		Reason:     "spawn failed",
		ExitSignal: "SIGKILL",
		Time:       now,
	})
	assert.Equal(t, "error", e.Type)
	assert.Equal(t, now, e.OccurredAt)
	assert.Equal(t, "spawn failed", e.Detail)
	assert.Equal(t, "SIGKILL", e.ExitSignal)
}
