// Package history exports process lifecycle events to external analytics
// systems. Sinks are append-only and never consulted for supervision
// decisions.
package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wardenproc/warden/internal/events"
)

// Event is one exported lifecycle entry.
type Event struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	ProcessID  string    `json:"process_id"`
	TaskID     string    `json:"task_id"`
	AgentType  string    `json:"agent_type"`
	PID        int       `json:"pid"`
	ExitCode   *int      `json:"exit_code,omitempty"`
	ExitSignal string    `json:"exit_signal,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink is a destination for history events. Implementations must be safe
// for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// FromProcessEvent converts a bus event into an exportable entry.
func FromProcessEvent(e events.ProcessEvent) Event {
	return Event{
		Type:       string(e.Type),
		OccurredAt: e.Time,
		ProcessID:  e.ProcessID,
		TaskID:     e.TaskID,
		AgentType:  e.AgentType,
		PID:        e.PID,
		ExitCode:   e.ExitCode,
		ExitSignal: e.ExitSignal,
		Detail:     e.Reason,
	}
}

// Recorder subscribes to the event bus and forwards lifecycle events to a
// sink on a background worker. Export failures are logged and dropped; the
// bus dispatch path never blocks on a slow sink.
type Recorder struct {
	sink    Sink
	ch      chan Event
	done    chan struct{}
	timeout time.Duration
	log     *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewRecorder wires sink to bus and starts the export worker.
func NewRecorder(bus *events.Bus, sink Sink) *Recorder {
	r := &Recorder{
		sink:    sink,
		ch:      make(chan Event, 256),
		done:    make(chan struct{}),
		timeout: 5 * time.Second,
		log:     slog.Default().With("component", "history"),
	}
	// The bus subscription cannot be removed, so the closed flag keeps a
	// late publish from hitting the closed channel.
	bus.SubscribeProcess(func(e events.ProcessEvent) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			return
		}
		select {
		case r.ch <- FromProcessEvent(e):
		default:
			r.log.Warn("history buffer full, event dropped", "process_id", e.ProcessID, "type", e.Type)
		}
	})
	go r.run()
	return r
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.ch {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := r.sink.Send(ctx, e); err != nil {
			r.log.Warn("history export failed", "process_id", e.ProcessID, "type", e.Type, "error", err)
		}
		cancel()
	}
}

// Close drains buffered events and stops the worker. Events published
// after Close are discarded. Repeat calls are no-ops.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()
	close(r.ch)
	<-r.done
}
