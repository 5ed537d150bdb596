package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBusDispatchesPerCategory(t *testing.T) {
	b := NewBus()
	var procs []ProcessEvent
	var healths []HealthEvent
	b.SubscribeProcess(func(e ProcessEvent) { procs = append(procs, e) })
	b.SubscribeProcess(func(e ProcessEvent) { procs = append(procs, e) })
	b.SubscribeHealth(func(e HealthEvent) { healths = append(healths, e) })

	b.PublishProcess(ProcessEvent{Type: ProcessStarted, ProcessID: "p1", Time: time.Now()})
	b.PublishHealth(HealthEvent{ProcessID: "p1", Score: 55})
	b.PublishResource(ResourceEvent{Type: "memory"}) // no subscribers, dropped

	assert.Len(t, procs, 2, "every subscriber sees the event")
	assert.Len(t, healths, 1)
}

func TestNilBusDropsPublishes(t *testing.T) {
	var b *Bus
	b.PublishProcess(ProcessEvent{Type: ProcessStarted})
	b.PublishHealth(HealthEvent{})
	b.PublishResource(ResourceEvent{})
	b.PublishRegistry(RegistryEvent{})
	b.PublishSupervisor(SupervisorEvent{})
}
