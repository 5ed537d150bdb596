package events

import "sync"

// Bus fans events out to registered subscribers. Dispatch is synchronous;
// subscribers must not block. A nil *Bus is valid and drops everything,
// which keeps publishing call sites unconditional.
type Bus struct {
	mu         sync.RWMutex
	process    []func(ProcessEvent)
	health     []func(HealthEvent)
	resource   []func(ResourceEvent)
	registry   []func(RegistryEvent)
	supervisor []func(SupervisorEvent)
}

func NewBus() *Bus { return &Bus{} }

func (b *Bus) SubscribeProcess(fn func(ProcessEvent)) {
	b.mu.Lock()
	b.process = append(b.process, fn)
	b.mu.Unlock()
}

func (b *Bus) SubscribeHealth(fn func(HealthEvent)) {
	b.mu.Lock()
	b.health = append(b.health, fn)
	b.mu.Unlock()
}

func (b *Bus) SubscribeResource(fn func(ResourceEvent)) {
	b.mu.Lock()
	b.resource = append(b.resource, fn)
	b.mu.Unlock()
}

func (b *Bus) SubscribeRegistry(fn func(RegistryEvent)) {
	b.mu.Lock()
	b.registry = append(b.registry, fn)
	b.mu.Unlock()
}

func (b *Bus) SubscribeSupervisor(fn func(SupervisorEvent)) {
	b.mu.Lock()
	b.supervisor = append(b.supervisor, fn)
	b.mu.Unlock()
}

func (b *Bus) PublishProcess(e ProcessEvent) {
	if b == nil {
		return
	}
	b.mu.RLock()
	subs := b.process
	b.mu.RUnlock()
	for _, fn := range subs {
		fn(e)
	}
}

func (b *Bus) PublishHealth(e HealthEvent) {
	if b == nil {
		return
	}
	b.mu.RLock()
	subs := b.health
	b.mu.RUnlock()
	for _, fn := range subs {
		fn(e)
	}
}

func (b *Bus) PublishResource(e ResourceEvent) {
	if b == nil {
		return
	}
	b.mu.RLock()
	subs := b.resource
	b.mu.RUnlock()
	for _, fn := range subs {
		fn(e)
	}
}

func (b *Bus) PublishRegistry(e RegistryEvent) {
	if b == nil {
		return
	}
	b.mu.RLock()
	subs := b.registry
	b.mu.RUnlock()
	for _, fn := range subs {
		fn(e)
	}
}

func (b *Bus) PublishSupervisor(e SupervisorEvent) {
	if b == nil {
		return
	}
	b.mu.RLock()
	subs := b.supervisor
	b.mu.RUnlock()
	for _, fn := range subs {
		fn(e)
	}
}
