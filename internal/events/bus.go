package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handler receives emitted events. Handlers run synchronously on the
// emitter's goroutine and must not block; anything slow belongs on the
// handler's own queue.
type Handler func(Event)

// subscription wraps a handler so it can be removed by identity.
type subscription struct {
	handler Handler
}

// Bus is the in-process publish/subscribe fabric. Subscriptions are
// expected during wiring; emission happens from any goroutine.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	all      []*subscription
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeAll registers a handler for every event type. The returned
// function removes the subscription; long-lived wiring may discard it,
// per-connection consumers (the ops event stream) must call it.
func (b *Bus) SubscribeAll(handler Handler) func() {
	sub := &subscription{handler: handler}

	b.mu.Lock()
	b.all = append(b.all, sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.all {
			if s == sub {
				b.all = append(b.all[:i], b.all[i+1:]...)
				return
			}
		}
	}
}

// Emit dispatches the event to all matching handlers in registration
// order. The handler slices are copied under the lock so a handler may
// subscribe without deadlocking.
func (b *Bus) Emit(event Event) {
	b.mu.RLock()
	typed := make([]Handler, len(b.handlers[event.Type]))
	copy(typed, b.handlers[event.Type])
	all := make([]*subscription, len(b.all))
	copy(all, b.all)
	b.mu.RUnlock()

	for _, h := range typed {
		h(event)
	}
	for _, s := range all {
		s.handler(event)
	}
}

// Manager handles event emission and logging
type Manager struct {
	bus *Bus
	log zerolog.Logger
}

// NewManager creates a new event manager
func NewManager(bus *Bus, log zerolog.Logger) *Manager {
	return &Manager{
		bus: bus,
		log: log.With().Str("service", "events").Logger(),
	}
}

// Bus returns the underlying bus for subscription wiring.
func (m *Manager) Bus() *Bus {
	return m.bus
}

// Emit publishes an event with typed data to the bus and logs it
func (m *Manager) Emit(module string, data EventData) {
	event := Event{
		Type:      data.EventType(),
		Timestamp: time.Now().UTC(),
		Module:    module,
		Data:      data,
	}

	m.bus.Emit(event)

	eventJSON, _ := json.Marshal(&event)
	m.log.Info().
		Str("event_type", string(event.Type)).
		Str("module", module).
		RawJSON("event", eventJSON).
		Msg("Event emitted")
}

// EmitError publishes an error event
func (m *Manager) EmitError(module string, err error, context map[string]interface{}) {
	m.Emit(module, &ErrorEventData{
		Error:   err.Error(),
		Context: context,
	})
}
