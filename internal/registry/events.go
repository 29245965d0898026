package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentforge/agentforge/pkg/logging"
)

// EventType identifies a registry lifecycle event
type EventType string

const (
	EventRegistered    EventType = "registered"
	EventUpdated       EventType = "updated"
	EventUnregistered  EventType = "unregistered"
	EventHealthChanged EventType = "health_changed"
	EventStartup       EventType = "startup"
	EventShutdown      EventType = "shutdown"
)

// Event is an immutable record of a registry state change. Payload carries an
// event-specific snapshot (the registered item, the replaced item on
// hot-swap, health transitions).
type Event struct {
	Type         EventType              `json:"type"`
	RegistryName string                 `json:"registry_name"`
	ItemName     string                 `json:"item_name,omitempty"`
	Payload      interface{}            `json:"payload,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// Listener receives registry events. Listeners must not block; delivery is
// synchronous on the emitting goroutine.
type Listener func(Event)

// EventBus fans registry events out to subscribed listeners. A panicking
// listener is logged and never disturbs the emitter or other listeners.
type EventBus struct {
	mu        sync.RWMutex
	listeners map[string]Listener
	logger    *logging.Logger
}

// NewEventBus creates an empty event bus
func NewEventBus() *EventBus {
	return &EventBus{
		listeners: make(map[string]Listener),
		logger:    logging.GetLogger(),
	}
}

// Subscribe registers a listener and returns its id for later removal
func (b *EventBus) Subscribe(listener Listener) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	b.listeners[id] = listener
	return id
}

// Unsubscribe removes the listener with the given id. Removing an unknown id
// is a no-op.
func (b *EventBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.listeners, id)
}

// ListenerCount returns the number of subscribed listeners
func (b *EventBus) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.listeners)
}

// Publish delivers the event to every listener. The listener snapshot is
// taken under the lock; delivery happens outside it so a listener may
// subscribe or unsubscribe reentrantly.
func (b *EventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	snapshot := make([]Listener, 0, len(b.listeners))
	for _, l := range b.listeners {
		snapshot = append(snapshot, l)
	}
	b.mu.RUnlock()

	for _, listener := range snapshot {
		b.deliver(listener, event)
	}
}

func (b *EventBus) deliver(listener Listener, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event listener panicked",
				"event_type", string(event.Type),
				"registry", event.RegistryName,
				"item_name", event.ItemName,
				"panic", r,
			)
		}
	}()

	listener(event)
}
