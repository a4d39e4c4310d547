// Package eventbus implements an in-process event bus: a map from
// event-type to an ordered list of handlers. Publish fans out
// synchronously, in registration order; handler failures are logged and
// swallowed so they never unwind the Unit-of-Work's commit.
package eventbus

import (
	"sync"

	"github.com/hostfactory/aws-provider/pkg/domain/events"
	"github.com/hostfactory/aws-provider/pkg/infrastructure/logging"
)

// Handler processes one event. Handlers must not block indefinitely —
// they run synchronously on the publisher's goroutine.
type Handler func(events.Event) error

// Bus is the event bus. The zero value is not usable; construct with New.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   logging.Port
}

func New(logger logging.Port) *Bus {
	if logger == nil {
		logger = logging.NoOpLogger()
	}
	return &Bus{handlers: make(map[string][]Handler), logger: logger}
}

// Subscribe registers a handler for eventType, appended after any
// existing handlers for that type (order is preserved: handlers see
// events in emission order, each event delivered exactly once).
func (b *Bus) Subscribe(eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], h)
}

// Publish fans an event out to every handler registered for its type.
// A handler's error is logged and otherwise ignored.
func (b *Bus) Publish(e events.Event) {
	b.mu.RLock()
	hs := append([]Handler(nil), b.handlers[e.EventType()]...)
	b.mu.RUnlock()
	for _, h := range hs {
		if err := h(e); err != nil {
			b.logger.Error("event handler failed", "event_type", e.EventType(), "event_id", e.EventID(), "error", err)
		}
	}
}

// PublishAll publishes events in slice order, preserving the aggregate's
// emission sequence across the whole batch.
func (b *Bus) PublishAll(es []events.Event) {
	for _, e := range es {
		b.Publish(e)
	}
}
