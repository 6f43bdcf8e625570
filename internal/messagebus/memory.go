package messagebus

import (
	"context"
	"sync"

	"github.com/DannyMichaels/code-dojo-app/pkg/messages"
)

// MemoryBus delivers events synchronously to in-process subscribers and
// keeps a copy of everything published.
type MemoryBus struct {
	mu       sync.Mutex
	handlers map[string][]func(*messages.EventMessage)
	events   []*messages.EventMessage
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[string][]func(*messages.EventMessage))}
}

// PublishEvent records event and hands it to every subscriber of its type.
func (b *MemoryBus) PublishEvent(_ context.Context, event *messages.EventMessage) error {
	b.mu.Lock()
	b.events = append(b.events, event)
	handlers := append([]func(*messages.EventMessage){}, b.handlers[event.Type]...)
	b.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
	return nil
}

// SubscribeEvents registers handler for eventType.
func (b *MemoryBus) SubscribeEvents(eventType string, handler func(*messages.EventMessage)) error {
	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.mu.Unlock()
	return nil
}

// Events returns every published event of the given type, or all events
// when eventType is empty.
func (b *MemoryBus) Events(eventType string) []*messages.EventMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*messages.EventMessage, 0, len(b.events))
	for _, e := range b.events {
		if eventType == "" || e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
