package messagebus

import (
	"context"

	"github.com/DannyMichaels/code-dojo-app/pkg/messages"
)

// EventPublisher abstracts event publishing for testability.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *messages.EventMessage) error
}

// EventSubscriber abstracts event subscription for testability.
type EventSubscriber interface {
	SubscribeEvents(eventType string, handler func(*messages.EventMessage)) error
}

// Noop discards every event.
type Noop struct{}

// PublishEvent implements EventPublisher.
func (Noop) PublishEvent(context.Context, *messages.EventMessage) error { return nil }

// Verify implementations at compile time.
var (
	_ EventPublisher  = (*NatsMessageBus)(nil)
	_ EventSubscriber = (*NatsMessageBus)(nil)
	_ EventPublisher  = (*MemoryBus)(nil)
	_ EventSubscriber = (*MemoryBus)(nil)
	_ EventPublisher  = Noop{}
)
