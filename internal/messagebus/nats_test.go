package messagebus

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/DannyMichaels/code-dojo-app/pkg/messages"
)

func TestEventSubject(t *testing.T) {
	if got, want := EventSubject(messages.TypeBeltPromoted), "dojo.events.belt.promoted"; got != want {
		t.Errorf("EventSubject() = %q, want %q", got, want)
	}
}

func TestConsumerName(t *testing.T) {
	tests := []struct {
		eventType, want string
	}{
		{"turn.completed", "events-turn-completed"},
		{"belt.promoted", "events-belt-promoted"},
		{"*", "events--"},
		{"", "events-"},
	}

	for _, tc := range tests {
		if got := consumerName(tc.eventType); got != tc.want {
			t.Errorf("consumerName(%q) = %q, want %q", tc.eventType, got, tc.want)
		}
	}
}

func TestNewNatsMessageBus_BadURL(t *testing.T) {
	_, err := NewNatsMessageBus(Config{
		URL:     "nats://nonexistent-host:99999",
		Timeout: 500 * time.Millisecond,
	}, nil)
	if err == nil {
		t.Error("expected error connecting to nonexistent NATS")
	}
}

func TestNatsMessageBus_RoundTrip(t *testing.T) {
	url := os.Getenv("DOJO_TEST_NATS_URL")
	if url == "" {
		t.Skip("DOJO_TEST_NATS_URL not set")
	}
	mb, err := NewNatsMessageBus(Config{URL: url, StreamName: "DOJO_TEST", ConsumerPrefix: "test"}, nil)
	if err != nil {
		t.Fatalf("NewNatsMessageBus: %v", err)
	}
	defer mb.Close()

	got := make(chan *messages.EventMessage, 1)
	if err := mb.SubscribeEvents(messages.TypeSessionCompleted, func(e *messages.EventMessage) {
		select {
		case got <- e:
		default:
		}
	}); err != nil {
		t.Fatalf("SubscribeEvents: %v", err)
	}

	want := messages.SessionCompleted("u", "k", "s-rt", "test", "kata")
	if err := mb.PublishEvent(context.Background(), want); err != nil {
		t.Fatalf("PublishEvent: %v", err)
	}

	select {
	case e := <-got:
		if e.Type != messages.TypeSessionCompleted {
			t.Errorf("got type %q", e.Type)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("event not delivered")
	}
	if err := mb.Health(); err != nil {
		t.Errorf("Health() = %v", err)
	}
}

func TestMemoryBus(t *testing.T) {
	bus := NewMemoryBus()
	var delivered int
	_ = bus.SubscribeEvents(messages.TypeTurnCompleted, func(*messages.EventMessage) { delivered++ })

	ctx := context.Background()
	_ = bus.PublishEvent(ctx, messages.TurnCompleted("u", "k", "s", "test", "final", 1))
	_ = bus.PublishEvent(ctx, messages.BeltPromoted("u", "k", "s", "test", "white", "yellow"))

	if delivered != 1 {
		t.Errorf("delivered = %d, want 1", delivered)
	}
	if n := len(bus.Events("")); n != 2 {
		t.Errorf("Events(\"\") = %d, want 2", n)
	}
	if n := len(bus.Events(messages.TypeBeltPromoted)); n != 1 {
		t.Errorf("Events(belt.promoted) = %d, want 1", n)
	}
}

func TestNoop(t *testing.T) {
	if err := (Noop{}).PublishEvent(context.Background(), &messages.EventMessage{}); err != nil {
		t.Errorf("Noop.PublishEvent() = %v", err)
	}
}
