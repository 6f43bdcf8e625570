package messages

import (
	"encoding/json"
	"testing"
)

func TestTurnCompleted(t *testing.T) {
	msg := TurnCompleted("user-1", "skill-1", "session-1", "orchestrator", "final", 2)

	if msg.Type != TypeTurnCompleted {
		t.Errorf("got type %q", msg.Type)
	}
	if msg.SessionID != "session-1" {
		t.Errorf("got session %q", msg.SessionID)
	}
	if msg.Event.Category != "turn" {
		t.Errorf("got category %q", msg.Event.Category)
	}
	if msg.Event.Data["rounds"] != 2 {
		t.Errorf("got rounds %v", msg.Event.Data["rounds"])
	}
	if msg.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestBeltPromoted_Enrollment(t *testing.T) {
	msg := BeltPromoted("user-1", "skill-1", "", "dojo", "", "white")

	if _, ok := msg.Event.Data["from_belt"]; ok {
		t.Error("enrollment event should not carry from_belt")
	}
	if msg.Event.Data["to_belt"] != "white" {
		t.Errorf("got to_belt %v", msg.Event.Data["to_belt"])
	}
}

func TestBeltPromoted_JSON(t *testing.T) {
	msg := BeltPromoted("user-1", "skill-1", "s-1", "orchestrator", "white", "yellow")

	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded["type"] != "belt.promoted" {
		t.Errorf("got type %v", decoded["type"])
	}
	if decoded["skill_id"] != "skill-1" {
		t.Errorf("got skill_id %v", decoded["skill_id"])
	}
}

func TestSessionCompleted(t *testing.T) {
	msg := SessionCompleted("u", "k", "s", "orchestrator", "assessment")
	if msg.Event.Data["session_type"] != "assessment" {
		t.Errorf("got session_type %v", msg.Event.Data["session_type"])
	}
}
