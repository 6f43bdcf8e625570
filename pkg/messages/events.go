package messages

import "time"

// Event types published on the bus.
const (
	TypeTurnCompleted    = "turn.completed"
	TypeSessionCompleted = "session.completed"
	TypeBeltPromoted     = "belt.promoted"
	TypeSkillEnrolled    = "skill.enrolled"
)

// EventMessage is a domain event sent via NATS
type EventMessage struct {
	Type          string                 `json:"type"`   // "turn.completed", "belt.promoted", etc.
	Source        string                 `json:"source"` // Service that generated the event
	UserID        string                 `json:"user_id,omitempty"`
	SkillID       string                 `json:"skill_id,omitempty"`
	SessionID     string                 `json:"session_id,omitempty"`
	Event         EventData              `json:"event"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// EventData contains the event-specific information
type EventData struct {
	Action      string                 `json:"action"`   // "completed", "promoted", "enrolled"
	Category    string                 `json:"category"` // "turn", "session", "belt", "skill"
	Description string                 `json:"description,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// TurnCompleted creates a turn.completed event
func TurnCompleted(userID, skillID, sessionID, source, reason string, rounds int) *EventMessage {
	return &EventMessage{
		Type:      TypeTurnCompleted,
		Source:    source,
		UserID:    userID,
		SkillID:   skillID,
		SessionID: sessionID,
		Event: EventData{
			Action:   "completed",
			Category: "turn",
			Data: map[string]interface{}{
				"reason": reason,
				"rounds": rounds,
			},
		},
		Timestamp: time.Now(),
	}
}

// SessionCompleted creates a session.completed event
func SessionCompleted(userID, skillID, sessionID, source, sessionType string) *EventMessage {
	return &EventMessage{
		Type:      TypeSessionCompleted,
		Source:    source,
		UserID:    userID,
		SkillID:   skillID,
		SessionID: sessionID,
		Event: EventData{
			Action:   "completed",
			Category: "session",
			Data:     map[string]interface{}{"session_type": sessionType},
		},
		Timestamp: time.Now(),
	}
}

// BeltPromoted creates a belt.promoted event. from is empty for the
// enrollment entry.
func BeltPromoted(userID, skillID, sessionID, source, from, to string) *EventMessage {
	data := map[string]interface{}{"to_belt": to}
	if from != "" {
		data["from_belt"] = from
	}
	return &EventMessage{
		Type:      TypeBeltPromoted,
		Source:    source,
		UserID:    userID,
		SkillID:   skillID,
		SessionID: sessionID,
		Event: EventData{
			Action:   "promoted",
			Category: "belt",
			Data:     data,
		},
		Timestamp: time.Now(),
	}
}

// SkillEnrolled creates a skill.enrolled event
func SkillEnrolled(userID, skillID, source, skillName string) *EventMessage {
	return &EventMessage{
		Type:    TypeSkillEnrolled,
		Source:  source,
		UserID:  userID,
		SkillID: skillID,
		Event: EventData{
			Action:      "enrolled",
			Category:    "skill",
			Description: skillName,
		},
		Timestamp: time.Now(),
	}
}
