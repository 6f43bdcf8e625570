package orchestrator

import "github.com/DannyMichaels/code-dojo-app/internal/provider"

// EventType discriminates events streamed to the caller.
type EventType string

const (
	EventText    EventType = "text"
	EventToolUse EventType = "tool_use"
	EventWarning EventType = "warning"
	EventDone    EventType = "done"
	EventError   EventType = "error"
)

// Reason says why a turn stopped.
type Reason string

const (
	// ReasonFinal means the last round made no tool calls.
	ReasonFinal Reason = "final"
	// ReasonSessionCompleted means complete_session ended the session.
	ReasonSessionCompleted Reason = "session_completed"
	// ReasonMaxRounds means the round cap cut the turn short.
	ReasonMaxRounds Reason = "max_rounds"
)

// Event is one item of a turn's output stream. A stream ends with exactly
// one done or error event.
type Event struct {
	Type  EventType `json:"type"`
	Round int       `json:"round,omitempty"`

	// text and warning
	Content string `json:"content,omitempty"`

	// tool_use
	Tool      string         `json:"tool,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	Output    map[string]any `json:"output,omitempty"`
	ToolError string         `json:"tool_error,omitempty"`

	// done
	Reason        Reason          `json:"reason,omitempty"`
	Rounds        int             `json:"rounds,omitempty"`
	SessionStatus string          `json:"session_status,omitempty"`
	Usage         *provider.Usage `json:"usage,omitempty"`

	// error
	Error string `json:"error,omitempty"`
}

// Terminal reports whether e ends the stream.
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}
