package models

import (
	"errors"
	"fmt"
	"time"
)

// SessionType selects the coaching mode of a session.
type SessionType string

const (
	SessionTypeTraining   SessionType = "training"
	SessionTypeAssessment SessionType = "assessment"
	SessionTypeOnboarding SessionType = "onboarding"
	SessionTypeKata       SessionType = "kata"
)

// Valid reports whether t is a known session type.
func (t SessionType) Valid() bool {
	switch t {
	case SessionTypeTraining, SessionTypeAssessment, SessionTypeOnboarding, SessionTypeKata:
		return true
	}
	return false
}

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusAbandoned SessionStatus = "abandoned"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrSessionTerminal is returned for any transition out of completed or abandoned.
var ErrSessionTerminal = errors.New("session is not active")

// Message is one persisted conversational turn.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Problem is the exercise presented during a session.
type Problem struct {
	Prompt           string   `json:"prompt"`
	ConceptsTargeted []string `json:"concepts_targeted"`
	BeltLevel        Belt     `json:"belt_level,omitempty"`
	StarterCode      string   `json:"starter_code,omitempty"`
	Language         string   `json:"language,omitempty"`
}

// Solution is the learner's submitted answer.
type Solution struct {
	Submitted bool   `json:"submitted"`
	Passed    *bool  `json:"passed,omitempty"`
	Code      string `json:"code,omitempty"`
	Language  string `json:"language,omitempty"`
}

// Evaluation is the coach's verdict recorded when a session completes.
type Evaluation struct {
	Correctness string `json:"correctness,omitempty"`
	Quality     string `json:"quality,omitempty"`
	Passed      *bool  `json:"passed,omitempty"`
	Summary     string `json:"summary,omitempty"`
}

// SessionObservation is a note the coach attached to the session.
type SessionObservation struct {
	Type     string `json:"type"`
	Concept  string `json:"concept,omitempty"`
	Note     string `json:"note"`
	Severity string `json:"severity,omitempty"`
}

// Session is one bounded coaching interaction for a skill.
type Session struct {
	ID           string               `json:"id"`
	SkillID      string               `json:"skill_id"`
	UserID       string               `json:"user_id"`
	Type         SessionType          `json:"type"`
	Status       SessionStatus        `json:"status"`
	Messages     []Message            `json:"messages"`
	Problem      *Problem             `json:"problem,omitempty"`
	Solution     *Solution            `json:"solution,omitempty"`
	Evaluation   *Evaluation          `json:"evaluation,omitempty"`
	Observations []SessionObservation `json:"observations,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// NewSession creates an active session with no messages.
func NewSession(id, skillID, userID string, sessionType SessionType, now time.Time) *Session {
	return &Session{
		ID:        id,
		SkillID:   skillID,
		UserID:    userID,
		Type:      sessionType,
		Status:    SessionStatusActive,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsActive reports whether the session still accepts turns.
func (s *Session) IsActive() bool {
	return s.Status == SessionStatusActive
}

// AppendMessage adds a turn to the transcript.
func (s *Session) AppendMessage(role, content string, now time.Time) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content, Timestamp: now})
	s.UpdatedAt = now
}

// Complete moves an active session to completed.
func (s *Session) Complete(now time.Time) error {
	return s.transition(SessionStatusCompleted, now)
}

// Abandon moves an active session to abandoned.
func (s *Session) Abandon(now time.Time) error {
	return s.transition(SessionStatusAbandoned, now)
}

// Reactivate always fails for terminal sessions; active sessions are left as is.
func (s *Session) Reactivate() error {
	if s.IsActive() {
		return nil
	}
	return fmt.Errorf("reactivate %s session %s: %w", s.Status, s.ID, ErrSessionTerminal)
}

func (s *Session) transition(to SessionStatus, now time.Time) error {
	if !s.IsActive() {
		return fmt.Errorf("move %s session %s to %s: %w", s.Status, s.ID, to, ErrSessionTerminal)
	}
	s.Status = to
	s.UpdatedAt = now
	return nil
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Messages = append([]Message(nil), s.Messages...)
	if out.Messages == nil {
		out.Messages = []Message{}
	}
	if s.Problem != nil {
		p := *s.Problem
		p.ConceptsTargeted = append([]string(nil), s.Problem.ConceptsTargeted...)
		out.Problem = &p
	}
	if s.Solution != nil {
		sol := *s.Solution
		sol.Passed = clonePtr(s.Solution.Passed)
		out.Solution = &sol
	}
	if s.Evaluation != nil {
		ev := *s.Evaluation
		ev.Passed = clonePtr(s.Evaluation.Passed)
		out.Evaluation = &ev
	}
	out.Observations = append([]SessionObservation(nil), s.Observations...)
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
