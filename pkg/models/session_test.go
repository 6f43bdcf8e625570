package models

import (
	"errors"
	"testing"
	"time"
)

func TestSession_Transitions(t *testing.T) {
	now := time.Now()

	s := NewSession("s1", "k1", "u1", SessionTypeTraining, now)
	if !s.IsActive() {
		t.Fatal("new session should be active")
	}
	if err := s.Complete(now); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if s.Status != SessionStatusCompleted {
		t.Errorf("Status = %q, want %q", s.Status, SessionStatusCompleted)
	}

	if err := s.Abandon(now); !errors.Is(err, ErrSessionTerminal) {
		t.Errorf("Abandon() on completed session error = %v, want ErrSessionTerminal", err)
	}
	if err := s.Reactivate(); !errors.Is(err, ErrSessionTerminal) {
		t.Errorf("Reactivate() error = %v, want ErrSessionTerminal", err)
	}
	if s.Status != SessionStatusCompleted {
		t.Errorf("Status changed to %q after rejected transitions", s.Status)
	}

	a := NewSession("s2", "k1", "u1", SessionTypeKata, now)
	if err := a.Abandon(now); err != nil {
		t.Fatalf("Abandon() error = %v", err)
	}
	if err := a.Complete(now); !errors.Is(err, ErrSessionTerminal) {
		t.Errorf("Complete() on abandoned session error = %v, want ErrSessionTerminal", err)
	}
	if err := a.Reactivate(); !errors.Is(err, ErrSessionTerminal) {
		t.Errorf("Reactivate() error = %v, want ErrSessionTerminal", err)
	}
}

func TestSessionType_Valid(t *testing.T) {
	for _, st := range []SessionType{SessionTypeTraining, SessionTypeAssessment, SessionTypeOnboarding, SessionTypeKata} {
		if !st.Valid() {
			t.Errorf("%q should be valid", st)
		}
	}
	if SessionType("sparring").Valid() {
		t.Error("unknown session type should be invalid")
	}
}

func TestSession_Clone(t *testing.T) {
	now := time.Now()
	passed := true
	s := NewSession("s1", "k1", "u1", SessionTypeAssessment, now)
	s.AppendMessage(RoleUser, "hi", now)
	s.Problem = &Problem{Prompt: "reverse a list", ConceptsTargeted: []string{"slices"}}
	s.Evaluation = &Evaluation{Passed: &passed}

	c := s.Clone()
	c.Messages[0].Content = "changed"
	c.Problem.ConceptsTargeted[0] = "maps"
	*c.Evaluation.Passed = false

	if s.Messages[0].Content != "hi" {
		t.Errorf("original message mutated: %q", s.Messages[0].Content)
	}
	if s.Problem.ConceptsTargeted[0] != "slices" {
		t.Errorf("original problem mutated: %v", s.Problem.ConceptsTargeted)
	}
	if !*s.Evaluation.Passed {
		t.Error("original evaluation mutated")
	}
}
