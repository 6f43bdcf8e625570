package prompt

import (
	"testing"
	"time"

	"github.com/DannyMichaels/code-dojo-app/pkg/models"
)

func TestRecentProblems(t *testing.T) {
	mk := func(id string, status models.SessionStatus, prompt string) *models.Session {
		s := models.NewSession(id, "k", "u", models.SessionTypeKata, now)
		s.Status = status
		if prompt != "" {
			s.Problem = &models.Problem{Prompt: prompt, ConceptsTargeted: []string{"maps"}}
		}
		return s
	}
	done := mk("a", models.SessionStatusCompleted, "reverse a list")
	done.Evaluation = &models.Evaluation{Correctness: "correct"}

	sessions := []*models.Session{
		mk("b", models.SessionStatusActive, "two sum"),
		mk("c", models.SessionStatusAbandoned, "skipped"),
		mk("d", models.SessionStatusActive, ""),
		done,
	}

	got := RecentProblems(sessions, 0)
	if len(got) != 2 {
		t.Fatalf("RecentProblems() returned %d problems, want 2", len(got))
	}
	if got[0].Prompt != "two sum" || got[0].Correctness != "" {
		t.Errorf("first problem = %+v", got[0])
	}
	if got[1].Correctness != "correct" {
		t.Errorf("second problem correctness = %q, want correct", got[1].Correctness)
	}

	if n := len(RecentProblems(sessions, 1)); n != 1 {
		t.Errorf("limit 1 returned %d problems", n)
	}
}

func TestRecentProblems_DateFromSession(t *testing.T) {
	s := models.NewSession("s", "k", "u", models.SessionTypeKata, now.Add(-48*time.Hour))
	s.Problem = &models.Problem{Prompt: "fizzbuzz"}

	got := RecentProblems([]*models.Session{s}, 5)
	if len(got) != 1 || !got[0].Date.Equal(s.CreatedAt) {
		t.Errorf("RecentProblems() = %+v", got)
	}
}
