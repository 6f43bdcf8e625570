package prompt

import "github.com/DannyMichaels/code-dojo-app/pkg/models"

// DefaultPastProblemLimit caps how many earlier problems are listed.
const DefaultPastProblemLimit = 20

// RecentProblems picks problems from sessions, which must be ordered newest
// first. Sessions without a problem prompt and abandoned sessions are skipped.
func RecentProblems(sessions []*models.Session, limit int) []PastProblem {
	if limit <= 0 {
		limit = DefaultPastProblemLimit
	}
	out := make([]PastProblem, 0, limit)
	for _, s := range sessions {
		if len(out) == limit {
			break
		}
		if s == nil || s.Problem == nil || s.Problem.Prompt == "" {
			continue
		}
		if s.Status != models.SessionStatusCompleted && s.Status != models.SessionStatusActive {
			continue
		}
		p := PastProblem{
			Date:     s.CreatedAt,
			Concepts: append([]string(nil), s.Problem.ConceptsTargeted...),
			Prompt:   s.Problem.Prompt,
		}
		if s.Evaluation != nil {
			p.Correctness = s.Evaluation.Correctness
		}
		out = append(out, p)
	}
	return out
}
