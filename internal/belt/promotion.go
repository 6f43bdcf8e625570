package belt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DannyMichaels/code-dojo-app/internal/mastery"
	"github.com/DannyMichaels/code-dojo-app/pkg/models"
)

var (
	// ErrTopRank is returned when promoting a learner who already holds the top belt.
	ErrTopRank = errors.New("already at the top rank")
	// ErrInvalidPlacement is returned for a placement to an unknown belt.
	ErrInvalidPlacement = errors.New("invalid belt placement")
	// ErrPlacementClosed is returned for a placement after the learner has
	// left the first belt.
	ErrPlacementClosed = errors.New("belt placement is only allowed before the first promotion")
)

// NotEligibleError carries the failed eligibility check behind a rejected promotion.
type NotEligibleError struct {
	Result Result
}

func (e *NotEligibleError) Error() string {
	if len(e.Result.Details.Missing) == 0 {
		return "not eligible for promotion"
	}
	return "not eligible for promotion: " + strings.Join(e.Result.Details.Missing, "; ")
}

// Promote moves skill exactly one rank up when CheckAdvancement allows it and
// returns the history entry to append. The skill is untouched on error.
func (c *Checker) Promote(skill *models.SkillProgress, sessionCount int, now time.Time, sessionID string) (*models.BeltHistoryEntry, Result, error) {
	result := c.CheckAdvancement(skill, sessionCount, now)
	if result.NextBelt == nil {
		if skill.CurrentBelt == models.TopBelt {
			return nil, result, ErrTopRank
		}
		return nil, result, &NotEligibleError{Result: result}
	}
	if !result.Eligible {
		return nil, result, &NotEligibleError{Result: result}
	}

	entry := newEntry(skill, *result.NextBelt, now, sessionID)
	skill.CurrentBelt = *result.NextBelt
	skill.UpdatedAt = now
	return entry, result, nil
}

// Promote applies the default checker.
func Promote(skill *models.SkillProgress, sessionCount int, now time.Time, sessionID string) (*models.BeltHistoryEntry, Result, error) {
	return NewChecker(mastery.DefaultParams()).Promote(skill, sessionCount, now, sessionID)
}

// Place sets the starting belt chosen during onboarding. It is only legal
// while the learner holds the first belt and history has nothing past the
// enrollment entry, so it can never demote. Placing onto the current belt is
// a no-op and returns a nil entry.
func Place(skill *models.SkillProgress, history []*models.BeltHistoryEntry, to models.Belt, now time.Time, sessionID string) (*models.BeltHistoryEntry, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPlacement, to)
	}
	if skill.CurrentBelt == to {
		return nil, nil
	}
	if skill.CurrentBelt != models.BeltOrder[0] {
		return nil, fmt.Errorf("%w: learner already holds %s", ErrPlacementClosed, skill.CurrentBelt)
	}
	for _, e := range history {
		if e.IsPromotion() {
			return nil, fmt.Errorf("%w: learner was moved to %s on %s", ErrPlacementClosed, e.ToBelt, e.AchievedAt.Format(time.DateOnly))
		}
	}
	entry := newEntry(skill, to, now, sessionID)
	skill.CurrentBelt = to
	skill.UpdatedAt = now
	return entry, nil
}

// EnrollmentEntry is the history record written when a learner first enrolls.
func EnrollmentEntry(skill *models.SkillProgress, now time.Time) *models.BeltHistoryEntry {
	return &models.BeltHistoryEntry{
		ID:         uuid.NewString(),
		SkillID:    skill.ID,
		UserID:     skill.UserID,
		FromBelt:   nil,
		ToBelt:     skill.CurrentBelt,
		AchievedAt: now,
	}
}

func newEntry(skill *models.SkillProgress, to models.Belt, now time.Time, sessionID string) *models.BeltHistoryEntry {
	from := skill.CurrentBelt
	entry := &models.BeltHistoryEntry{
		ID:         uuid.NewString(),
		SkillID:    skill.ID,
		UserID:     skill.UserID,
		FromBelt:   &from,
		ToBelt:     to,
		AchievedAt: now,
	}
	if sessionID != "" {
		entry.SessionID = &sessionID
	}
	return entry
}
