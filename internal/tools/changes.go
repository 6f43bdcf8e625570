package tools

import (
	"errors"
	"fmt"
	"time"

	"github.com/DannyMichaels/code-dojo-app/pkg/models"
)

// ErrBeltChanged is returned when replaying a belt change onto a skill whose
// belt moved after the turn loaded it.
var ErrBeltChanged = errors.New("belt changed since the turn started")

// SkillChange is one tool effect on the skill record. It is applied to the
// turn's copy when the tool runs and replayed onto a freshly loaded record
// when the turn is saved. Entry is the belt history record the change
// produces, if any.
type SkillChange struct {
	Tool  string
	Apply func(skill *models.SkillProgress) error
	Entry *models.BeltHistoryEntry
}

// apply runs c against the turn's skill and records it for replay.
func (st *State) apply(c SkillChange) error {
	if err := c.Apply(st.Skill); err != nil {
		return err
	}
	st.Changes = append(st.Changes, c)
	st.SkillDirty = true
	if c.Entry != nil {
		st.History = append(st.History, c.Entry)
	}
	return nil
}

// Replay applies changes to skill in order. It returns the history entries
// of the changes that applied and one error per change that no longer fits.
func Replay(skill *models.SkillProgress, changes []SkillChange) ([]*models.BeltHistoryEntry, []error) {
	var (
		entries []*models.BeltHistoryEntry
		errs    []error
	)
	for _, c := range changes {
		if err := c.Apply(skill); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Tool, err))
			continue
		}
		if c.Entry != nil {
			entries = append(entries, c.Entry)
		}
	}
	return entries, errs
}

// beltChange moves the skill along entry, but only from the belt the entry
// started at.
func beltChange(tool string, entry *models.BeltHistoryEntry) SkillChange {
	return SkillChange{
		Tool:  tool,
		Entry: entry,
		Apply: func(s *models.SkillProgress) error {
			if entry.FromBelt != nil && s.CurrentBelt != *entry.FromBelt {
				return fmt.Errorf("%w: now %s, expected %s", ErrBeltChanged, s.CurrentBelt, *entry.FromBelt)
			}
			s.CurrentBelt = entry.ToBelt
			s.UpdatedAt = entry.AchievedAt
			return nil
		},
	}
}

func fieldChange(tool string, now time.Time, set func(s *models.SkillProgress)) SkillChange {
	return SkillChange{
		Tool: tool,
		Apply: func(s *models.SkillProgress) error {
			set(s)
			s.UpdatedAt = now
			return nil
		},
	}
}
