package belt

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DannyMichaels/code-dojo-app/internal/mastery"
	"github.com/DannyMichaels/code-dojo-app/pkg/models"
)

var now = time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)

func strongRecord() *models.ConceptRecord {
	seen := now
	return &models.ConceptRecord{
		ExposureCount: 10,
		SuccessCount:  9,
		Streak:        5,
		Contexts:      []string{"a", "b", "c"},
		LastSeen:      &seen,
		BeltLevel:     models.BeltWhite,
	}
}

func skillWith(concepts ...string) *models.SkillProgress {
	skill := models.NewSkillProgress("skill-1", "user-1", "Go", now)
	for _, c := range concepts {
		skill.Concepts[c] = strongRecord()
	}
	return skill
}

func TestCheckAdvancement_TooFewConcepts(t *testing.T) {
	result := CheckAdvancement(skillWith("variables"), 5, now)

	assert.False(t, result.Eligible)
	assert.Equal(t, 1, result.Details.TotalConcepts)
	assert.Equal(t, 2, result.Details.RequiredConcepts)
	require.NotNil(t, result.NextBelt)
	assert.Equal(t, models.BeltYellow, *result.NextBelt)
}

func TestCheckAdvancement_Eligible(t *testing.T) {
	result := CheckAdvancement(skillWith("variables", "loops", "functions"), 5, now)

	assert.True(t, result.Eligible, "missing: %v", result.Details.Missing)
	require.NotNil(t, result.NextBelt)
	assert.Equal(t, models.BeltYellow, *result.NextBelt)
	assert.Equal(t, 3, result.Details.MasteredConcepts)
	assert.Equal(t, 100, result.Details.MasteryPercent)
}

func TestCheckAdvancement_NoSessions(t *testing.T) {
	result := CheckAdvancement(skillWith("variables", "loops", "functions"), 0, now)

	assert.False(t, result.Eligible)
	assert.Equal(t, 0, result.Details.SessionCount)
	assert.NotEmpty(t, result.Details.Missing)
}

func TestCheckAdvancement_TopRank(t *testing.T) {
	skill := skillWith("a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l", "m", "n", "o", "p")
	skill.CurrentBelt = models.BeltBlack

	result := CheckAdvancement(skill, 100, now)

	assert.False(t, result.Eligible)
	assert.Nil(t, result.NextBelt)
}

func TestCheckAdvancement_DecayedMasteryBlocks(t *testing.T) {
	skill := skillWith("variables", "loops", "functions")
	later := now.Add(80 * 24 * time.Hour)

	result := CheckAdvancement(skill, 5, later)

	assert.False(t, result.Eligible)
	assert.Less(t, result.Details.MasteryPercent, 60)
}

func TestDefaultRequirement_Scales(t *testing.T) {
	prev := DefaultRequirement(0)
	assert.Equal(t, Requirement{MinConcepts: 2, MinMastered: 1, MinMasteryPercent: 60, MinSessions: 3}, prev)

	for rank := 1; rank < len(models.BeltOrder)-1; rank++ {
		req := DefaultRequirement(rank)
		assert.Greater(t, req.MinConcepts, prev.MinConcepts)
		assert.GreaterOrEqual(t, req.MinMastered, prev.MinMastered)
		assert.Greater(t, req.MinMasteryPercent, prev.MinMasteryPercent)
		assert.Greater(t, req.MinSessions, prev.MinSessions)
		assert.LessOrEqual(t, req.MinMasteryPercent, 100)
		prev = req
	}

	table := NewChecker(mastery.DefaultParams()).RequirementTable()
	assert.Len(t, table, len(models.BeltOrder)-1)
	_, hasTop := table[models.BeltBlack]
	assert.False(t, hasTop)
}

func TestPromote_OneRank(t *testing.T) {
	skill := skillWith("variables", "loops", "functions")

	entry, result, err := Promote(skill, 5, now, "session-9")
	require.NoError(t, err)
	assert.True(t, result.Eligible)

	assert.Equal(t, models.BeltYellow, skill.CurrentBelt)
	require.NotNil(t, entry.FromBelt)
	assert.Equal(t, models.BeltWhite, *entry.FromBelt)
	assert.Equal(t, models.BeltYellow, entry.ToBelt)
	assert.Equal(t, "skill-1", entry.SkillID)
	require.NotNil(t, entry.SessionID)
	assert.Equal(t, "session-9", *entry.SessionID)
	assert.True(t, entry.AchievedAt.Equal(now))
	assert.True(t, entry.IsPromotion())
}

func TestPromote_Ineligible(t *testing.T) {
	skill := skillWith("variables")

	entry, _, err := Promote(skill, 5, now, "")

	assert.Nil(t, entry)
	var notEligible *NotEligibleError
	require.True(t, errors.As(err, &notEligible))
	assert.Contains(t, err.Error(), "concepts")
	assert.Equal(t, models.BeltWhite, skill.CurrentBelt, "belt must not change")
}

func TestPromote_TopRank(t *testing.T) {
	skill := skillWith("variables")
	skill.CurrentBelt = models.BeltBlack

	_, _, err := Promote(skill, 50, now, "")
	assert.ErrorIs(t, err, ErrTopRank)
	assert.Equal(t, models.BeltBlack, skill.CurrentBelt)
}

func TestPlace(t *testing.T) {
	skill := skillWith()
	history := []*models.BeltHistoryEntry{EnrollmentEntry(skill, now)}

	entry, err := Place(skill, history, models.BeltGreen, now, "onboard-1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, models.BeltWhite, *entry.FromBelt)
	assert.Equal(t, models.BeltGreen, skill.CurrentBelt)
	history = append(history, entry)

	again, err := Place(skill, history, models.BeltGreen, now, "onboard-1")
	require.NoError(t, err)
	assert.Nil(t, again)

	_, err = Place(skill, history, models.Belt("plaid"), now, "")
	assert.ErrorIs(t, err, ErrInvalidPlacement)
}

func TestPlace_OnlyBeforeFirstPromotion(t *testing.T) {
	tests := []struct {
		name    string
		current models.Belt
		history func(skill *models.SkillProgress) []*models.BeltHistoryEntry
		to      models.Belt
	}{
		{
			name:    "demotion from a later belt",
			current: models.BeltGreen,
			to:      models.BeltWhite,
		},
		{
			name:    "skip from a later belt",
			current: models.BeltGreen,
			to:      models.BeltBlack,
		},
		{
			name:    "back on white after a promotion",
			current: models.BeltWhite,
			history: func(skill *models.SkillProgress) []*models.BeltHistoryEntry {
				white, yellow := models.BeltWhite, models.BeltYellow
				return []*models.BeltHistoryEntry{
					EnrollmentEntry(skill, now),
					{ID: "h2", SkillID: skill.ID, FromBelt: &white, ToBelt: yellow, AchievedAt: now},
				}
			},
			to: models.BeltGreen,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			skill := skillWith()
			skill.CurrentBelt = tt.current
			var history []*models.BeltHistoryEntry
			if tt.history != nil {
				history = tt.history(skill)
			}

			entry, err := Place(skill, history, tt.to, now, "onboard-2")
			assert.ErrorIs(t, err, ErrPlacementClosed)
			assert.Nil(t, entry)
			assert.Equal(t, tt.current, skill.CurrentBelt, "a rejected placement leaves the belt alone")
		})
	}
}

func TestEnrollmentEntry(t *testing.T) {
	skill := skillWith()
	entry := EnrollmentEntry(skill, now)

	assert.Nil(t, entry.FromBelt)
	assert.Equal(t, models.BeltWhite, entry.ToBelt)
	assert.False(t, entry.IsPromotion())
	assert.NotEmpty(t, entry.ID)
}
