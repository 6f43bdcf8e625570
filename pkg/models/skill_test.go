package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeConceptName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Error Handling", "error_handling"},
		{"error_handling", "error_handling"},
		{"  Closures  ", "closures"},
		{"Big\t O   Notation", "big_o_notation"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeConceptName(tt.in); got != tt.want {
			t.Errorf("NormalizeConceptName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConceptRecord_RecordAttempt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := NewConceptRecord(BeltWhite)

	rec.RecordAttempt(true, "loops", now)
	rec.RecordAttempt(true, "Loops", now)
	rec.RecordAttempt(false, "recursion", now)

	assert.Equal(t, 3, rec.ExposureCount)
	assert.Equal(t, 2, rec.SuccessCount)
	assert.Equal(t, 0, rec.Streak, "failure resets the streak")
	assert.Equal(t, []string{"loops", "recursion"}, rec.Contexts)
	require.NotNil(t, rec.LastSeen)
	assert.True(t, rec.LastSeen.Equal(now))
	assert.LessOrEqual(t, rec.SuccessCount, rec.ExposureCount)
}

func TestSkillProgress_UpsertConcept(t *testing.T) {
	now := time.Now()
	skill := NewSkillProgress("skill-1", "user-1", "Go", now)

	assert.Equal(t, BeltWhite, skill.CurrentBelt)
	assert.Empty(t, skill.Concepts)

	key, rec := skill.UpsertConcept("Error Handling", "")
	assert.Equal(t, "error_handling", key)
	assert.Equal(t, BeltWhite, rec.BeltLevel, "invalid level falls back to current belt")

	_, again := skill.UpsertConcept("error_handling", BeltGreen)
	assert.Same(t, rec, again)

	got, ok := skill.Concept("ERROR   handling")
	require.True(t, ok)
	assert.Same(t, rec, got)
}

func TestSkillProgress_QueueReinforcement(t *testing.T) {
	skill := NewSkillProgress("skill-1", "user-1", "Go", time.Now())

	first := skill.QueueReinforcement("Pointers", PriorityLow, "", "session-1")
	assert.Equal(t, "pointers", first.Concept)
	require.NotNil(t, first.SourceSessionID)
	assert.Equal(t, "session-1", *first.SourceSessionID)

	merged := skill.QueueReinforcement("pointers", PriorityHigh, "linked lists", "session-2")
	assert.Len(t, skill.ReinforcementQueue, 1)
	assert.Equal(t, PriorityHigh, merged.Priority)
	assert.Equal(t, 1, merged.Attempts)
	assert.Equal(t, "session-1", *merged.SourceSessionID)

	skill.QueueReinforcement("pointers", PriorityLow, "", "")
	assert.Equal(t, PriorityHigh, skill.ReinforcementQueue[0].Priority, "priority never drops on merge")

	skill.QueueReinforcement("channels", Priority("urgent"), "", "")
	assert.Equal(t, PriorityMedium, skill.ReinforcementQueue[1].Priority)

	assert.True(t, skill.RemoveReinforcement("Pointers"))
	assert.False(t, skill.RemoveReinforcement("pointers"))
	assert.Len(t, skill.ReinforcementQueue, 1)
}

func TestSkillProgress_Clone(t *testing.T) {
	now := time.Now()
	skill := NewSkillProgress("skill-1", "user-1", "Go", now)
	_, rec := skill.UpsertConcept("maps", BeltWhite)
	rec.RecordAttempt(true, "counting", now)
	skill.QueueReinforcement("maps", PriorityHigh, "ctx", "s1")

	clone := skill.Clone()
	clone.Concepts["maps"].RecordAttempt(false, "other", now)
	*clone.ReinforcementQueue[0].Context = "changed"

	assert.Equal(t, 1, skill.Concepts["maps"].ExposureCount)
	assert.Equal(t, "ctx", *skill.ReinforcementQueue[0].Context)
}
