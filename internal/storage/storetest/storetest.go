// Package storetest holds a behavioural test suite shared by every
// storage.Store implementation.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DannyMichaels/code-dojo-app/internal/storage"
	"github.com/DannyMichaels/code-dojo-app/pkg/models"
)

// Run exercises store against the Store contract. newStore must return an
// empty store for every call.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("SkillRoundTrip", func(t *testing.T) { testSkillRoundTrip(t, newStore(t)) })
	t.Run("SkillUniquePerUser", func(t *testing.T) { testSkillUniquePerUser(t, newStore(t)) })
	t.Run("SessionsAndCounts", func(t *testing.T) { testSessions(t, newStore(t)) })
	t.Run("BeltHistory", func(t *testing.T) { testBeltHistory(t, newStore(t)) })
	t.Run("DeleteCascades", func(t *testing.T) { testDeleteCascades(t, newStore(t)) })
}

var base = time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

func testSkillRoundTrip(t *testing.T, s storage.Store) {
	ctx := context.Background()
	skill := models.NewSkillProgress("skill-1", "user-1", "Go", base)
	_, rec := skill.UpsertConcept("Error Handling", models.BeltWhite)
	rec.RecordAttempt(true, "parser", base)
	skill.QueueReinforcement("error_handling", models.PriorityHigh, "wrap errors", "session-0")

	require.NoError(t, s.CreateSkill(ctx, skill))

	got, err := s.GetSkill(ctx, "skill-1")
	require.NoError(t, err)
	assert.Equal(t, "Go", got.SkillName)
	assert.Equal(t, models.BeltWhite, got.CurrentBelt)
	require.Contains(t, got.Concepts, "error_handling")
	assert.Equal(t, 1, got.Concepts["error_handling"].ExposureCount)
	require.NotNil(t, got.Concepts["error_handling"].LastSeen)
	assert.True(t, got.Concepts["error_handling"].LastSeen.Equal(base))
	require.Len(t, got.ReinforcementQueue, 1)
	assert.Equal(t, models.PriorityHigh, got.ReinforcementQueue[0].Priority)

	got.CurrentBelt = models.BeltYellow
	got.AssessmentAvailable = true
	require.NoError(t, s.SaveSkill(ctx, got))

	again, err := s.GetSkill(ctx, "skill-1")
	require.NoError(t, err)
	assert.Equal(t, models.BeltYellow, again.CurrentBelt)
	assert.True(t, again.AssessmentAvailable)

	_, err = s.GetSkill(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	other := models.NewSkillProgress("skill-2", "user-1", "Rust", base.Add(time.Minute))
	require.NoError(t, s.CreateSkill(ctx, other))
	list, err := s.ListSkills(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "skill-1", list[0].ID)

	byName, err := s.ListSkillsByName(ctx, "Rust")
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "skill-2", byName[0].ID)
}

func testSkillUniquePerUser(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateSkill(ctx, models.NewSkillProgress("a", "user-1", "Go", base)))

	err := s.CreateSkill(ctx, models.NewSkillProgress("b", "user-1", "Go", base))
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	assert.NoError(t, s.CreateSkill(ctx, models.NewSkillProgress("c", "user-2", "Go", base)))
}

func testSessions(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateSkill(ctx, models.NewSkillProgress("skill-1", "user-1", "Go", base)))

	for i, status := range []models.SessionStatus{models.SessionStatusCompleted, models.SessionStatusAbandoned, models.SessionStatusActive} {
		sess := models.NewSession("s"+string(rune('0'+i)), "skill-1", "user-1", models.SessionTypeTraining, base.Add(time.Duration(i)*time.Hour))
		sess.Status = status
		require.NoError(t, s.CreateSession(ctx, sess))
	}
	assert.ErrorIs(t, s.CreateSession(ctx, models.NewSession("s0", "skill-1", "user-1", models.SessionTypeKata, base)), storage.ErrAlreadyExists)

	n, err := s.CountSessions(ctx, "skill-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "abandoned sessions are not counted")

	list, err := s.ListSessions(ctx, "skill-1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "s2", list[0].ID, "newest first")

	sess, err := s.GetSession(ctx, "s2")
	require.NoError(t, err)
	sess.AppendMessage(models.RoleUser, "hello", base)
	sess.Problem = &models.Problem{Prompt: "fizzbuzz", ConceptsTargeted: []string{"loops"}}
	require.NoError(t, s.SaveSession(ctx, sess))

	got, err := s.GetSession(ctx, "s2")
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hello", got.Messages[0].Content)
	assert.Equal(t, "fizzbuzz", got.Problem.Prompt)

	_, err = s.GetSession(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testBeltHistory(t *testing.T, s storage.Store) {
	ctx := context.Background()
	white, yellow := models.BeltWhite, models.BeltYellow
	sessionID := "s1"

	require.NoError(t, s.AppendBeltHistory(ctx, &models.BeltHistoryEntry{ID: "h1", SkillID: "skill-1", UserID: "u", ToBelt: white, AchievedAt: base}))
	require.NoError(t, s.AppendBeltHistory(ctx, &models.BeltHistoryEntry{ID: "h3", SkillID: "skill-1", UserID: "u", FromBelt: &yellow, ToBelt: models.BeltOrange, AchievedAt: base.Add(2 * time.Hour)}))
	require.NoError(t, s.AppendBeltHistory(ctx, &models.BeltHistoryEntry{ID: "h2", SkillID: "skill-1", UserID: "u", FromBelt: &white, ToBelt: yellow, AchievedAt: base.Add(time.Hour), SessionID: &sessionID}))
	assert.ErrorIs(t, s.AppendBeltHistory(ctx, &models.BeltHistoryEntry{ID: "h1", SkillID: "skill-1", ToBelt: white, AchievedAt: base}), storage.ErrAlreadyExists)

	list, err := s.ListBeltHistory(ctx, "skill-1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"h1", "h2", "h3"}, []string{list[0].ID, list[1].ID, list[2].ID})
	assert.Nil(t, list[0].FromBelt)
	require.NotNil(t, list[1].SessionID)
	assert.Equal(t, "s1", *list[1].SessionID)

	empty, err := s.ListBeltHistory(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testDeleteCascades(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateSkill(ctx, models.NewSkillProgress("skill-1", "user-1", "Go", base)))
	require.NoError(t, s.CreateSession(ctx, models.NewSession("s1", "skill-1", "user-1", models.SessionTypeOnboarding, base)))
	require.NoError(t, s.AppendBeltHistory(ctx, &models.BeltHistoryEntry{ID: "h1", SkillID: "skill-1", ToBelt: models.BeltWhite, AchievedAt: base}))

	require.NoError(t, s.DeleteSkill(ctx, "skill-1"))

	_, err := s.GetSkill(ctx, "skill-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.GetSession(ctx, "s1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	history, err := s.ListBeltHistory(ctx, "skill-1")
	require.NoError(t, err)
	assert.Empty(t, history)

	assert.ErrorIs(t, s.DeleteSkill(ctx, "skill-1"), storage.ErrNotFound)
}
