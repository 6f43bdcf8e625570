package dojo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DannyMichaels/code-dojo-app/internal/belt"
	"github.com/DannyMichaels/code-dojo-app/internal/mastery"
	"github.com/DannyMichaels/code-dojo-app/internal/repetition"
	"github.com/DannyMichaels/code-dojo-app/pkg/messages"
	"github.com/DannyMichaels/code-dojo-app/pkg/models"
)

// RecentSessionLimit bounds the sessions listed in SkillProgress.
const RecentSessionLimit = 10

// BeltInfo describes where a learner stands on the belt ladder.
type BeltInfo struct {
	CurrentBelt      models.Belt   `json:"current_belt"`
	NextBelt         *models.Belt  `json:"next_belt"`
	Eligible         bool          `json:"eligible"`
	BeltOrder        []models.Belt `json:"belt_order"`
	CurrentBeltIndex int           `json:"current_belt_index"`
	Details          belt.Details  `json:"details"`
}

// BeltInfo evaluates advancement for a skill.
func (s *Service) BeltInfo(ctx context.Context, skillID string) (*BeltInfo, error) {
	skill, err := s.GetSkill(ctx, skillID)
	if err != nil {
		return nil, err
	}
	count, err := s.store.CountSessions(ctx, skillID)
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}
	result := s.checker.CheckAdvancement(skill, count, s.now())
	return &BeltInfo{
		CurrentBelt:      skill.CurrentBelt,
		NextBelt:         result.NextBelt,
		Eligible:         result.Eligible,
		BeltOrder:        append([]models.Belt(nil), models.BeltOrder...),
		CurrentBeltIndex: skill.CurrentBelt.Index(),
		Details:          result.Details,
	}, nil
}

// Promote moves the learner up one belt when eligible. A rejected promotion
// returns a *belt.NotEligibleError or belt.ErrTopRank and changes nothing.
func (s *Service) Promote(ctx context.Context, skillID string) (*models.BeltHistoryEntry, error) {
	unlock, err := s.lockSkill(ctx, skillID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	skill, err := s.GetSkill(ctx, skillID)
	if err != nil {
		return nil, err
	}
	count, err := s.store.CountSessions(ctx, skillID)
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}

	from := skill.CurrentBelt
	entry, _, err := s.checker.Promote(skill, count, s.now(), "")
	if err != nil {
		return nil, err
	}
	skill.AssessmentAvailable = false
	if err := s.store.SaveSkill(ctx, skill); err != nil {
		return nil, fmt.Errorf("failed to save skill: %w", err)
	}
	if err := s.store.AppendBeltHistory(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to record promotion: %w", err)
	}

	s.metrics.BeltPromotions.WithLabelValues(skill.SkillName, string(entry.ToBelt)).Inc()
	s.logger.Info("belt promoted",
		zap.String("skill_id", skillID),
		zap.String("from", string(from)),
		zap.String("to", string(entry.ToBelt)))
	s.publish(ctx, messages.BeltPromoted(skill.UserID, skill.ID, "", eventSource, string(from), string(entry.ToBelt)))
	return entry, nil
}

// IsRejectedPromotion reports whether err came from the belt rules rather
// than from storage.
func IsRejectedPromotion(err error) bool {
	var notEligible *belt.NotEligibleError
	return errors.As(err, &notEligible) || errors.Is(err, belt.ErrTopRank)
}

// Progress is the detailed view of one skill.
type Progress struct {
	Skill              *models.SkillProgress      `json:"skill"`
	Mastery            mastery.Summary            `json:"mastery"`
	SessionCount       int                        `json:"session_count"`
	RecentSessions     []SessionSummary           `json:"recent_sessions"`
	BeltHistory        []*models.BeltHistoryEntry `json:"belt_history"`
	ReinforcementQueue []models.ReinforcementItem `json:"reinforcement_queue"`
	Focus              []repetition.Item          `json:"focus"`
}

// SkillProgress gathers per-concept mastery, recent sessions, belt history
// and the current focus for a skill.
func (s *Service) SkillProgress(ctx context.Context, skillID string) (*Progress, error) {
	skill, err := s.GetSkill(ctx, skillID)
	if err != nil {
		return nil, err
	}
	sessions, err := s.store.ListSessions(ctx, skillID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	count, err := s.store.CountSessions(ctx, skillID)
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}
	history, err := s.store.ListBeltHistory(ctx, skillID)
	if err != nil {
		return nil, fmt.Errorf("failed to list belt history: %w", err)
	}

	now := s.now()
	recent := sessions
	if len(recent) > RecentSessionLimit {
		recent = recent[:RecentSessionLimit]
	}
	summaries := make([]SessionSummary, len(recent))
	for i, session := range recent {
		summaries[i] = Summarize(session)
	}

	queue := skill.ReinforcementQueue
	if queue == nil {
		queue = []models.ReinforcementItem{}
	}
	return &Progress{
		Skill:              skill,
		Mastery:            s.checker.Params.Summarize(skill, now),
		SessionCount:       count,
		RecentSessions:     summaries,
		BeltHistory:        history,
		ReinforcementQueue: queue,
		Focus:              s.prioritizer.Top(skill, now, repetition.DefaultSuggestLimit),
	}, nil
}

// SkillSummary is one row of the dashboard.
type SkillSummary struct {
	ID                  string      `json:"id"`
	Name                string      `json:"name"`
	CurrentBelt         models.Belt `json:"current_belt"`
	ConceptCount        int         `json:"concept_count"`
	AverageMastery      int         `json:"average_mastery"`
	AssessmentAvailable bool        `json:"assessment_available"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// Dashboard summarizes every skill of a learner.
type Dashboard struct {
	TotalSkills       int            `json:"total_skills"`
	TotalSessions     int            `json:"total_sessions"`
	CompletedSessions int            `json:"completed_sessions"`
	Skills            []SkillSummary `json:"skills"`
}

// Dashboard builds the cross-skill overview for userID.
func (s *Service) Dashboard(ctx context.Context, userID string) (*Dashboard, error) {
	skills, err := s.store.ListSkills(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list skills: %w", err)
	}

	now := s.now()
	d := &Dashboard{TotalSkills: len(skills), Skills: make([]SkillSummary, 0, len(skills))}
	for _, skill := range skills {
		sessions, err := s.store.ListSessions(ctx, skill.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list sessions: %w", err)
		}
		d.TotalSessions += len(sessions)
		for _, session := range sessions {
			if session.Status == models.SessionStatusCompleted {
				d.CompletedSessions++
			}
		}

		summary := s.checker.Params.Summarize(skill, now)
		d.Skills = append(d.Skills, SkillSummary{
			ID:                  skill.ID,
			Name:                skill.SkillName,
			CurrentBelt:         skill.CurrentBelt,
			ConceptCount:        len(summary.Concepts),
			AverageMastery:      summary.AveragePercent,
			AssessmentAvailable: skill.AssessmentAvailable,
			UpdatedAt:           skill.UpdatedAt,
		})
	}
	return d, nil
}
