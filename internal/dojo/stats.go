package dojo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/DannyMichaels/code-dojo-app/internal/orchestrator"
	"github.com/DannyMichaels/code-dojo-app/internal/prompt"
	"github.com/DannyMichaels/code-dojo-app/internal/storage"
	"github.com/DannyMichaels/code-dojo-app/pkg/models"
)

// RecentPromotionWindow is how far back BeltStats counts promotions.
const RecentPromotionWindow = 30 * 24 * time.Hour

// BeltStats are anonymized aggregates over every learner of a skill.
type BeltStats struct {
	SkillName        string              `json:"skill_name"`
	TotalStudents    int                 `json:"total_students"`
	RecentPromotions int                 `json:"recent_promotions"`
	BeltDistribution map[models.Belt]int `json:"belt_distribution"`
}

// BeltTimeline returns a skill's belt history, oldest first.
func (s *Service) BeltTimeline(ctx context.Context, skillID string) ([]*models.BeltHistoryEntry, error) {
	if _, err := s.GetSkill(ctx, skillID); err != nil {
		return nil, err
	}
	history, err := s.store.ListBeltHistory(ctx, skillID)
	if err != nil {
		return nil, fmt.Errorf("failed to list belt history: %w", err)
	}
	return history, nil
}

// BeltStats aggregates every enrollment in skillName. Enrollment entries
// do not count as promotions.
func (s *Service) BeltStats(ctx context.Context, skillName string) (*BeltStats, error) {
	return beltStats(ctx, s.store, skillName, s.now())
}

func beltStats(ctx context.Context, store storage.Store, skillName string, now time.Time) (*BeltStats, error) {
	skillName = strings.TrimSpace(skillName)
	if skillName == "" {
		return nil, fmt.Errorf("%w: skill name is required", ErrInvalidInput)
	}
	skills, err := store.ListSkillsByName(ctx, skillName)
	if err != nil {
		return nil, fmt.Errorf("failed to list skills: %w", err)
	}

	stats := &BeltStats{
		SkillName:        skillName,
		TotalStudents:    len(skills),
		BeltDistribution: make(map[models.Belt]int),
	}
	since := now.Add(-RecentPromotionWindow)
	for _, skill := range skills {
		stats.BeltDistribution[skill.CurrentBelt]++
		history, err := store.ListBeltHistory(ctx, skill.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list belt history: %w", err)
		}
		for _, entry := range history {
			if entry.IsPromotion() && !entry.AchievedAt.Before(since) {
				stats.RecentPromotions++
			}
		}
	}
	return stats, nil
}

// CommunityFunc adapts BeltStats for the prompt builder.
func CommunityFunc(store storage.Store, now func() time.Time) orchestrator.CommunityFunc {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context, skillName string) (*prompt.Community, error) {
		stats, err := beltStats(ctx, store, skillName, now())
		if err != nil {
			return nil, err
		}
		return &prompt.Community{
			TotalStudents:    stats.TotalStudents,
			RecentPromotions: stats.RecentPromotions,
		}, nil
	}
}
