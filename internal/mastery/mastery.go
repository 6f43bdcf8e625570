// Package mastery scores how well a learner knows a concept.
//
// A score blends the raw success ratio with small bonuses for consecutive
// successes and for breadth of application, then fades linearly to zero over
// a decay window measured from the last time the concept was exercised.
package mastery

import (
	"math"
	"time"

	"github.com/DannyMichaels/code-dojo-app/pkg/models"
)

// Params are the tunable scoring constants.
type Params struct {
	DecayWindowDays        float64 `json:"decay_window_days" yaml:"decay_window_days"`
	StreakBonusPerHit      float64 `json:"streak_bonus_per_hit" yaml:"streak_bonus_per_hit"`
	StreakBonusCap         float64 `json:"streak_bonus_cap" yaml:"streak_bonus_cap"`
	ContextBonusPerContext float64 `json:"context_bonus_per_context" yaml:"context_bonus_per_context"`
	ContextBonusCap        float64 `json:"context_bonus_cap" yaml:"context_bonus_cap"`
	MasteredThreshold      float64 `json:"mastered_threshold" yaml:"mastered_threshold"`
}

// DefaultParams returns the standard scoring constants.
func DefaultParams() Params {
	return Params{
		DecayWindowDays:        90,
		StreakBonusPerHit:      0.02,
		StreakBonusCap:         0.10,
		ContextBonusPerContext: 0.02,
		ContextBonusCap:        0.10,
		MasteredThreshold:      0.8,
	}
}

// Compute scores rec at time now using DefaultParams.
func Compute(rec *models.ConceptRecord, now time.Time) float64 {
	return DefaultParams().Compute(rec, now)
}

// Compute scores rec at time now. A missing record or one with no exposures
// scores 0.
func (p Params) Compute(rec *models.ConceptRecord, now time.Time) float64 {
	if rec == nil || rec.ExposureCount <= 0 {
		return 0
	}

	ratio := float64(rec.SuccessCount) / float64(rec.ExposureCount)
	streakBonus := math.Min(float64(rec.Streak)*p.StreakBonusPerHit, p.StreakBonusCap)
	contextBonus := math.Min(float64(rec.DistinctContexts())*p.ContextBonusPerContext, p.ContextBonusCap)
	score := clamp01(ratio + math.Max(streakBonus, 0) + math.Max(contextBonus, 0))

	return clamp01(score * p.DecayFactor(rec.LastSeen, now))
}

// DecayFactor is 1 for a concept seen just now and falls linearly to 0 at the
// end of the decay window. An unknown last-seen time applies no decay.
func (p Params) DecayFactor(lastSeen *time.Time, now time.Time) float64 {
	if lastSeen == nil {
		return 1
	}
	window := p.DecayWindowDays
	if window <= 0 {
		window = DefaultParams().DecayWindowDays
	}
	return clamp01(1 - DaysSince(*lastSeen, now)/window)
}

// IsMastered reports whether score meets the mastered threshold.
func (p Params) IsMastered(score float64) bool {
	return score >= p.MasteredThreshold
}

// DaysSince returns the fractional number of days between t and now.
// A t after now yields a negative value.
func DaysSince(t, now time.Time) float64 {
	return now.Sub(t).Hours() / 24
}

// Percent renders a score as a whole percentage.
func Percent(score float64) int {
	return int(math.Round(score * 100))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
