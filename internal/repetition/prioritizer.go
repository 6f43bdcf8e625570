// Package repetition decides which concepts a session should focus on next.
package repetition

import (
	"fmt"
	"sort"
	"time"

	"github.com/DannyMichaels/code-dojo-app/internal/mastery"
	"github.com/DannyMichaels/code-dojo-app/pkg/models"
)

// Priority of a focus item. Critical is reserved for explicitly queued
// concepts the coach flagged as high priority.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Weight orders priorities for sorting; lower sorts first.
func (p Priority) Weight() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	default:
		return 3
	}
}

// Source names the rule that selected an item.
type Source string

const (
	SourceQueue      Source = "reinforcement_queue"
	SourceDecayed    Source = "decayed"
	SourceContextGap Source = "context_gap"
	SourceWeak       Source = "weak"
)

// Rule thresholds.
const (
	DecayedAfterDays    = 14
	DecayedMaxMastery   = 0.6
	DecayedHighBelow    = 0.3
	ContextGapMinScore  = 0.5
	ContextGapMaxCount  = 3
	ContextGapMinSeen   = 2
	WeakMaxMastery      = 0.7
	WeakHighBelow       = 0.4
	UnseenDaysSentinel  = 999
	DefaultSuggestLimit = 5
)

// Item is one entry of the focus list.
type Item struct {
	Concept  string   `json:"concept"`
	Reason   string   `json:"reason"`
	Priority Priority `json:"priority"`
	Source   Source   `json:"source"`
	Mastery  float64  `json:"mastery"`
}

// Prioritizer builds ordered focus lists.
type Prioritizer struct {
	params mastery.Params
}

// New returns a Prioritizer scoring with params.
func New(params mastery.Params) *Prioritizer {
	return &Prioritizer{params: params}
}

// Prioritize builds the focus list with default scoring.
func Prioritize(skill *models.SkillProgress, now time.Time) []Item {
	return New(mastery.DefaultParams()).Prioritize(skill, now)
}

// Prioritize gathers candidates from four sources in order: the explicit
// reinforcement queue, decayed concepts, concepts practiced in too few
// contexts, and weak concepts at or below the current belt. A concept picked
// by an earlier source is never repeated. The result is stably sorted by
// priority, so ties keep source order.
func (p *Prioritizer) Prioritize(skill *models.SkillProgress, now time.Time) []Item {
	items := []Item{}
	if skill == nil {
		return items
	}
	selected := make(map[string]bool)
	add := func(item Item) {
		key := models.NormalizeConceptName(item.Concept)
		if selected[key] {
			return
		}
		selected[key] = true
		items = append(items, item)
	}

	for _, q := range skill.ReinforcementQueue {
		name := models.NormalizeConceptName(q.Concept)
		prio := PriorityLow
		switch q.Priority {
		case models.PriorityHigh:
			prio = PriorityCritical
		case models.PriorityMedium:
			prio = PriorityMedium
		}
		add(Item{
			Concept:  name,
			Reason:   fmt.Sprintf("%s (%s)", SourceQueue, q.Priority),
			Priority: prio,
			Source:   SourceQueue,
			Mastery:  p.params.Compute(skill.Concepts[name], now),
		})
	}

	names := skill.ConceptNames()

	for _, name := range names {
		rec := skill.Concepts[name]
		score := p.params.Compute(rec, now)
		days := float64(UnseenDaysSentinel)
		if rec.LastSeen != nil {
			days = mastery.DaysSince(*rec.LastSeen, now)
		}
		if days > DecayedAfterDays && score < DecayedMaxMastery && rec.ExposureCount > 0 {
			prio := PriorityMedium
			if score < DecayedHighBelow {
				prio = PriorityHigh
			}
			add(Item{
				Concept:  name,
				Reason:   fmt.Sprintf("%s (%d days, mastery %d%%)", SourceDecayed, int(days), mastery.Percent(score)),
				Priority: prio,
				Source:   SourceDecayed,
				Mastery:  score,
			})
		}
	}

	for _, name := range names {
		rec := skill.Concepts[name]
		score := p.params.Compute(rec, now)
		if score >= ContextGapMinScore && rec.DistinctContexts() < ContextGapMaxCount && rec.ExposureCount >= ContextGapMinSeen {
			add(Item{
				Concept:  name,
				Reason:   fmt.Sprintf("%s (%d contexts)", SourceContextGap, rec.DistinctContexts()),
				Priority: PriorityLow,
				Source:   SourceContextGap,
				Mastery:  score,
			})
		}
	}

	for _, name := range names {
		rec := skill.Concepts[name]
		if !beltAtOrBelow(rec.BeltLevel, skill.CurrentBelt) {
			continue
		}
		score := p.params.Compute(rec, now)
		if score < WeakMaxMastery && rec.ExposureCount >= 1 {
			prio := PriorityMedium
			if score < WeakHighBelow {
				prio = PriorityHigh
			}
			add(Item{
				Concept:  name,
				Reason:   fmt.Sprintf("%s (mastery %d%%)", SourceWeak, mastery.Percent(score)),
				Priority: prio,
				Source:   SourceWeak,
				Mastery:  score,
			})
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Priority.Weight() < items[j].Priority.Weight()
	})
	return items
}

// Top returns at most n items of the focus list.
func (p *Prioritizer) Top(skill *models.SkillProgress, now time.Time, n int) []Item {
	items := p.Prioritize(skill, now)
	if n >= 0 && len(items) > n {
		items = items[:n]
	}
	return items
}

// An unset concept belt counts as rank 0.
func beltAtOrBelow(level, current models.Belt) bool {
	if level == "" {
		level = models.BeltOrder[0]
	}
	return level.AtOrBelow(current)
}
