package mastery

import (
	"sort"
	"time"

	"github.com/DannyMichaels/code-dojo-app/pkg/models"
)

// Bucket thresholds used when grouping concepts for display and prompting.
const (
	StrongThreshold     = 0.8
	DevelopingThreshold = 0.5
)

// ConceptSnapshot is a scored view of one concept at a point in time.
type ConceptSnapshot struct {
	Name             string      `json:"name"`
	Mastery          float64     `json:"mastery"`
	MasteryPercent   int         `json:"mastery_percent"`
	ExposureCount    int         `json:"exposure_count"`
	SuccessCount     int         `json:"success_count"`
	Streak           int         `json:"streak"`
	DistinctContexts int         `json:"distinct_contexts"`
	BeltLevel        models.Belt `json:"belt_level"`
	LastSeen         *time.Time  `json:"last_seen,omitempty"`
	DaysSinceSeen    *int        `json:"days_since_seen,omitempty"`
	ObservationCount int         `json:"observation_count"`
	Observations     []string    `json:"observations,omitempty"`
}

// Summary groups every tracked concept of a skill by strength.
type Summary struct {
	Concepts       []ConceptSnapshot `json:"concepts"`
	Strong         []ConceptSnapshot `json:"strong"`
	Developing     []ConceptSnapshot `json:"developing"`
	Weak           []ConceptSnapshot `json:"weak"`
	AverageMastery float64           `json:"average_mastery"`
	AveragePercent int               `json:"average_percent"`
	MasteredCount  int               `json:"mastered_count"`
}

// Summarize scores all concepts of skill at now. Concepts are ordered by
// descending mastery, then name.
func (p Params) Summarize(skill *models.SkillProgress, now time.Time) Summary {
	summary := Summary{
		Concepts:   []ConceptSnapshot{},
		Strong:     []ConceptSnapshot{},
		Developing: []ConceptSnapshot{},
		Weak:       []ConceptSnapshot{},
	}
	if skill == nil {
		return summary
	}

	total := 0.0
	for name, rec := range skill.Concepts {
		snap := p.Snapshot(name, rec, now)
		summary.Concepts = append(summary.Concepts, snap)
		total += snap.Mastery
		if p.IsMastered(snap.Mastery) {
			summary.MasteredCount++
		}
	}

	sort.Slice(summary.Concepts, func(i, j int) bool {
		a, b := summary.Concepts[i], summary.Concepts[j]
		if a.Mastery != b.Mastery {
			return a.Mastery > b.Mastery
		}
		return a.Name < b.Name
	})

	for _, snap := range summary.Concepts {
		switch {
		case snap.Mastery >= StrongThreshold:
			summary.Strong = append(summary.Strong, snap)
		case snap.Mastery >= DevelopingThreshold:
			summary.Developing = append(summary.Developing, snap)
		default:
			summary.Weak = append(summary.Weak, snap)
		}
	}

	if n := len(summary.Concepts); n > 0 {
		summary.AverageMastery = total / float64(n)
		summary.AveragePercent = Percent(summary.AverageMastery)
	}
	return summary
}

// Snapshot scores a single record.
func (p Params) Snapshot(name string, rec *models.ConceptRecord, now time.Time) ConceptSnapshot {
	score := p.Compute(rec, now)
	snap := ConceptSnapshot{
		Name:           name,
		Mastery:        score,
		MasteryPercent: Percent(score),
	}
	if rec == nil {
		return snap
	}
	snap.ExposureCount = rec.ExposureCount
	snap.SuccessCount = rec.SuccessCount
	snap.Streak = rec.Streak
	snap.DistinctContexts = rec.DistinctContexts()
	snap.BeltLevel = rec.BeltLevel
	snap.ObservationCount = len(rec.Observations)
	snap.Observations = rec.Observations
	if rec.LastSeen != nil {
		seen := *rec.LastSeen
		days := int(DaysSince(seen, now))
		snap.LastSeen = &seen
		snap.DaysSinceSeen = &days
	}
	return snap
}
