// Package belt decides when a learner may move up the belt ladder and records
// the move when it happens.
package belt

import (
	"fmt"
	"time"

	"github.com/DannyMichaels/code-dojo-app/internal/mastery"
	"github.com/DannyMichaels/code-dojo-app/pkg/models"
)

// Requirement is the evidence needed to leave a given belt.
type Requirement struct {
	MinConcepts       int `json:"min_concepts" yaml:"min_concepts"`
	MinMastered       int `json:"min_mastered" yaml:"min_mastered"`
	MinMasteryPercent int `json:"min_mastery_percent" yaml:"min_mastery_percent"`
	MinSessions       int `json:"min_sessions" yaml:"min_sessions"`
}

// DefaultRequirement scales the bar with the rank being left. Leaving white
// needs 2 concepts, 1 mastered, 60% average mastery and 3 sessions; every
// rank after that adds 2 concepts, 5 points and 2 sessions.
func DefaultRequirement(rank int) Requirement {
	if rank < 0 {
		rank = 0
	}
	concepts := 2 + 2*rank
	mastered := concepts / 2
	if mastered < 1 {
		mastered = 1
	}
	return Requirement{
		MinConcepts:       concepts,
		MinMastered:       mastered,
		MinMasteryPercent: 60 + 5*rank,
		MinSessions:       3 + 2*rank,
	}
}

// Details explains an eligibility decision.
type Details struct {
	CurrentBelt            models.Belt `json:"current_belt"`
	TotalConcepts          int         `json:"total_concepts"`
	RequiredConcepts       int         `json:"required_concepts"`
	MasteredConcepts       int         `json:"mastered_concepts"`
	RequiredMastered       int         `json:"required_mastered"`
	MasteryPercent         int         `json:"mastery_percent"`
	RequiredMasteryPercent int         `json:"required_mastery_percent"`
	SessionCount           int         `json:"session_count"`
	RequiredSessions       int         `json:"required_sessions"`
	Missing                []string    `json:"missing,omitempty"`
}

// Result is the outcome of an eligibility check.
type Result struct {
	Eligible bool         `json:"eligible"`
	NextBelt *models.Belt `json:"next_belt"`
	Details  Details      `json:"details"`
}

// Checker evaluates advancement with a given scoring model and requirement table.
type Checker struct {
	Params       mastery.Params
	Requirements func(rank int) Requirement
}

// NewChecker returns a Checker using the default requirement table.
func NewChecker(params mastery.Params) *Checker {
	return &Checker{Params: params, Requirements: DefaultRequirement}
}

// CheckAdvancement evaluates skill with the default scoring model.
func CheckAdvancement(skill *models.SkillProgress, sessionCount int, now time.Time) Result {
	return NewChecker(mastery.DefaultParams()).CheckAdvancement(skill, sessionCount, now)
}

// CheckAdvancement reports whether skill may advance one rank. sessionCount is
// the number of non-abandoned sessions for the skill. The top rank is never
// eligible and has no next belt.
func (c *Checker) CheckAdvancement(skill *models.SkillProgress, sessionCount int, now time.Time) Result {
	details := Details{CurrentBelt: skill.CurrentBelt, SessionCount: sessionCount}

	next, ok := skill.CurrentBelt.Next()
	if !ok {
		if skill.CurrentBelt == models.TopBelt {
			details.Missing = []string{"already at the top rank"}
		} else {
			details.Missing = []string{fmt.Sprintf("unknown belt %q", skill.CurrentBelt)}
		}
		return Result{Eligible: false, NextBelt: nil, Details: details}
	}

	req := c.requirement(skill.CurrentBelt.Index())
	details.RequiredConcepts = req.MinConcepts
	details.RequiredMastered = req.MinMastered
	details.RequiredMasteryPercent = req.MinMasteryPercent
	details.RequiredSessions = req.MinSessions

	summary := c.Params.Summarize(skill, now)
	details.TotalConcepts = len(summary.Concepts)
	details.MasteredConcepts = summary.MasteredCount
	details.MasteryPercent = summary.AveragePercent

	if details.TotalConcepts < req.MinConcepts {
		details.Missing = append(details.Missing,
			fmt.Sprintf("track at least %d concepts (have %d)", req.MinConcepts, details.TotalConcepts))
	}
	if details.MasteredConcepts < req.MinMastered {
		details.Missing = append(details.Missing,
			fmt.Sprintf("master at least %d concepts (have %d)", req.MinMastered, details.MasteredConcepts))
	}
	if details.MasteryPercent < req.MinMasteryPercent {
		details.Missing = append(details.Missing,
			fmt.Sprintf("reach %d%% average mastery (have %d%%)", req.MinMasteryPercent, details.MasteryPercent))
	}
	if sessionCount < req.MinSessions {
		details.Missing = append(details.Missing,
			fmt.Sprintf("complete at least %d sessions (have %d)", req.MinSessions, sessionCount))
	}

	return Result{
		Eligible: len(details.Missing) == 0,
		NextBelt: &next,
		Details:  details,
	}
}

func (c *Checker) requirement(rank int) Requirement {
	if c.Requirements == nil {
		return DefaultRequirement(rank)
	}
	return c.Requirements(rank)
}

// RequirementTable lists the requirement for leaving every non-top belt.
func (c *Checker) RequirementTable() map[models.Belt]Requirement {
	table := make(map[models.Belt]Requirement, len(models.BeltOrder)-1)
	for i, b := range models.BeltOrder[:len(models.BeltOrder)-1] {
		table[b] = c.requirement(i)
	}
	return table
}
