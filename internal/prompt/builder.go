// Package prompt assembles the system context sent to the reasoning service.
//
// The context has a static half (protocol, skill context, session
// instructions, output format) fixed for the life of a session, and a dynamic
// half (learner state, suggested focus, past problems) rebuilt every round so
// tool effects from one round are visible in the next.
package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/DannyMichaels/code-dojo-app/internal/mastery"
	"github.com/DannyMichaels/code-dojo-app/internal/repetition"
	"github.com/DannyMichaels/code-dojo-app/pkg/models"
)

// FocusLimit caps the suggested-focus list.
const FocusLimit = repetition.DefaultSuggestLimit

// maxProblemPrompt truncates past problem statements.
const maxProblemPrompt = 150

// PastProblem is a problem already given in an earlier or current session.
type PastProblem struct {
	Date        time.Time
	Correctness string
	Concepts    []string
	Prompt      string
}

// OtherSkill is another skill the learner is enrolled in.
type OtherSkill struct {
	Name string
	Belt models.Belt
}

// Community holds anonymized stats about other learners of the skill.
type Community struct {
	TotalStudents    int
	RecentPromotions int
}

// Input is everything the builder reads.
type Input struct {
	Skill        *models.SkillProgress
	Session      *models.Session
	PastProblems []PastProblem
	OtherSkills  []OtherSkill
	Community    *Community
	Now          time.Time
}

// Prompt is a built system context.
type Prompt struct {
	Static  string
	Dynamic string
}

// System joins both halves into a single system message.
func (p Prompt) System() string {
	if p.Dynamic == "" {
		return p.Static
	}
	return p.Static + "\n\n" + p.Dynamic
}

// Builder renders system contexts.
type Builder struct {
	params      mastery.Params
	prioritizer *repetition.Prioritizer
}

// NewBuilder returns a builder scoring concepts with params.
func NewBuilder(params mastery.Params) *Builder {
	return &Builder{params: params, prioritizer: repetition.New(params)}
}

// Build renders the full context for in.
func (b *Builder) Build(in Input) Prompt {
	sessionType := models.SessionTypeTraining
	if in.Session != nil && in.Session.Type.Valid() {
		sessionType = in.Session.Type
	}

	static := joinSections(
		protocol,
		skillContext(in.Skill),
		sessionInstructions(sessionType, in.Skill),
		outputFormat,
	)
	dynamic := joinSections(
		b.currentState(in),
		otherSkills(in.OtherSkills),
		pastProblems(in.PastProblems),
	)
	return Prompt{Static: static, Dynamic: dynamic}
}

func (b *Builder) currentState(in Input) string {
	skill := in.Skill
	if skill == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Current Learner State\n")
	fmt.Fprintf(&sb, "- Current belt: %s\n", skill.CurrentBelt)
	fmt.Fprintf(&sb, "- Assessment available: %s\n", yesNo(skill.AssessmentAvailable))

	summary := b.params.Summarize(skill, in.Now)
	if n := len(summary.Concepts); n > 0 {
		fmt.Fprintf(&sb, "- Tracked concepts: %d\n", n)
		writeBucket(&sb, "Strong", summary.Strong)
		writeBucket(&sb, "Developing", summary.Developing)
		writeBucket(&sb, "Weak", summary.Weak)
	}

	if len(skill.ReinforcementQueue) > 0 {
		parts := make([]string, len(skill.ReinforcementQueue))
		for i, item := range skill.ReinforcementQueue {
			parts[i] = fmt.Sprintf("%s (%s)", item.Concept, item.Priority)
		}
		fmt.Fprintf(&sb, "- Reinforcement queue: %s\n", strings.Join(parts, ", "))
	}

	if focus := b.prioritizer.Top(skill, in.Now, FocusLimit); len(focus) > 0 {
		sb.WriteString("\n### Suggested Focus\n")
		for _, item := range focus {
			fmt.Fprintf(&sb, "- **%s**: %s\n", item.Concept, item.Reason)
		}
	}

	if c := in.Community; c != nil && (c.TotalStudents > 0 || c.RecentPromotions > 0) {
		sb.WriteString("\n### Community\n")
		if c.TotalStudents > 0 {
			fmt.Fprintf(&sb, "- %d learners are training this skill\n", c.TotalStudents)
		}
		if c.RecentPromotions > 0 {
			fmt.Fprintf(&sb, "- %d promotions in the last 30 days\n", c.RecentPromotions)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func writeBucket(sb *strings.Builder, label string, snaps []mastery.ConceptSnapshot) {
	if len(snaps) == 0 {
		return
	}
	parts := make([]string, len(snaps))
	for i, s := range snaps {
		parts[i] = ConceptLabel(s)
	}
	fmt.Fprintf(sb, "- %s: %s\n", label, strings.Join(parts, ", "))
}

// ConceptLabel renders a concept as "name (M%, exp:N, streak:N, last:Nd ago, obs:N)".
// The observation count is omitted when zero.
func ConceptLabel(s mastery.ConceptSnapshot) string {
	last := "never"
	if s.DaysSinceSeen != nil {
		last = fmt.Sprintf("%dd ago", *s.DaysSinceSeen)
	}
	label := fmt.Sprintf("%s (%d%%, exp:%d, streak:%d, last:%s", s.Name, s.MasteryPercent, s.ExposureCount, s.Streak, last)
	if s.ObservationCount > 0 {
		label += fmt.Sprintf(", obs:%d", s.ObservationCount)
	}
	return label + ")"
}

func skillContext(skill *models.SkillProgress) string {
	if skill == nil {
		return ""
	}
	if strings.TrimSpace(skill.TrainingContext) == "" {
		return fmt.Sprintf("## Skill: %s\n\nNo training context exists yet for this skill. Establish one during onboarding with set_training_context.", skill.SkillName)
	}
	return fmt.Sprintf("## Skill: %s\n\n%s", skill.SkillName, skill.TrainingContext)
}

func otherSkills(skills []OtherSkill) string {
	if len(skills) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Learner's Other Skills\n")
	for _, s := range skills {
		fmt.Fprintf(&sb, "- %s: %s belt\n", s.Name, s.Belt)
	}
	sb.WriteString("Treat self-reported levels that contradict these belts with light skepticism.")
	return sb.String()
}

func pastProblems(problems []PastProblem) string {
	if len(problems) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Past Problems (do not repeat)\n")
	for _, p := range problems {
		result := p.Correctness
		if result == "" {
			result = "in-progress"
		}
		concepts := "unspecified"
		if len(p.Concepts) > 0 {
			concepts = strings.Join(p.Concepts, ", ")
		}
		fmt.Fprintf(&sb, "- [%s] (%s) [%s]: %s\n", p.Date.Format("2006-01-02"), result, concepts, truncate(p.Prompt, maxProblemPrompt))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func joinSections(sections ...string) string {
	kept := sections[:0]
	for _, s := range sections {
		if strings.TrimSpace(s) != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, "\n\n")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
