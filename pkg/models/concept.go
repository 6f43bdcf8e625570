package models

import (
	"strings"
	"time"
	"unicode"
)

// ConceptRecord tracks a learner's evidence for one concept within a skill.
type ConceptRecord struct {
	ExposureCount int        `json:"exposure_count"`
	SuccessCount  int        `json:"success_count"`
	LastSeen      *time.Time `json:"last_seen,omitempty"`
	Streak        int        `json:"streak"`
	Contexts      []string   `json:"contexts,omitempty"`
	BeltLevel     Belt       `json:"belt_level"`
	Observations  []string   `json:"observations,omitempty"`

	// Mastery is a cached display value. Scoring always recomputes.
	Mastery float64 `json:"mastery"`
}

// NewConceptRecord returns an empty record introduced at the given belt.
func NewConceptRecord(level Belt) *ConceptRecord {
	return &ConceptRecord{BeltLevel: level}
}

// RecordAttempt registers one exposure. A success extends the streak, a
// failure resets it.
func (c *ConceptRecord) RecordAttempt(success bool, context string, now time.Time) {
	c.ExposureCount++
	if success {
		c.SuccessCount++
		c.Streak++
	} else {
		c.Streak = 0
	}
	if c.SuccessCount > c.ExposureCount {
		c.SuccessCount = c.ExposureCount
	}
	seen := now
	c.LastSeen = &seen
	c.AddContext(context)
}

// AddContext records a distinct situation the concept was applied in.
func (c *ConceptRecord) AddContext(context string) bool {
	context = strings.TrimSpace(context)
	if context == "" {
		return false
	}
	for _, existing := range c.Contexts {
		if strings.EqualFold(existing, context) {
			return false
		}
	}
	c.Contexts = append(c.Contexts, context)
	return true
}

// AddObservation appends a free-text note.
func (c *ConceptRecord) AddObservation(note string) {
	note = strings.TrimSpace(note)
	if note == "" {
		return
	}
	c.Observations = append(c.Observations, note)
}

// DistinctContexts returns the number of distinct contexts seen.
func (c *ConceptRecord) DistinctContexts() int {
	return len(c.Contexts)
}

// Clone returns a deep copy.
func (c *ConceptRecord) Clone() *ConceptRecord {
	if c == nil {
		return nil
	}
	out := *c
	if c.LastSeen != nil {
		t := *c.LastSeen
		out.LastSeen = &t
	}
	out.Contexts = append([]string(nil), c.Contexts...)
	out.Observations = append([]string(nil), c.Observations...)
	return &out
}

// NormalizeConceptName case-folds a concept name and replaces whitespace runs
// with a single underscore, so "Error Handling" and "error_handling" share a key.
func NormalizeConceptName(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.TrimSpace(name) {
		if unicode.IsSpace(r) {
			pendingSep = true
			continue
		}
		if pendingSep {
			b.WriteByte('_')
			pendingSep = false
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
