package models

import (
	"sort"
	"time"
)

// Priority is the urgency attached to a reinforcement queue entry.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Rank orders priorities; higher is more urgent. Unknown values rank lowest.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p.Rank() > 0
}

// ReinforcementItem is a concept explicitly queued for revisit.
type ReinforcementItem struct {
	Concept         string   `json:"concept"`
	Context         *string  `json:"context,omitempty"`
	Priority        Priority `json:"priority"`
	Attempts        int      `json:"attempts"`
	SourceSessionID *string  `json:"source_session_id,omitempty"`
}

// SkillProgress is one learner's state for one skill.
type SkillProgress struct {
	ID                  string                    `json:"id"`
	UserID              string                    `json:"user_id"`
	SkillName           string                    `json:"skill_name"`
	TrainingContext     string                    `json:"training_context,omitempty"`
	CurrentBelt         Belt                      `json:"current_belt"`
	AssessmentAvailable bool                      `json:"assessment_available"`
	Concepts            map[string]*ConceptRecord `json:"concepts"`
	ReinforcementQueue  []ReinforcementItem       `json:"reinforcement_queue"`
	CreatedAt           time.Time                 `json:"created_at"`
	UpdatedAt           time.Time                 `json:"updated_at"`
}

// NewSkillProgress starts a learner at rank 0 with nothing tracked.
func NewSkillProgress(id, userID, skillName string, now time.Time) *SkillProgress {
	return &SkillProgress{
		ID:                 id,
		UserID:             userID,
		SkillName:          skillName,
		CurrentBelt:        BeltOrder[0],
		Concepts:           make(map[string]*ConceptRecord),
		ReinforcementQueue: []ReinforcementItem{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Concept looks up a concept by any spelling of its name.
func (s *SkillProgress) Concept(name string) (*ConceptRecord, bool) {
	rec, ok := s.Concepts[NormalizeConceptName(name)]
	return rec, ok
}

// UpsertConcept returns the record for name, creating it at level when absent.
// An invalid level falls back to the learner's current belt.
func (s *SkillProgress) UpsertConcept(name string, level Belt) (string, *ConceptRecord) {
	key := NormalizeConceptName(name)
	if s.Concepts == nil {
		s.Concepts = make(map[string]*ConceptRecord)
	}
	if rec, ok := s.Concepts[key]; ok {
		return key, rec
	}
	if !level.Valid() {
		level = s.CurrentBelt
	}
	rec := NewConceptRecord(level)
	s.Concepts[key] = rec
	return key, rec
}

// ConceptNames returns the tracked concept keys in sorted order.
func (s *SkillProgress) ConceptNames() []string {
	names := make([]string, 0, len(s.Concepts))
	for name := range s.Concepts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// QueueReinforcement adds a concept to the queue. Queueing a concept that is
// already present bumps its attempt count and keeps the more urgent priority.
func (s *SkillProgress) QueueReinforcement(concept string, priority Priority, context string, sessionID string) ReinforcementItem {
	key := NormalizeConceptName(concept)
	if !priority.Valid() {
		priority = PriorityMedium
	}
	for i := range s.ReinforcementQueue {
		item := &s.ReinforcementQueue[i]
		if NormalizeConceptName(item.Concept) != key {
			continue
		}
		item.Attempts++
		if priority.Rank() > item.Priority.Rank() {
			item.Priority = priority
		}
		if context != "" {
			item.Context = stringPtr(context)
		}
		return *item
	}
	item := ReinforcementItem{Concept: key, Priority: priority}
	if context != "" {
		item.Context = stringPtr(context)
	}
	if sessionID != "" {
		item.SourceSessionID = stringPtr(sessionID)
	}
	s.ReinforcementQueue = append(s.ReinforcementQueue, item)
	return item
}

// RemoveReinforcement drops a queued concept. It reports whether anything was removed.
func (s *SkillProgress) RemoveReinforcement(concept string) bool {
	key := NormalizeConceptName(concept)
	kept := s.ReinforcementQueue[:0]
	removed := false
	for _, item := range s.ReinforcementQueue {
		if NormalizeConceptName(item.Concept) == key {
			removed = true
			continue
		}
		kept = append(kept, item)
	}
	s.ReinforcementQueue = kept
	return removed
}

// Clone returns a deep copy.
func (s *SkillProgress) Clone() *SkillProgress {
	if s == nil {
		return nil
	}
	out := *s
	out.Concepts = make(map[string]*ConceptRecord, len(s.Concepts))
	for k, v := range s.Concepts {
		out.Concepts[k] = v.Clone()
	}
	out.ReinforcementQueue = make([]ReinforcementItem, len(s.ReinforcementQueue))
	for i, item := range s.ReinforcementQueue {
		if item.Context != nil {
			item.Context = stringPtr(*item.Context)
		}
		if item.SourceSessionID != nil {
			item.SourceSessionID = stringPtr(*item.SourceSessionID)
		}
		out.ReinforcementQueue[i] = item
	}
	return &out
}

// BeltHistoryEntry is an immutable record of a rank change.
type BeltHistoryEntry struct {
	ID         string    `json:"id"`
	SkillID    string    `json:"skill_id"`
	UserID     string    `json:"user_id"`
	FromBelt   *Belt     `json:"from_belt"`
	ToBelt     Belt      `json:"to_belt"`
	AchievedAt time.Time `json:"achieved_at"`
	SessionID  *string   `json:"session_id,omitempty"`
}

// IsPromotion reports whether the entry moved the learner up from an earlier belt,
// as opposed to the enrollment entry.
func (e BeltHistoryEntry) IsPromotion() bool {
	return e.FromBelt != nil
}

func stringPtr(s string) *string {
	return &s
}
