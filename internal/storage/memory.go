package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/DannyMichaels/code-dojo-app/pkg/models"
)

// Memory is an in-memory Store. Records are copied on the way in and out.
type Memory struct {
	skills   map[string]*models.SkillProgress
	sessions map[string]*models.Session
	history  map[string][]*models.BeltHistoryEntry
	mu       sync.RWMutex
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		skills:   make(map[string]*models.SkillProgress),
		sessions: make(map[string]*models.Session),
		history:  make(map[string][]*models.BeltHistoryEntry),
	}
}

// CreateSkill inserts a new skill record.
func (m *Memory) CreateSkill(_ context.Context, skill *models.SkillProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.skills[skill.ID]; ok {
		return fmt.Errorf("skill %s: %w", skill.ID, ErrAlreadyExists)
	}
	for _, existing := range m.skills {
		if existing.UserID == skill.UserID && existing.SkillName == skill.SkillName {
			return fmt.Errorf("skill %q for user %s: %w", skill.SkillName, skill.UserID, ErrAlreadyExists)
		}
	}
	m.skills[skill.ID] = skill.Clone()
	return nil
}

// GetSkill returns a copy of the skill.
func (m *Memory) GetSkill(_ context.Context, id string) (*models.SkillProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	skill, ok := m.skills[id]
	if !ok {
		return nil, fmt.Errorf("skill %s: %w", id, ErrNotFound)
	}
	return skill.Clone(), nil
}

// SaveSkill upserts the skill.
func (m *Memory) SaveSkill(_ context.Context, skill *models.SkillProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.skills[skill.ID] = skill.Clone()
	return nil
}

// DeleteSkill removes the skill, its sessions and history.
func (m *Memory) DeleteSkill(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.skills[id]; !ok {
		return fmt.Errorf("skill %s: %w", id, ErrNotFound)
	}
	delete(m.skills, id)
	delete(m.history, id)
	for sid, s := range m.sessions {
		if s.SkillID == id {
			delete(m.sessions, sid)
		}
	}
	return nil
}

// ListSkills returns a learner's skills ordered by creation time.
func (m *Memory) ListSkills(_ context.Context, userID string) ([]*models.SkillProgress, error) {
	return m.filterSkills(func(s *models.SkillProgress) bool { return s.UserID == userID }), nil
}

// ListSkillsByName returns every learner's record for a skill name.
func (m *Memory) ListSkillsByName(_ context.Context, skillName string) ([]*models.SkillProgress, error) {
	return m.filterSkills(func(s *models.SkillProgress) bool { return s.SkillName == skillName }), nil
}

func (m *Memory) filterSkills(keep func(*models.SkillProgress) bool) []*models.SkillProgress {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.SkillProgress, 0)
	for _, s := range m.skills {
		if keep(s) {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// CreateSession inserts a new session.
func (m *Memory) CreateSession(_ context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[session.ID]; ok {
		return fmt.Errorf("session %s: %w", session.ID, ErrAlreadyExists)
	}
	m.sessions[session.ID] = session.Clone()
	return nil
}

// GetSession returns a copy of the session.
func (m *Memory) GetSession(_ context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return s.Clone(), nil
}

// SaveSession upserts the session.
func (m *Memory) SaveSession(_ context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[session.ID] = session.Clone()
	return nil
}

// ListSessions returns a skill's sessions, newest first.
func (m *Memory) ListSessions(_ context.Context, skillID string) ([]*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Session, 0)
	for _, s := range m.sessions {
		if s.SkillID == skillID {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// CountSessions counts a skill's non-abandoned sessions.
func (m *Memory) CountSessions(_ context.Context, skillID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, s := range m.sessions {
		if s.SkillID == skillID && s.Status != models.SessionStatusAbandoned {
			n++
		}
	}
	return n, nil
}

// AppendBeltHistory appends an entry.
func (m *Memory) AppendBeltHistory(_ context.Context, entry *models.BeltHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.history[entry.SkillID] {
		if e.ID == entry.ID {
			return fmt.Errorf("belt history %s: %w", entry.ID, ErrAlreadyExists)
		}
	}
	cp := *entry
	m.history[entry.SkillID] = append(m.history[entry.SkillID], &cp)
	return nil
}

// ListBeltHistory returns a skill's entries, oldest first.
func (m *Memory) ListBeltHistory(_ context.Context, skillID string) ([]*models.BeltHistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.history[skillID]
	out := make([]*models.BeltHistoryEntry, len(entries))
	for i, e := range entries {
		cp := *e
		out[i] = &cp
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AchievedAt.Before(out[j].AchievedAt)
	})
	return out, nil
}

var _ Store = (*Memory)(nil)
