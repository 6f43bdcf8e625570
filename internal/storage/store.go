// Package storage defines the persistence boundary for skills, sessions and
// belt history, plus an in-memory implementation.
//
// Every write is an atomic upsert of a single record. Callers never rely on
// transactions spanning more than one record.
package storage

import (
	"context"
	"errors"

	"github.com/DannyMichaels/code-dojo-app/pkg/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when creating a record that already exists.
	ErrAlreadyExists = errors.New("already exists")
)

// SkillStore persists per-learner skill progress.
type SkillStore interface {
	// CreateSkill inserts a new record. A learner may enroll in a skill name once.
	CreateSkill(ctx context.Context, skill *models.SkillProgress) error
	GetSkill(ctx context.Context, id string) (*models.SkillProgress, error)
	SaveSkill(ctx context.Context, skill *models.SkillProgress) error
	// DeleteSkill removes the skill with its sessions and belt history.
	DeleteSkill(ctx context.Context, id string) error
	ListSkills(ctx context.Context, userID string) ([]*models.SkillProgress, error)
	ListSkillsByName(ctx context.Context, skillName string) ([]*models.SkillProgress, error)
}

// SessionStore persists sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	SaveSession(ctx context.Context, session *models.Session) error
	// ListSessions returns a skill's sessions, newest first.
	ListSessions(ctx context.Context, skillID string) ([]*models.Session, error)
	// CountSessions counts a skill's sessions that were not abandoned.
	CountSessions(ctx context.Context, skillID string) (int, error)
}

// HistoryStore persists belt history. Entries are never modified.
type HistoryStore interface {
	AppendBeltHistory(ctx context.Context, entry *models.BeltHistoryEntry) error
	// ListBeltHistory returns a skill's entries, oldest first.
	ListBeltHistory(ctx context.Context, skillID string) ([]*models.BeltHistoryEntry, error)
}

// Store is the full persistence boundary.
type Store interface {
	SkillStore
	SessionStore
	HistoryStore
}
