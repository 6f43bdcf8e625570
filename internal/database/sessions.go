package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/DannyMichaels/code-dojo-app/internal/storage"
	"github.com/DannyMichaels/code-dojo-app/pkg/models"
)

// CreateSession inserts a session.
func (d *Database) CreateSession(ctx context.Context, session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	res, err := d.db.ExecContext(ctx, d.q(`
		INSERT INTO sessions (id, skill_id, user_id, status, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`), session.ID, session.SkillID, session.UserID, string(session.Status), string(data),
		toUnix(session.CreatedAt), toUnix(session.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	} else if n == 0 {
		return fmt.Errorf("session %s: %w", session.ID, storage.ErrAlreadyExists)
	}
	return nil
}

// GetSession loads a session by ID.
func (d *Database) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var data string
	err := d.db.QueryRowContext(ctx, d.q(`SELECT data FROM sessions WHERE id = ?`), id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return decodeSession(data)
}

// SaveSession upserts a session.
func (d *Database) SaveSession(ctx context.Context, session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	_, err = d.db.ExecContext(ctx, d.q(`
		INSERT INTO sessions (id, skill_id, user_id, status, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			data = excluded.data,
			updated_at = excluded.updated_at
	`), session.ID, session.SkillID, session.UserID, string(session.Status), string(data),
		toUnix(session.CreatedAt), toUnix(session.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// ListSessions returns a skill's sessions, newest first.
func (d *Database) ListSessions(ctx context.Context, skillID string) ([]*models.Session, error) {
	rows, err := d.db.QueryContext(ctx, d.q(`
		SELECT data FROM sessions WHERE skill_id = ? ORDER BY created_at DESC, id DESC
	`), skillID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*models.Session, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s, err := decodeSession(data)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// CountSessions counts a skill's sessions that were not abandoned.
func (d *Database) CountSessions(ctx context.Context, skillID string) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx, d.q(`
		SELECT COUNT(*) FROM sessions WHERE skill_id = ? AND status <> ?
	`), skillID, string(models.SessionStatusAbandoned)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}

func decodeSession(data string) (*models.Session, error) {
	var s models.Session
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &s, nil
}
