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

// CreateSkill inserts a skill. A second enrollment in the same skill name by
// the same learner fails with storage.ErrAlreadyExists.
func (d *Database) CreateSkill(ctx context.Context, skill *models.SkillProgress) error {
	data, err := json.Marshal(skill)
	if err != nil {
		return fmt.Errorf("failed to encode skill: %w", err)
	}

	res, err := d.db.ExecContext(ctx, d.q(`
		INSERT INTO skills (id, user_id, skill_name, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`), skill.ID, skill.UserID, skill.SkillName, string(data), toUnix(skill.CreatedAt), toUnix(skill.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create skill: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to create skill: %w", err)
	} else if n == 0 {
		return fmt.Errorf("skill %q for user %s: %w", skill.SkillName, skill.UserID, storage.ErrAlreadyExists)
	}
	return nil
}

// GetSkill loads a skill by ID.
func (d *Database) GetSkill(ctx context.Context, id string) (*models.SkillProgress, error) {
	var data string
	err := d.db.QueryRowContext(ctx, d.q(`SELECT data FROM skills WHERE id = ?`), id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("skill %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get skill: %w", err)
	}
	return decodeSkill(data)
}

// SaveSkill upserts a skill.
func (d *Database) SaveSkill(ctx context.Context, skill *models.SkillProgress) error {
	data, err := json.Marshal(skill)
	if err != nil {
		return fmt.Errorf("failed to encode skill: %w", err)
	}

	_, err = d.db.ExecContext(ctx, d.q(`
		INSERT INTO skills (id, user_id, skill_name, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`), skill.ID, skill.UserID, skill.SkillName, string(data), toUnix(skill.CreatedAt), toUnix(skill.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save skill: %w", err)
	}
	return nil
}

// DeleteSkill removes a skill together with its sessions and belt history.
func (d *Database) DeleteSkill(ctx context.Context, id string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, d.q(`DELETE FROM skills WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete skill: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("skill %s: %w", id, storage.ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, d.q(`DELETE FROM sessions WHERE skill_id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, d.q(`DELETE FROM belt_history WHERE skill_id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete belt history: %w", err)
	}
	return tx.Commit()
}

// ListSkills returns a learner's skills ordered by creation time.
func (d *Database) ListSkills(ctx context.Context, userID string) ([]*models.SkillProgress, error) {
	return d.querySkills(ctx, `SELECT data FROM skills WHERE user_id = ? ORDER BY created_at, id`, userID)
}

// ListSkillsByName returns every learner's record for one skill name.
func (d *Database) ListSkillsByName(ctx context.Context, skillName string) ([]*models.SkillProgress, error) {
	return d.querySkills(ctx, `SELECT data FROM skills WHERE skill_name = ? ORDER BY created_at, id`, skillName)
}

func (d *Database) querySkills(ctx context.Context, query string, args ...any) ([]*models.SkillProgress, error) {
	rows, err := d.db.QueryContext(ctx, d.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list skills: %w", err)
	}
	defer rows.Close()

	skills := make([]*models.SkillProgress, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan skill: %w", err)
		}
		skill, err := decodeSkill(data)
		if err != nil {
			return nil, err
		}
		skills = append(skills, skill)
	}
	return skills, rows.Err()
}

func decodeSkill(data string) (*models.SkillProgress, error) {
	var skill models.SkillProgress
	if err := json.Unmarshal([]byte(data), &skill); err != nil {
		return nil, fmt.Errorf("failed to decode skill: %w", err)
	}
	if skill.Concepts == nil {
		skill.Concepts = make(map[string]*models.ConceptRecord)
	}
	return &skill, nil
}
