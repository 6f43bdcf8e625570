package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/DannyMichaels/code-dojo-app/internal/storage"
	"github.com/DannyMichaels/code-dojo-app/pkg/models"
)

// AppendBeltHistory records a belt change.
func (d *Database) AppendBeltHistory(ctx context.Context, entry *models.BeltHistoryEntry) error {
	var from sql.NullString
	if entry.FromBelt != nil {
		from = sql.NullString{String: string(*entry.FromBelt), Valid: true}
	}

	res, err := d.db.ExecContext(ctx, d.q(`
		INSERT INTO belt_history (id, skill_id, user_id, from_belt, to_belt, achieved_at, session_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`), entry.ID, entry.SkillID, entry.UserID, from, string(entry.ToBelt), toUnix(entry.AchievedAt), nullString(entry.SessionID))
	if err != nil {
		return fmt.Errorf("failed to append belt history: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("belt history %s: %w", entry.ID, storage.ErrAlreadyExists)
	}
	return nil
}

// ListBeltHistory returns a skill's belt changes, oldest first.
func (d *Database) ListBeltHistory(ctx context.Context, skillID string) ([]*models.BeltHistoryEntry, error) {
	rows, err := d.db.QueryContext(ctx, d.q(`
		SELECT id, skill_id, user_id, from_belt, to_belt, achieved_at, session_id
		FROM belt_history WHERE skill_id = ?
		ORDER BY achieved_at
	`), skillID)
	if err != nil {
		return nil, fmt.Errorf("failed to list belt history: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.BeltHistoryEntry, 0)
	for rows.Next() {
		var (
			e          models.BeltHistoryEntry
			from, sess sql.NullString
			toBelt     string
			achievedAt int64
		)
		if err := rows.Scan(&e.ID, &e.SkillID, &e.UserID, &from, &toBelt, &achievedAt, &sess); err != nil {
			return nil, fmt.Errorf("failed to scan belt history: %w", err)
		}
		e.ToBelt = models.Belt(toBelt)
		e.AchievedAt = fromUnix(achievedAt)
		if from.Valid {
			b := models.Belt(from.String)
			e.FromBelt = &b
		}
		if sess.Valid {
			s := sess.String
			e.SessionID = &s
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

var _ storage.Store = (*Database)(nil)
