package db

import (
	"context"

	"github.com/tphummel/dcims/internal/models"
)

// DefaultActivityLimit bounds ListActivity when no limit is given.
const DefaultActivityLimit = 100

// InsertActivity appends one activity log entry.
func (d *DB) InsertActivity(ctx context.Context, a *models.ActivityLog) error {
	_, err := d.conn.ExecContext(ctx, d.rebind(`
		INSERT INTO activity_logs (id, user_id, action, entity_type, entity_id, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		a.ID, a.UserID, a.Action, a.EntityType, a.EntityID,
		string(jsonOr(a.Details, "{}")), formatTime(a.CreatedAt),
	)
	return err
}

// ListActivity returns the newest entries first. entityType, when set,
// restricts the result to one kind of entity.
func (d *DB) ListActivity(ctx context.Context, entityType string, limit int) ([]*models.ActivityLog, error) {
	if limit <= 0 {
		limit = DefaultActivityLimit
	}
	q := `SELECT id, user_id, action, entity_type, entity_id, details, created_at FROM activity_logs`
	var args []any
	if entityType != "" {
		q += ` WHERE entity_type = ?`
		args = append(args, entityType)
	}
	q += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.conn.QueryContext(ctx, d.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*models.ActivityLog
	for rows.Next() {
		var a models.ActivityLog
		var details, createdAt string
		if err := rows.Scan(&a.ID, &a.UserID, &a.Action, &a.EntityType, &a.EntityID, &details, &createdAt); err != nil {
			return nil, err
		}
		a.Details = []byte(details)
		if a.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		logs = append(logs, &a)
	}
	return logs, rows.Err()
}
