package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tphummel/dcims/internal/models"
)

// GetUserRole returns the role granted to userID. Users without a grant,
// anonymous callers included, are viewers.
func (d *DB) GetUserRole(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return models.RoleViewer, nil
	}
	var role string
	err := d.conn.QueryRowContext(ctx, d.rebind(`SELECT role FROM user_roles WHERE user_id = ?`), userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RoleViewer, nil
	}
	if err != nil {
		return "", err
	}
	return role, nil
}

// SetUserRole grants role to userID, replacing any previous grant.
func (d *DB) SetUserRole(ctx context.Context, userID, role string, at time.Time) error {
	if !models.ValidRoles[role] {
		return fmt.Errorf("invalid role %q", role)
	}
	_, err := d.conn.ExecContext(ctx, d.rebind(`
		INSERT INTO user_roles (user_id, role, created_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET role = excluded.role`),
		userID, role, formatTime(at),
	)
	return err
}

// GetFilterPreference returns the saved server filters for userID. A user
// with nothing saved gets empty filters.
func (d *DB) GetFilterPreference(ctx context.Context, userID string) (*models.ServerFilters, error) {
	var raw string
	err := d.conn.QueryRowContext(ctx, d.rebind(`SELECT filters FROM user_preferences WHERE user_id = ?`), userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.ServerFilters{}, nil
	}
	if err != nil {
		return nil, err
	}
	var f models.ServerFilters
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return nil, fmt.Errorf("decode filter preference: %w", err)
	}
	return &f, nil
}

// SetFilterPreference saves f as the server filters for userID.
func (d *DB) SetFilterPreference(ctx context.Context, userID string, f *models.ServerFilters, at time.Time) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode filter preference: %w", err)
	}
	_, err = d.conn.ExecContext(ctx, d.rebind(`
		INSERT INTO user_preferences (user_id, filters, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET filters = excluded.filters, updated_at = excluded.updated_at`),
		userID, string(raw), formatTime(at),
	)
	return err
}
