package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tphummel/dcims/internal/models"
)

// ListProperties returns property definitions ordered by key. When
// activeOnly is set inactive definitions are left out.
func (d *DB) ListProperties(ctx context.Context, activeOnly bool) ([]*models.PropertyDefinition, error) {
	q := `SELECT key, name, property_type, options, active, created_at FROM property_definitions`
	if activeOnly {
		q += ` WHERE active = 1`
	}
	q += ` ORDER BY key`

	rows, err := d.conn.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var props []*models.PropertyDefinition
	for rows.Next() {
		var p models.PropertyDefinition
		var options, createdAt string
		var active int
		if err := rows.Scan(&p.Key, &p.Name, &p.PropertyType, &options, &active, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(options), &p.Options); err != nil {
			return nil, fmt.Errorf("decode options of %s: %w", p.Key, err)
		}
		p.Active = active == 1
		if p.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		props = append(props, &p)
	}
	return props, rows.Err()
}

// CreateProperty inserts a new definition. A key that is already defined
// yields ErrConflict.
func (d *DB) CreateProperty(ctx context.Context, p *models.PropertyDefinition) error {
	if p.Options == nil {
		p.Options = []string{}
	}
	options, err := json.Marshal(p.Options)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	active := 0
	if p.Active {
		active = 1
	}
	return d.withTx(ctx, func(tx *sql.Tx) error {
		var existing string
		err := tx.QueryRowContext(ctx, d.rebind(`SELECT key FROM property_definitions WHERE key = ?`), p.Key).Scan(&existing)
		switch {
		case err == nil:
			return fmt.Errorf("%w: property %q already exists", ErrConflict, p.Key)
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}
		_, err = tx.ExecContext(ctx, d.rebind(`
			INSERT INTO property_definitions (key, name, property_type, options, active, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`),
			p.Key, p.Name, p.PropertyType, string(options), active, formatTime(p.CreatedAt),
		)
		return err
	})
}

// DeleteProperty removes a definition. Returns sql.ErrNoRows if it does not exist.
func (d *DB) DeleteProperty(ctx context.Context, key string) error {
	res, err := d.conn.ExecContext(ctx, d.rebind(`DELETE FROM property_definitions WHERE key = ?`), key)
	if err != nil {
		return err
	}
	return rowsAffected(res)
}
