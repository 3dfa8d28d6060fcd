package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tphummel/dcims/internal/models"
)

const enumColorColumns = `id, category, value, color, user_id, created_at, updated_at`

// ListEnumColors returns the effective color mappings for userID: global
// mappings with the user's own mappings taking their place where both exist.
// An empty category lists every category.
func (d *DB) ListEnumColors(ctx context.Context, category, userID string) ([]*models.EnumColor, error) {
	q := `SELECT ` + enumColorColumns + ` FROM enum_colors WHERE (user_id = '' OR user_id = ?)`
	args := []any{userID}
	if category != "" {
		q += ` AND category = ?`
		args = append(args, category)
	}
	q += ` ORDER BY category, value, user_id`

	rows, err := d.conn.QueryContext(ctx, d.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var colors []*models.EnumColor
	index := map[string]int{}
	for rows.Next() {
		c, err := scanEnumColor(rows)
		if err != nil {
			return nil, err
		}
		key := c.Category + "\x00" + c.Value
		if i, ok := index[key]; ok {
			// Rows are ordered with the global mapping first.
			if c.UserID != "" {
				colors[i] = c
			}
			continue
		}
		index[key] = len(colors)
		colors = append(colors, c)
	}
	return colors, rows.Err()
}

// UpsertEnumColor creates or replaces the mapping for (category, value,
// user). On return c carries the stored id and creation time.
func (d *DB) UpsertEnumColor(ctx context.Context, c *models.EnumColor) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, d.rebind(`
			INSERT INTO enum_colors (`+enumColorColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (category, value, user_id)
			DO UPDATE SET color = excluded.color, updated_at = excluded.updated_at`),
			c.ID, c.Category, c.Value, c.Color, c.UserID,
			formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("upsert enum color: %w", err)
		}
		row := tx.QueryRowContext(ctx, d.rebind(`
			SELECT `+enumColorColumns+` FROM enum_colors
			WHERE category = ? AND value = ? AND user_id = ?`),
			c.Category, c.Value, c.UserID)
		stored, err := scanEnumColor(row)
		if err != nil {
			return err
		}
		*c = *stored
		return nil
	})
}

// GetEnumColor returns the mapping with the given id, or sql.ErrNoRows.
func (d *DB) GetEnumColor(ctx context.Context, id string) (*models.EnumColor, error) {
	row := d.conn.QueryRowContext(ctx, d.rebind(`SELECT `+enumColorColumns+` FROM enum_colors WHERE id = ?`), id)
	return scanEnumColor(row)
}

// DeleteEnumColor removes one mapping. Returns sql.ErrNoRows if it does not exist.
func (d *DB) DeleteEnumColor(ctx context.Context, id string) error {
	res, err := d.conn.ExecContext(ctx, d.rebind(`DELETE FROM enum_colors WHERE id = ?`), id)
	if err != nil {
		return err
	}
	return rowsAffected(res)
}

func scanEnumColor(sc scanner) (*models.EnumColor, error) {
	var c models.EnumColor
	var createdAt, updatedAt string
	if err := sc.Scan(&c.ID, &c.Category, &c.Value, &c.Color, &c.UserID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
