package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/tphummel/dcims/internal/models"
)

// locationColumns are the hierarchy columns shared by servers and rack_metadata.
var locationColumns = map[string]bool{
	"dc_site":     true,
	"dc_building": true,
	"dc_floor":    true,
	"dc_room":     true,
	"rack":        true,
}

// UpsertRack creates or replaces the metadata row for r.Rack.
func (d *DB) UpsertRack(ctx context.Context, r *models.RackLocation) error {
	if r.TotalUnits == 0 {
		r.TotalUnits = models.DefaultRackUnits
	}
	_, err := d.conn.ExecContext(ctx, d.rebind(`
		INSERT INTO rack_metadata (rack, dc_site, dc_building, dc_floor, dc_room, total_units, description, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (rack) DO UPDATE SET
			dc_site = excluded.dc_site,
			dc_building = excluded.dc_building,
			dc_floor = excluded.dc_floor,
			dc_room = excluded.dc_room,
			total_units = excluded.total_units,
			description = excluded.description,
			updated_at = excluded.updated_at`),
		r.Rack, r.DCSite, nullString(r.DCBuilding), nullString(r.DCFloor), nullString(r.DCRoom),
		r.TotalUnits, r.Description, formatTime(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert rack %s: %w", r.Rack, err)
	}
	return nil
}

// GetRack returns the recorded metadata for rack, or sql.ErrNoRows.
func (d *DB) GetRack(ctx context.Context, rack string) (*models.RackLocation, error) {
	var r models.RackLocation
	var building, floor, room sql.NullString
	var updatedAt string
	err := d.conn.QueryRowContext(ctx, d.rebind(`
		SELECT rack, dc_site, dc_building, dc_floor, dc_room, total_units, description, updated_at
		FROM rack_metadata WHERE rack = ?`), rack).
		Scan(&r.Rack, &r.DCSite, &building, &floor, &room, &r.TotalUnits, &r.Description, &updatedAt)
	if err != nil {
		return nil, err
	}
	r.DCBuilding = building.String
	r.DCFloor = floor.String
	r.DCRoom = room.String
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// RackLocationFromServers derives a rack's location from the servers mounted
// in it: the location reported by the most servers wins, ties broken by name.
// Returns sql.ErrNoRows when no server references the rack.
func (d *DB) RackLocationFromServers(ctx context.Context, rack string) (*models.RackLocation, error) {
	r := models.RackLocation{Rack: rack, TotalUnits: models.DefaultRackUnits}
	var n int
	err := d.conn.QueryRowContext(ctx, d.rebind(`
		SELECT dc_site, COALESCE(dc_building, ''), COALESCE(dc_floor, ''), COALESCE(dc_room, ''), COUNT(*) AS n
		FROM servers
		WHERE rack = ?
		GROUP BY dc_site, dc_building, dc_floor, dc_room
		ORDER BY n DESC, dc_site, dc_building, dc_floor, dc_room
		LIMIT 1`), rack).
		Scan(&r.DCSite, &r.DCBuilding, &r.DCFloor, &r.DCRoom, &n)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// LocationOptions returns the distinct non-empty values of column across
// servers and rack metadata, restricted by the given ancestor constraints and
// sorted ascending.
func (d *DB) LocationOptions(ctx context.Context, column string, constraints []models.ColumnValue) ([]string, error) {
	if !locationColumns[column] {
		return nil, fmt.Errorf("unknown location column %q", column)
	}
	var conds []string
	var args []any
	for _, c := range constraints {
		if !locationColumns[c.Column] {
			return nil, fmt.Errorf("unknown location column %q", c.Column)
		}
		if c.Value == "" {
			continue
		}
		conds = append(conds, c.Column+" = ?")
		args = append(args, c.Value)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	q := `SELECT v FROM (
			SELECT ` + column + ` AS v FROM servers` + where + `
			UNION
			SELECT ` + column + ` AS v FROM rack_metadata` + where + `
		) AS opts
		WHERE v IS NOT NULL AND v <> ''
		ORDER BY v`
	rows, err := d.conn.QueryContext(ctx, d.rebind(q), append(args, args...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	options := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		options = append(options, v)
	}
	return options, rows.Err()
}
