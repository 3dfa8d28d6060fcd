package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tphummel/dcims/internal/models"
	"github.com/tphummel/dcims/internal/query"
)

const serverColumns = `id, hostname, serial_number, brand, model, ip_address, ip_oob, operating_system,
	dc_site, dc_building, dc_floor, dc_room, rack, unit, device_type, allocation, environment,
	status, warranty, notes, created_at, updated_at`

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// CreateServer inserts a new server record.
func (d *DB) CreateServer(ctx context.Context, s *models.Server) error {
	return d.insertServer(ctx, d.conn, s)
}

func (d *DB) insertServer(ctx context.Context, q queryer, s *models.Server) error {
	_, err := q.ExecContext(ctx, d.rebind(`
		INSERT INTO servers (`+serverColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		s.ID, s.Hostname, nullString(s.SerialNumber), nullString(s.Brand), nullString(s.Model),
		nullString(s.IPAddress), nullString(s.IPOOB), nullString(s.OperatingSystem),
		s.DCSite, nullString(s.DCBuilding), nullString(s.DCFloor), nullString(s.DCRoom),
		nullString(s.Rack), nullInt(s.Unit), s.DeviceType, nullString(s.Allocation),
		nullString(s.Environment), nullString(s.Status), nullString(s.Warranty), nullString(s.Notes),
		formatTime(s.CreatedAt), formatTime(s.UpdatedAt),
	)
	return err
}

// GetServer returns the server with the given ID, or sql.ErrNoRows if not found.
func (d *DB) GetServer(ctx context.Context, id string) (*models.Server, error) {
	row := d.conn.QueryRowContext(ctx, d.rebind(`SELECT `+serverColumns+` FROM servers WHERE id = ?`), id)
	return scanServer(row)
}

// ListServers returns the servers matching the enhanced filters, ordered by
// hostname. A nil filter lists every server.
func (d *DB) ListServers(ctx context.Context, f *models.ServerFilters) ([]*models.Server, error) {
	where, args, err := query.ServerWhere(f)
	if err != nil {
		return nil, err
	}
	rows, err := d.conn.QueryContext(ctx, d.rebind(`SELECT `+serverColumns+` FROM servers`+where+` ORDER BY hostname, id`), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var servers []*models.Server
	for rows.Next() {
		s, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, s)
	}
	return servers, rows.Err()
}

// UpdateServer replaces all mutable fields for the server with s.ID.
// Returns sql.ErrNoRows if no such server exists.
func (d *DB) UpdateServer(ctx context.Context, s *models.Server) error {
	res, err := d.conn.ExecContext(ctx, d.rebind(`
		UPDATE servers
		SET hostname=?, serial_number=?, brand=?, model=?, ip_address=?, ip_oob=?, operating_system=?,
			dc_site=?, dc_building=?, dc_floor=?, dc_room=?, rack=?, unit=?, device_type=?,
			allocation=?, environment=?, status=?, warranty=?, notes=?, updated_at=?
		WHERE id=?`),
		s.Hostname, nullString(s.SerialNumber), nullString(s.Brand), nullString(s.Model),
		nullString(s.IPAddress), nullString(s.IPOOB), nullString(s.OperatingSystem),
		s.DCSite, nullString(s.DCBuilding), nullString(s.DCFloor), nullString(s.DCRoom),
		nullString(s.Rack), nullInt(s.Unit), s.DeviceType, nullString(s.Allocation),
		nullString(s.Environment), nullString(s.Status), nullString(s.Warranty), nullString(s.Notes),
		formatTime(s.UpdatedAt),
		s.ID,
	)
	if err != nil {
		return err
	}
	return rowsAffected(res)
}

// DeleteServer removes the server with the given ID.
// Returns sql.ErrNoRows if no such server exists.
func (d *DB) DeleteServer(ctx context.Context, id string) error {
	res, err := d.conn.ExecContext(ctx, d.rebind(`DELETE FROM servers WHERE id = ?`), id)
	if err != nil {
		return err
	}
	return rowsAffected(res)
}

// CountServersByStatus returns the number of servers per status. Servers
// without a status are reported under the empty string.
func (d *DB) CountServersByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT COALESCE(status, ''), COUNT(*) FROM servers GROUP BY COALESCE(status, '')`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func scanServer(sc scanner) (*models.Server, error) {
	var s models.Server
	var serial, brand, model, ip, ipOOB, osName sql.NullString
	var building, floor, room, rack sql.NullString
	var allocation, environment, status, warranty, notes sql.NullString
	var unit sql.NullInt64
	var createdAt, updatedAt string
	if err := sc.Scan(
		&s.ID, &s.Hostname, &serial, &brand, &model, &ip, &ipOOB, &osName,
		&s.DCSite, &building, &floor, &room, &rack, &unit, &s.DeviceType,
		&allocation, &environment, &status, &warranty, &notes,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	s.SerialNumber = serial.String
	s.Brand = brand.String
	s.Model = model.String
	s.IPAddress = ip.String
	s.IPOOB = ipOOB.String
	s.OperatingSystem = osName.String
	s.DCBuilding = building.String
	s.DCFloor = floor.String
	s.DCRoom = room.String
	s.Rack = rack.String
	s.Allocation = allocation.String
	s.Environment = environment.String
	s.Status = status.String
	s.Warranty = warranty.String
	s.Notes = notes.String
	if unit.Valid {
		u := int(unit.Int64)
		s.Unit = &u
	}

	var err error
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateServers inserts each server independently and returns one error slot
// per input. A failed row does not stop the rows after it.
func (d *DB) CreateServers(ctx context.Context, servers []*models.Server) []error {
	errs := make([]error, len(servers))
	for i, s := range servers {
		if err := d.insertServer(ctx, d.conn, s); err != nil {
			errs[i] = fmt.Errorf("insert %s: %w", s.Hostname, err)
		}
	}
	return errs
}
