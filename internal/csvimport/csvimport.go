// Package csvimport reads and writes server inventories as CSV. Rows are
// validated one by one: a bad row is reported and skipped, the rest proceed.
package csvimport

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tphummel/dcims/internal/models"
)

// RequiredColumns must all be present in the header.
var RequiredColumns = []string{"hostname", "dc_site", "device_type"}

// Columns is the full column set, in export order.
var Columns = []string{
	"hostname", "dc_site", "device_type",
	"serial_number", "brand", "model", "ip_address", "ip_oob", "operating_system",
	"dc_building", "dc_floor", "dc_room", "rack", "unit",
	"allocation", "environment", "status", "warranty", "notes",
}

// ErrMissingColumns rejects a file whose header lacks a required column.
var ErrMissingColumns = errors.New("missing required columns")

// Row is one parsed data row. Line counts data rows from 1.
type Row struct {
	Line     int
	Server   *models.Server
	Problems []string
}

// Result summarizes an import.
type Result struct {
	Imported int      `json:"imported"`
	Errors   []string `json:"errors"`
}

// Parse reads the header and every data row. Header names are matched
// case-insensitively; unknown columns are ignored. Only a missing required
// column or an unreadable header fails the whole parse.
func Parse(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s (empty file)", ErrMissingColumns, strings.Join(RequiredColumns, ", "))
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := map[string]int{}
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		h = strings.ToLower(strings.TrimSpace(h))
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}
	var missing []string
	for _, c := range RequiredColumns {
		if _, ok := index[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	var rows []Row
	for line := 1; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			rows = append(rows, Row{Line: line, Problems: []string{"Malformed CSV: " + pe.Err.Error()}})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}
		rows = append(rows, parseRecord(line, record, index))
	}
	return rows, nil
}

func parseRecord(line int, record []string, index map[string]int) Row {
	get := func(col string) string {
		i, ok := index[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	s := &models.Server{
		Hostname:        get("hostname"),
		DCSite:          get("dc_site"),
		DeviceType:      get("device_type"),
		SerialNumber:    get("serial_number"),
		Brand:           get("brand"),
		Model:           get("model"),
		IPAddress:       get("ip_address"),
		IPOOB:           get("ip_oob"),
		OperatingSystem: get("operating_system"),
		DCBuilding:      get("dc_building"),
		DCFloor:         get("dc_floor"),
		DCRoom:          get("dc_room"),
		Rack:            get("rack"),
		Allocation:      get("allocation"),
		Environment:     get("environment"),
		Status:          get("status"),
		Warranty:        get("warranty"),
		Notes:           get("notes"),
	}

	var problems []string
	if raw := get("unit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("Invalid unit %q (expected 1-%d)", raw, models.MaxUnit))
		} else {
			s.Unit = &n
		}
	}
	s.Normalize()
	problems = append(s.Validate(), problems...)
	return Row{Line: line, Server: s, Problems: problems}
}

// Inserter stores servers, reporting one error slot per server.
type Inserter interface {
	CreateServers(ctx context.Context, servers []*models.Server) []error
}

// Import parses r and stores every valid row with a fresh id and the given
// timestamp. Row problems are reported as "Row N: ..." in Result.Errors.
func Import(ctx context.Context, r io.Reader, store Inserter, now time.Time) (*Result, error) {
	rows, err := Parse(r)
	if err != nil {
		return nil, err
	}

	res := &Result{Errors: []string{}}
	var valid []*models.Server
	var lines []int
	for _, row := range rows {
		if len(row.Problems) > 0 {
			res.Errors = append(res.Errors, fmt.Sprintf("Row %d: %s", row.Line, strings.Join(row.Problems, "; ")))
			continue
		}
		row.Server.ID = uuid.New().String()
		row.Server.CreatedAt = now
		row.Server.UpdatedAt = now
		valid = append(valid, row.Server)
		lines = append(lines, row.Line)
	}
	if len(valid) == 0 {
		return res, nil
	}

	for i, err := range store.CreateServers(ctx, valid) {
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("Row %d: %v", lines[i], err))
			continue
		}
		res.Imported++
	}
	return res, nil
}

// Export writes servers as CSV with a header of Columns.
func Export(w io.Writer, servers []*models.Server) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, s := range servers {
		unit := ""
		if s.Unit != nil {
			unit = strconv.Itoa(*s.Unit)
		}
		record := []string{
			s.Hostname, s.DCSite, s.DeviceType,
			s.SerialNumber, s.Brand, s.Model, s.IPAddress, s.IPOOB, s.OperatingSystem,
			s.DCBuilding, s.DCFloor, s.DCRoom, s.Rack, unit,
			s.Allocation, s.Environment, s.Status, s.Warranty, s.Notes,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
