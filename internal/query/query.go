// Package query translates a widget's declarative data source into a
// parameterized SQL statement. Identifiers only ever come from the table
// whitelist below; every value is a bind parameter.
package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tphummel/dcims/internal/models"
)

var (
	// ErrUnknownTable is returned when a data source names a table that is
	// not exposed to widgets.
	ErrUnknownTable = errors.New("unknown table")
	// ErrUnknownField is returned for group-by or aggregated columns that
	// the table does not expose.
	ErrUnknownField = errors.New("unknown field")
	// ErrUnknownAggregation is returned for aggregation functions other
	// than count, sum, avg, min and max.
	ErrUnknownAggregation = errors.New("unknown aggregation")
	// ErrUnknownFilter is returned in strict mode for filters with an
	// unsupported field, operator or value.
	ErrUnknownFilter = errors.New("unknown filter")
	// ErrTooManyRows is returned when a widget query matches more rows than
	// its limit allows. The chart would otherwise be computed over a subset.
	ErrTooManyRows = errors.New("too many rows")
)

// MaxRows is the default number of rows a single widget query may aggregate.
const MaxRows = 50000

type columnKind int

const (
	kindText columnKind = iota
	kindNumber
	kindDate
)

type table struct {
	key     string
	orderBy string
	columns map[string]columnKind
}

var tables = map[string]table{
	"servers": {
		key:     "id",
		orderBy: "created_at, id",
		columns: map[string]columnKind{
			"id":               kindText,
			"hostname":         kindText,
			"serial_number":    kindText,
			"brand":            kindText,
			"model":            kindText,
			"ip_address":       kindText,
			"ip_oob":           kindText,
			"operating_system": kindText,
			"dc_site":          kindText,
			"dc_building":      kindText,
			"dc_floor":         kindText,
			"dc_room":          kindText,
			"rack":             kindText,
			"unit":             kindNumber,
			"device_type":      kindText,
			"allocation":       kindText,
			"environment":      kindText,
			"status":           kindText,
			"warranty":         kindDate,
			"created_at":       kindDate,
			"updated_at":       kindDate,
		},
	},
	"rack_metadata": {
		key:     "rack",
		orderBy: "rack",
		columns: map[string]columnKind{
			"rack":        kindText,
			"dc_site":     kindText,
			"dc_building": kindText,
			"dc_floor":    kindText,
			"dc_room":     kindText,
			"total_units": kindNumber,
			"description": kindText,
		},
	},
	"activity_logs": {
		key:     "id",
		orderBy: "created_at, id",
		columns: map[string]columnKind{
			"id":          kindText,
			"user_id":     kindText,
			"action":      kindText,
			"entity_type": kindText,
			"entity_id":   kindText,
			"created_at":  kindDate,
		},
	},
}

// HasColumn reports whether column may be referenced on tableName.
func HasColumn(tableName, column string) bool {
	t, ok := tables[tableName]
	if !ok {
		return false
	}
	_, ok = t.columns[column]
	return ok
}

// Options controls how unsupported filters are treated.
type Options struct {
	// Strict rejects filters with an unknown field, operator or malformed
	// value. When false such filters are skipped and listed in Query.Ignored.
	Strict bool
	// MaxRows caps the rows a query may aggregate. Zero means MaxRows.
	MaxRows int
}

// Query is a ready-to-run statement together with the shape of its rows.
type Query struct {
	Table       string
	SQL         string
	Args        []any
	Columns     []string
	GroupBy     []string
	Aggregation models.Aggregation
	Field       string
	Ignored     []models.FilterConfig
	// Limit is the most rows the chart may be built from. The statement
	// reads one more so that callers can tell when it was exceeded.
	Limit int
}

// Build resolves ds into a SELECT over the rows a widget aggregates. When the
// table is servers and sf is non-nil the enhanced server filters are applied
// on top of the basic filters.
func Build(ds models.DataSource, sf *models.ServerFilters, opts Options) (*Query, error) {
	t, ok := tables[ds.Table]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, ds.Table)
	}

	agg := ds.Aggregation
	if agg == "" {
		agg = models.AggregateCount
	}
	switch agg {
	case models.AggregateCount:
	case models.AggregateSum, models.AggregateAvg, models.AggregateMin, models.AggregateMax:
		if ds.Field == "" {
			return nil, fmt.Errorf("%w: %s requires a field", ErrUnknownField, agg)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAggregation, agg)
	}
	if ds.Field != "" {
		if _, ok := t.columns[ds.Field]; !ok {
			return nil, fmt.Errorf("%w: %q on %s", ErrUnknownField, ds.Field, ds.Table)
		}
	}
	for _, g := range ds.GroupBy {
		if _, ok := t.columns[g]; !ok {
			return nil, fmt.Errorf("%w: group by %q on %s", ErrUnknownField, g, ds.Table)
		}
	}

	var w where
	ignored, err := w.addBasic(t, ds.Filters, opts)
	if err != nil {
		return nil, err
	}
	if ds.Table == "servers" && sf != nil {
		skipped, err := w.addServerFilters(sf)
		if err != nil && opts.Strict {
			return nil, err
		}
		ignored = append(ignored, skipped...)
	}

	limit := opts.MaxRows
	if limit <= 0 {
		limit = MaxRows
	}

	cols := selectColumns(t.key, ds.GroupBy, ds.Field)
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(" FROM ")
	b.WriteString(ds.Table)
	b.WriteString(w.sql())
	b.WriteString(" ORDER BY ")
	b.WriteString(t.orderBy)
	fmt.Fprintf(&b, " LIMIT %d", limit+1)

	return &Query{
		Table:       ds.Table,
		SQL:         b.String(),
		Args:        w.args,
		Columns:     cols,
		GroupBy:     append([]string(nil), ds.GroupBy...),
		Aggregation: agg,
		Field:       ds.Field,
		Ignored:     ignored,
		Limit:       limit,
	}, nil
}

// ServerWhere renders the enhanced server filters as a WHERE clause (with a
// leading space, or empty) and its arguments. It is used by server listings.
func ServerWhere(sf *models.ServerFilters) (string, []any, error) {
	var w where
	if sf != nil {
		if _, err := w.addServerFilters(sf); err != nil {
			return "", nil, err
		}
	}
	return w.sql(), w.args, nil
}

func selectColumns(key string, groupBy []string, field string) []string {
	cols := []string{key}
	seen := map[string]bool{key: true}
	for _, c := range groupBy {
		if !seen[c] {
			cols = append(cols, c)
			seen[c] = true
		}
	}
	if field != "" && !seen[field] {
		cols = append(cols, field)
	}
	return cols
}
