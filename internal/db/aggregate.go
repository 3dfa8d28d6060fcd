package db

import (
	"context"
	"fmt"

	"github.com/tphummel/dcims/internal/chart"
	"github.com/tphummel/dcims/internal/query"
)

// RunQuery executes a built widget query and returns its rows keyed by
// column name, in statement order. It returns query.ErrTooManyRows when more
// than q.Limit rows match.
func (d *DB) RunQuery(ctx context.Context, q *query.Query) ([]chart.Row, error) {
	rows, err := d.conn.QueryContext(ctx, d.rebind(q.SQL), q.Args...)
	if err != nil {
		return nil, fmt.Errorf("widget query on %s: %w", q.Table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []chart.Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		r := make(chart.Row, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				r[c] = string(b)
				continue
			}
			r[c] = values[i]
		}
		out = append(out, r)
		if q.Limit > 0 && len(out) > q.Limit {
			return nil, fmt.Errorf("%w: widget query on %s matches more than %d rows; narrow its filters",
				query.ErrTooManyRows, q.Table, q.Limit)
		}
	}
	return out, rows.Err()
}
