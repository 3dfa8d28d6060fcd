package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tphummel/dcims/internal/models"
)

type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, args ...any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

var comparisons = map[models.Operator]string{
	models.OpGt:  ">",
	models.OpLt:  "<",
	models.OpGte: ">=",
	models.OpLte: "<=",
}

func (w *where) addBasic(t table, filters []models.FilterConfig, opts Options) ([]models.FilterConfig, error) {
	var ignored []models.FilterConfig
	for _, f := range filters {
		if err := w.addFilter(t, f); err != nil {
			if opts.Strict {
				return nil, err
			}
			ignored = append(ignored, f)
		}
	}
	return ignored, nil
}

func (w *where) addFilter(t table, f models.FilterConfig) error {
	kind, ok := t.columns[f.Field]
	if !ok {
		return fmt.Errorf("%w: field %q", ErrUnknownFilter, f.Field)
	}
	col := f.Field

	switch f.Operator {
	case models.OpEquals:
		if f.Value == nil {
			w.add(col + " IS NULL")
			return nil
		}
		v, err := scalar(kind, f.Value)
		if err != nil {
			return fmt.Errorf("%w: %s on %q: %v", ErrUnknownFilter, f.Operator, f.Field, err)
		}
		w.add(col+" = ?", v)

	case models.OpContains:
		v, err := scalar(kindText, f.Value)
		if err != nil {
			return fmt.Errorf("%w: %s on %q: %v", ErrUnknownFilter, f.Operator, f.Field, err)
		}
		pattern := "%" + escapeLike(strings.ToLower(v.(string))) + "%"
		w.add("LOWER(CAST("+col+" AS TEXT)) LIKE ? ESCAPE '\\'", pattern)

	case models.OpIn:
		values, ok := f.Value.([]any)
		if !ok {
			if strs, isStrs := f.Value.([]string); isStrs {
				for _, s := range strs {
					values = append(values, s)
				}
			} else {
				values = []any{f.Value}
			}
		}
		if len(values) == 0 {
			w.add("1 = 0")
			return nil
		}
		args := make([]any, 0, len(values))
		for _, raw := range values {
			v, err := scalar(kind, raw)
			if err != nil {
				return fmt.Errorf("%w: %s on %q: %v", ErrUnknownFilter, f.Operator, f.Field, err)
			}
			args = append(args, v)
		}
		w.add(col+" IN ("+strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")+")", args...)

	case models.OpGt, models.OpLt, models.OpGte, models.OpLte:
		op := comparisons[f.Operator]
		if n, isNum := numeric(f.Value); isNum {
			if kind == kindNumber {
				w.add(col+" "+op+" ?", n)
			} else {
				w.add("CAST("+col+" AS REAL) "+op+" ?", n)
			}
			return nil
		}
		v, err := scalar(kindText, f.Value)
		if err != nil {
			return fmt.Errorf("%w: %s on %q: %v", ErrUnknownFilter, f.Operator, f.Field, err)
		}
		w.add(col+" "+op+" ?", v)

	default:
		return fmt.Errorf("%w: operator %q", ErrUnknownFilter, f.Operator)
	}
	return nil
}

// addServerFilters applies every constrained enhanced filter. Filters with
// malformed values are skipped: they are returned as basic filters together
// with the joined problems.
func (w *where) addServerFilters(sf *models.ServerFilters) ([]models.FilterConfig, error) {
	servers := tables["servers"]
	var (
		skipped []models.FilterConfig
		errs    []error
	)

	for _, cv := range sf.Columns() {
		if IsUnconstrained(cv.Column, cv.Value) {
			continue
		}
		v, err := scalar(servers.columns[cv.Column], cv.Value)
		if err != nil {
			skipped = append(skipped, models.FilterConfig{Field: cv.Column, Operator: models.OpEquals, Value: cv.Value})
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrUnknownFilter, cv.Column, err))
			continue
		}
		w.add(cv.Column+" = ?", v)
	}

	ranges := []struct {
		name, value, cond string
		column            string
		op                models.Operator
		nextDay           bool
	}{
		{"warranty_from", sf.WarrantyFrom, "warranty >= ?", "warranty", models.OpGte, false},
		{"warranty_to", sf.WarrantyTo, "warranty <= ?", "warranty", models.OpLte, false},
		{"created_from", sf.CreatedFrom, "created_at >= ?", "created_at", models.OpGte, false},
		{"created_to", sf.CreatedTo, "created_at < ?", "created_at", models.OpLte, true},
	}
	for _, r := range ranges {
		if IsUnconstrained(r.name, r.value) {
			continue
		}
		d, err := time.Parse(models.DateLayout, strings.TrimSpace(r.value))
		if err != nil {
			skipped = append(skipped, models.FilterConfig{Field: r.column, Operator: r.op, Value: r.value})
			errs = append(errs, fmt.Errorf("%w: %s: %q is not a YYYY-MM-DD date", ErrUnknownFilter, r.name, r.value))
			continue
		}
		if r.nextDay {
			d = d.AddDate(0, 0, 1)
		}
		w.add(r.cond, d.Format(models.DateLayout))
	}
	return skipped, errors.Join(errs...)
}

// IsUnconstrained reports whether an enhanced filter value on column means
// "no constraint": empty, "all", or the column's "All <Field>" display label.
// Real values that merely start with "All " still constrain.
func IsUnconstrained(column, value string) bool {
	v := strings.TrimSpace(value)
	return v == "" || strings.EqualFold(v, "all") || strings.EqualFold(v, DisplayLabel(column))
}

var titleCaser = cases.Title(language.English)

// DisplayLabel renders the unconstrained option label for a column, for
// example "All Status" or "All Dc Site".
func DisplayLabel(column string) string {
	return "All " + titleCaser.String(strings.ReplaceAll(column, "_", " "))
}

// scalar converts a filter value to a bind argument of the column's kind.
func scalar(kind columnKind, v any) (any, error) {
	if kind == kindNumber {
		n, ok := numeric(v)
		if !ok {
			return nil, fmt.Errorf("%v is not a number", v)
		}
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return int64(n), nil
		}
		return n, nil
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case json.Number:
		return x.String(), nil
	case bool:
		return strconv.FormatBool(x), nil
	}
	return nil, fmt.Errorf("unsupported value %v", v)
}

// numeric reports whether v is a number or a string holding one.
func numeric(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		n, err := x.Float64()
		return n, err == nil
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return n, err == nil
	}
	return 0, false
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
