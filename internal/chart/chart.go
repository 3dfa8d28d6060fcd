// Package chart reshapes aggregated rows into the payload consumed by chart
// widgets. Transform is pure: the same rows and configuration always yield
// the same payload, with labels in first-seen order.
package chart

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tphummel/dcims/internal/models"
)

// Palette is assigned round-robin to buckets.
var Palette = [10]string{
	"#3B82F6", "#10B981", "#F59E0B", "#EF4444", "#8B5CF6",
	"#EC4899", "#14B8A6", "#F97316", "#6366F1", "#84CC16",
}

// Labels used for special buckets.
const (
	UnknownLabel = "Unknown"
	TotalLabel   = "Total"
	NoDataLabel  = "No Data"
)

// Row is one flat record keyed by column name.
type Row map[string]any

// Transform aggregates rows into chart data. groupBy may hold zero, one or
// several columns; field is the column aggregated by sum, avg, min and max.
func Transform(rows []Row, groupBy []string, agg models.Aggregation, field string) models.ChartData {
	if len(rows) == 0 {
		return models.ChartData{
			Labels:   []string{},
			Datasets: []models.Dataset{{Label: NoDataLabel, Data: []float64{}}},
			Total:    0,
		}
	}
	if agg == "" {
		agg = models.AggregateCount
	}

	var total accumulator
	for _, r := range rows {
		total.add(r, field)
	}

	switch len(groupBy) {
	case 0:
		return models.ChartData{
			Labels: []string{TotalLabel},
			Datasets: []models.Dataset{{
				Label:           seriesLabel(agg, field),
				Data:            []float64{total.value(agg)},
				BackgroundColor: []string{Palette[0]},
			}},
			Total: total.value(agg),
		}
	case 1:
		return single(rows, groupBy[0], agg, field, total.value(agg))
	default:
		return multi(rows, groupBy, agg, field, total.value(agg))
	}
}

func single(rows []Row, group string, agg models.Aggregation, field string, total float64) models.ChartData {
	var (
		labels  []string
		buckets []*accumulator
		index   = map[string]int{}
	)
	for _, r := range rows {
		l := Label(r[group])
		i, ok := index[l]
		if !ok {
			i = len(labels)
			index[l] = i
			labels = append(labels, l)
			buckets = append(buckets, &accumulator{})
		}
		buckets[i].add(r, field)
	}

	data := make([]float64, len(buckets))
	colors := make([]string, len(buckets))
	for i, b := range buckets {
		data[i] = b.value(agg)
		colors[i] = Palette[i%len(Palette)]
	}
	return models.ChartData{
		Labels: labels,
		Datasets: []models.Dataset{{
			Label:           seriesLabel(agg, field),
			Data:            data,
			BackgroundColor: colors,
		}},
		Total: total,
	}
}

// multi groups by the first column for labels and by the remaining columns,
// joined with " / ", for datasets.
func multi(rows []Row, groupBy []string, agg models.Aggregation, field string, total float64) models.ChartData {
	var (
		labels     []string
		labelIndex = map[string]int{}
		series     []string
		seriesIdx  = map[string]int{}
		cells      []map[int]*accumulator
	)
	for _, r := range rows {
		l := Label(r[groupBy[0]])
		li, ok := labelIndex[l]
		if !ok {
			li = len(labels)
			labelIndex[l] = li
			labels = append(labels, l)
		}

		parts := make([]string, 0, len(groupBy)-1)
		for _, g := range groupBy[1:] {
			parts = append(parts, Label(r[g]))
		}
		s := strings.Join(parts, " / ")
		si, ok := seriesIdx[s]
		if !ok {
			si = len(series)
			seriesIdx[s] = si
			series = append(series, s)
			cells = append(cells, map[int]*accumulator{})
		}

		acc, ok := cells[si][li]
		if !ok {
			acc = &accumulator{}
			cells[si][li] = acc
		}
		acc.add(r, field)
	}

	datasets := make([]models.Dataset, len(series))
	for si, s := range series {
		color := Palette[si%len(Palette)]
		data := make([]float64, len(labels))
		colors := make([]string, len(labels))
		for li := range labels {
			if acc, ok := cells[si][li]; ok {
				data[li] = acc.value(agg)
			}
			colors[li] = color
		}
		datasets[si] = models.Dataset{Label: s, Data: data, BackgroundColor: colors}
	}
	return models.ChartData{Labels: labels, Datasets: datasets, Total: total}
}

func seriesLabel(agg models.Aggregation, field string) string {
	if agg == models.AggregateCount || field == "" {
		return "Count"
	}
	return strings.ToUpper(string(agg[:1])) + string(agg[1:]) + " of " + field
}

// Label renders a group-by value. Missing, null and empty values become
// UnknownLabel.
func Label(v any) string {
	switch x := v.(type) {
	case nil:
		return UnknownLabel
	case string:
		if strings.TrimSpace(x) == "" {
			return UnknownLabel
		}
		return x
	case []byte:
		if len(x) == 0 {
			return UnknownLabel
		}
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(models.DateLayout)
	}
	return fmt.Sprint(v)
}

type accumulator struct {
	count    int
	numeric  int
	sum      float64
	min, max float64
}

func (a *accumulator) add(r Row, field string) {
	a.count++
	if field == "" {
		return
	}
	n, ok := toFloat(r[field])
	if !ok {
		return
	}
	if a.numeric == 0 || n < a.min {
		a.min = n
	}
	if a.numeric == 0 || n > a.max {
		a.max = n
	}
	a.numeric++
	a.sum += n
}

func (a *accumulator) value(agg models.Aggregation) float64 {
	switch agg {
	case models.AggregateSum:
		return a.sum
	case models.AggregateAvg:
		if a.numeric == 0 {
			return 0
		}
		return math.Round(a.sum/float64(a.numeric)*100) / 100
	case models.AggregateMin:
		return a.min
	case models.AggregateMax:
		return a.max
	}
	return float64(a.count)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case float64:
		return x, true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return n, err == nil
	case []byte:
		n, err := strconv.ParseFloat(strings.TrimSpace(string(x)), 64)
		return n, err == nil
	}
	return 0, false
}
