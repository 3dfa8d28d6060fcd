package chart_test

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphummel/dcims/internal/chart"
	"github.com/tphummel/dcims/internal/models"
)

func statusRows(statuses ...any) []chart.Row {
	rows := make([]chart.Row, len(statuses))
	for i, s := range statuses {
		rows[i] = chart.Row{"id": i, "status": s}
	}
	return rows
}

func TestTransform_CountByStatus(t *testing.T) {
	got := chart.Transform(statusRows("Active", "Active", "Offline"), []string{"status"}, models.AggregateCount, "")

	want := models.ChartData{
		Labels: []string{"Active", "Offline"},
		Datasets: []models.Dataset{{
			Label:           "Count",
			Data:            []float64{2, 1},
			BackgroundColor: []string{chart.Palette[0], chart.Palette[1]},
		}},
		Total: 3,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Transform mismatch (-want +got):\n%s", diff)
	}
}

func TestTransform_EmptyRows(t *testing.T) {
	for _, groupBy := range [][]string{nil, {"status"}, {"dc_site", "status"}} {
		got := chart.Transform(nil, groupBy, models.AggregateSum, "unit")
		require.Len(t, got.Datasets, 1)
		assert.Equal(t, chart.NoDataLabel, got.Datasets[0].Label)
		assert.Empty(t, got.Datasets[0].Data)
		assert.Empty(t, got.Labels)
		assert.Zero(t, got.Total)

		b, err := json.Marshal(got)
		require.NoError(t, err)
		assert.JSONEq(t, `{"labels":[],"datasets":[{"label":"No Data","data":[]}],"total":0}`, string(b))
	}
}

func TestTransform_UnknownBucket(t *testing.T) {
	got := chart.Transform(statusRows("Active", nil, "", "Active", []byte(nil)), []string{"status"}, models.AggregateCount, "")
	assert.Equal(t, []string{"Active", chart.UnknownLabel}, got.Labels)
	assert.Equal(t, []float64{2, 3}, got.Datasets[0].Data)
}

func TestTransform_LabelCountEqualsDistinctValues(t *testing.T) {
	values := []any{"a", "b", nil, "c", "a", "d", "e", "f", "g", "h", "i", "j", "k", nil}
	got := chart.Transform(statusRows(values...), []string{"status"}, models.AggregateCount, "")

	distinct := map[string]bool{}
	for _, v := range values {
		distinct[chart.Label(v)] = true
	}
	assert.Len(t, got.Labels, len(distinct))
	assert.Equal(t, float64(len(values)), got.Total)

	// Colors cycle through the palette once buckets outnumber it.
	colors := got.Datasets[0].BackgroundColor
	require.Len(t, colors, len(distinct))
	assert.Equal(t, chart.Palette[0], colors[10])
}

func TestTransform_Ungrouped(t *testing.T) {
	got := chart.Transform(statusRows("Active", "Offline"), nil, models.AggregateCount, "")
	assert.Equal(t, []string{chart.TotalLabel}, got.Labels)
	assert.Equal(t, []float64{2}, got.Datasets[0].Data)
	assert.Equal(t, float64(2), got.Total)
}

func TestTransform_NumericAggregations(t *testing.T) {
	rows := []chart.Row{
		{"dc_site": "DC-East", "unit": int64(10)},
		{"dc_site": "DC-East", "unit": int64(20)},
		{"dc_site": "DC-West", "unit": "5"},
		{"dc_site": "DC-West", "unit": nil},
		{"dc_site": "DC-West", "unit": "n/a"},
	}
	tests := []struct {
		agg   models.Aggregation
		data  []float64
		total float64
		label string
	}{
		{models.AggregateSum, []float64{30, 5}, 35, "Sum of unit"},
		{models.AggregateAvg, []float64{15, 5}, 11.67, "Avg of unit"},
		{models.AggregateMin, []float64{10, 5}, 5, "Min of unit"},
		{models.AggregateMax, []float64{20, 5}, 20, "Max of unit"},
		{models.AggregateCount, []float64{2, 3}, 5, "Count"},
	}
	for _, tt := range tests {
		t.Run(string(tt.agg), func(t *testing.T) {
			got := chart.Transform(rows, []string{"dc_site"}, tt.agg, "unit")
			assert.Equal(t, []string{"DC-East", "DC-West"}, got.Labels)
			assert.Equal(t, tt.data, got.Datasets[0].Data)
			assert.Equal(t, tt.total, got.Total)
			assert.Equal(t, tt.label, got.Datasets[0].Label)
		})
	}
}

func TestTransform_MultiLevel(t *testing.T) {
	rows := []chart.Row{
		{"dc_site": "DC-East", "status": "Active"},
		{"dc_site": "DC-West", "status": "Offline"},
		{"dc_site": "DC-East", "status": "Offline"},
		{"dc_site": "DC-East", "status": "Active"},
	}
	got := chart.Transform(rows, []string{"dc_site", "status"}, models.AggregateCount, "")

	assert.Equal(t, []string{"DC-East", "DC-West"}, got.Labels)
	require.Len(t, got.Datasets, 2)
	assert.Equal(t, "Active", got.Datasets[0].Label)
	assert.Equal(t, []float64{2, 0}, got.Datasets[0].Data)
	assert.Equal(t, "Offline", got.Datasets[1].Label)
	assert.Equal(t, []float64{1, 1}, got.Datasets[1].Data)
	assert.Equal(t, float64(4), got.Total)
}

func TestTransform_ThreeLevelsJoinSeries(t *testing.T) {
	rows := []chart.Row{
		{"dc_site": "DC-East", "environment": "Production", "status": "Active"},
		{"dc_site": "DC-East", "environment": nil, "status": "Active"},
	}
	got := chart.Transform(rows, []string{"dc_site", "environment", "status"}, models.AggregateCount, "")
	require.Len(t, got.Datasets, 2)
	assert.Equal(t, "Production / Active", got.Datasets[0].Label)
	assert.Equal(t, "Unknown / Active", got.Datasets[1].Label)
}

func TestTransform_Idempotent(t *testing.T) {
	rows := []chart.Row{
		{"dc_site": "DC-East", "status": "Active", "unit": int64(4)},
		{"dc_site": "DC-West", "status": nil, "unit": int64(2)},
		{"dc_site": "DC-East", "status": "Offline", "unit": int64(8)},
	}
	for _, groupBy := range [][]string{nil, {"status"}, {"dc_site", "status"}} {
		first, err := json.Marshal(chart.Transform(rows, groupBy, models.AggregateAvg, "unit"))
		require.NoError(t, err)
		second, err := json.Marshal(chart.Transform(rows, groupBy, models.AggregateAvg, "unit"))
		require.NoError(t, err)
		assert.Equal(t, string(first), string(second))
	}
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "12", chart.Label(int64(12)))
	assert.Equal(t, "1.5", chart.Label(1.5))
	assert.Equal(t, "true", chart.Label(true))
	assert.Equal(t, chart.UnknownLabel, chart.Label("   "))
	assert.Equal(t, "R1", chart.Label([]byte("R1")))
}
