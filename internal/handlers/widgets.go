package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/tphummel/dcims/internal/chart"
	"github.com/tphummel/dcims/internal/metrics"
	"github.com/tphummel/dcims/internal/models"
	"github.com/tphummel/dcims/internal/query"
)

// widgetData is a chart payload plus any filters skipped in lenient mode.
type widgetData struct {
	models.ChartData
	IgnoredFilters []models.FilterConfig `json:"ignored_filters,omitempty"`
}

// widgetDataRequest is the body of POST /api/v1/widgets/data.
type widgetDataRequest struct {
	DataSource *models.DataSource    `json:"data_source"`
	Filters    *models.ServerFilters `json:"filters"`
}

// chartData runs the widget pipeline: filter translation, aggregation query
// and chart transform.
func (h *Handler) chartData(ctx context.Context, ds models.DataSource, sf *models.ServerFilters) (*widgetData, error) {
	start := h.Clock.Now()
	q, err := query.Build(ds, sf, query.Options{Strict: h.Strict, MaxRows: h.MaxWidgetRows})
	if err != nil {
		return nil, err
	}
	rows, err := h.DB.RunQuery(ctx, q)
	if err != nil {
		return nil, err
	}
	metrics.ObserveWidgetQuery(q.Table, len(rows), h.Clock.Since(start))
	metrics.AddIgnoredFilters(len(q.Ignored))

	return &widgetData{
		ChartData:      chart.Transform(rows, q.GroupBy, q.Aggregation, q.Field),
		IgnoredFilters: q.Ignored,
	}, nil
}

// isQueryError reports whether err describes a bad data source rather than a
// store failure.
func isQueryError(err error) bool {
	for _, target := range []error{
		query.ErrUnknownTable, query.ErrUnknownField,
		query.ErrUnknownAggregation, query.ErrUnknownFilter,
		query.ErrTooManyRows,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (h *Handler) writeChart(w http.ResponseWriter, r *http.Request, ds models.DataSource, sf *models.ServerFilters) {
	data, err := h.chartData(r.Context(), ds, sf)
	if isQueryError(err) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		internalError(w, r, "failed to load widget data", err)
		return
	}
	writeData(w, http.StatusOK, data)
}

// WidgetData handles GET /api/v1/dashboards/{id}/widgets/{widgetID}/data.
// Server-column query parameters narrow the widget's own filters.
func (h *Handler) WidgetData(w http.ResponseWriter, r *http.Request) {
	dash := h.loadDashboard(w, r, r.PathValue("id"), userOf(r))
	if dash == nil {
		return
	}
	widgetID := r.PathValue("widgetID")
	for _, wd := range dash.Widgets {
		if wd.ID != widgetID {
			continue
		}
		ds := wd.DataSource
		if ds == nil {
			ds = models.DefaultDataSource()
		}
		h.writeChart(w, r, *ds, models.ServerFiltersFromQuery(r.URL.Query()))
		return
	}
	writeError(w, http.StatusNotFound, "widget not found")
}

// QueryWidgetData handles POST /api/v1/widgets/data for unsaved widgets.
func (h *Handler) QueryWidgetData(w http.ResponseWriter, r *http.Request) {
	var req widgetDataRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.DataSource == nil {
		writeError(w, http.StatusBadRequest, "data_source is required")
		return
	}
	h.writeChart(w, r, *req.DataSource, req.Filters)
}
