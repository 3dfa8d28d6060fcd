package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Dashboard visibility values.
const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// Dashboard lifecycle status values.
const (
	DashboardActive   = "active"
	DashboardArchived = "archived"
	DashboardDraft    = "draft"
)

// ValidVisibilities and ValidDashboardStatuses are the accepted dashboard enums.
var (
	ValidVisibilities      = map[string]bool{VisibilityPublic: true, VisibilityPrivate: true}
	ValidDashboardStatuses = map[string]bool{DashboardActive: true, DashboardArchived: true, DashboardDraft: true}
)

// Dashboard is a named, owned collection of widgets. Version increases by one
// on every successful update and guards against concurrent overwrites.
type Dashboard struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	OwnerID     string          `json:"owner_id"`
	Visibility  string          `json:"visibility"`
	Status      string          `json:"status"`
	Layout      json.RawMessage `json:"layout"`
	Settings    json.RawMessage `json:"settings"`
	Version     int             `json:"version"`
	Widgets     []*Widget       `json:"widgets,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// VisibleTo reports whether userID may read the dashboard.
func (d *Dashboard) VisibleTo(userID string) bool {
	return d.Visibility == VisibilityPublic || (userID != "" && d.OwnerID == userID)
}

// Widget types.
const (
	WidgetMetric   = "metric"
	WidgetChart    = "chart"
	WidgetTable    = "table"
	WidgetTimeline = "timeline"
	WidgetStat     = "stat"
	WidgetGauge    = "gauge"
)

// Position is a widget's top-left grid coordinate.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Size is a widget's extent in grid units.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// WidgetConfig holds chart-type-specific presentation settings.
type WidgetConfig struct {
	Type       string   `json:"type"`
	ShowLegend bool     `json:"showLegend"`
	Columns    []string `json:"columns,omitempty"`
	Height     int      `json:"height,omitempty"`
}

// Widget is one positioned unit of a dashboard. Filters is the legacy filter
// representation and is stored verbatim.
type Widget struct {
	ID          string          `json:"id"`
	DashboardID string          `json:"dashboard_id"`
	Type        string          `json:"type"`
	Title       string          `json:"title"`
	Position    Position        `json:"position"`
	Size        Size            `json:"size"`
	Config      *WidgetConfig   `json:"config"`
	DataSource  *DataSource     `json:"data_source"`
	Filters     json.RawMessage `json:"filters,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Default widget dimensions and data source applied to incomplete widgets.
const (
	DefaultWidgetWidth  = 4
	DefaultWidgetHeight = 1
)

// DefaultDataSource returns the data source used when a widget has none.
func DefaultDataSource() *DataSource {
	return &DataSource{
		Table:       "servers",
		Aggregation: AggregateCount,
		GroupBy:     GroupBy{"status"},
		Filters:     []FilterConfig{},
	}
}

// ApplyDefaults fills in the documented defaults for fields the client left
// out. It runs once, after schema validation.
func (w *Widget) ApplyDefaults() {
	if w.Size.Width == 0 {
		w.Size.Width = DefaultWidgetWidth
	}
	if w.Size.Height == 0 {
		w.Size.Height = DefaultWidgetHeight
	}
	if w.Config == nil {
		w.Config = &WidgetConfig{Type: "bar", ShowLegend: true}
	}
	if w.DataSource == nil {
		w.DataSource = DefaultDataSource()
	}
	if w.DataSource.Filters == nil {
		w.DataSource.Filters = []FilterConfig{}
	}
	if len(w.Filters) == 0 {
		w.Filters = json.RawMessage("[]")
	}
}

// StripInvalidIDs clears identifiers that are not UUIDs so that stale
// client-side ids are treated as new widgets.
func (w *Widget) StripInvalidIDs() {
	if _, err := uuid.Parse(w.ID); err != nil {
		w.ID = ""
	}
	if _, err := uuid.Parse(w.DashboardID); err != nil {
		w.DashboardID = ""
	}
}

// GroupBy is an ordered list of group-by columns. On the wire it is either a
// single string or an array of strings.
type GroupBy []string

// UnmarshalJSON accepts a string, an array of strings, or null.
func (g *GroupBy) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*g = nil
		return nil
	}
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		if single == "" {
			*g = nil
		} else {
			*g = GroupBy{single}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("groupBy must be a string or an array of strings")
	}
	out := make(GroupBy, 0, len(many))
	for _, f := range many {
		if f != "" {
			out = append(out, f)
		}
	}
	*g = out
	return nil
}

// MarshalJSON writes a single field as a string and several as an array.
func (g GroupBy) MarshalJSON() ([]byte, error) {
	if len(g) == 1 {
		return json.Marshal(g[0])
	}
	return json.Marshal([]string(g))
}
