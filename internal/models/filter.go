package models

import "net/url"

// Aggregation is the function a widget applies to each bucket.
type Aggregation string

const (
	AggregateCount Aggregation = "count"
	AggregateSum   Aggregation = "sum"
	AggregateAvg   Aggregation = "avg"
	AggregateMin   Aggregation = "min"
	AggregateMax   Aggregation = "max"
)

// Operator is the comparison applied by a basic filter.
type Operator string

const (
	OpEquals   Operator = "equals"
	OpContains Operator = "contains"
	OpIn       Operator = "in"
	OpGt       Operator = "gt"
	OpLt       Operator = "lt"
	OpGte      Operator = "gte"
	OpLte      Operator = "lte"
)

// DataSource declares what a widget aggregates: the table, the aggregation,
// the column aggregated by sum/avg/min/max, the group-by columns and filters.
type DataSource struct {
	Table       string         `json:"table"`
	Aggregation Aggregation    `json:"aggregation"`
	Field       string         `json:"field,omitempty"`
	GroupBy     GroupBy        `json:"groupBy,omitempty"`
	Filters     []FilterConfig `json:"filters"`
}

// FilterConfig is a basic filter. Value is a scalar for most operators and a
// list for OpIn.
type FilterConfig struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// ColumnValue pairs a column name with a requested value.
type ColumnValue struct {
	Column string
	Value  string
}

// ServerFilters is the enhanced filter dialect for the servers table. A field
// left empty, set to "all", or set to its "All <Field>" label is unconstrained.
type ServerFilters struct {
	Status          string `json:"status,omitempty"`
	DeviceType      string `json:"device_type,omitempty"`
	Allocation      string `json:"allocation,omitempty"`
	Environment     string `json:"environment,omitempty"`
	Brand           string `json:"brand,omitempty"`
	Model           string `json:"model,omitempty"`
	OperatingSystem string `json:"operating_system,omitempty"`
	DCSite          string `json:"dc_site,omitempty"`
	DCBuilding      string `json:"dc_building,omitempty"`
	DCFloor         string `json:"dc_floor,omitempty"`
	DCRoom          string `json:"dc_room,omitempty"`
	Rack            string `json:"rack,omitempty"`
	Unit            string `json:"unit,omitempty"`

	WarrantyFrom string `json:"warranty_from,omitempty"`
	WarrantyTo   string `json:"warranty_to,omitempty"`
	CreatedFrom  string `json:"created_from,omitempty"`
	CreatedTo    string `json:"created_to,omitempty"`
}

// Columns returns the equality constraints of f in a fixed column order,
// including unconstrained ones.
func (f *ServerFilters) Columns() []ColumnValue {
	return []ColumnValue{
		{"status", f.Status},
		{"device_type", f.DeviceType},
		{"allocation", f.Allocation},
		{"environment", f.Environment},
		{"brand", f.Brand},
		{"model", f.Model},
		{"operating_system", f.OperatingSystem},
		{"dc_site", f.DCSite},
		{"dc_building", f.DCBuilding},
		{"dc_floor", f.DCFloor},
		{"dc_room", f.DCRoom},
		{"rack", f.Rack},
		{"unit", f.Unit},
	}
}

// ServerFiltersFromQuery reads enhanced server filters from URL query
// parameters named after the server columns. It returns nil when none are set.
func ServerFiltersFromQuery(q url.Values) *ServerFilters {
	f := &ServerFilters{
		Status:          q.Get("status"),
		DeviceType:      q.Get("device_type"),
		Allocation:      q.Get("allocation"),
		Environment:     q.Get("environment"),
		Brand:           q.Get("brand"),
		Model:           q.Get("model"),
		OperatingSystem: q.Get("operating_system"),
		DCSite:          q.Get("dc_site"),
		DCBuilding:      q.Get("dc_building"),
		DCFloor:         q.Get("dc_floor"),
		DCRoom:          q.Get("dc_room"),
		Rack:            q.Get("rack"),
		Unit:            q.Get("unit"),
		WarrantyFrom:    q.Get("warranty_from"),
		WarrantyTo:      q.Get("warranty_to"),
		CreatedFrom:     q.Get("created_from"),
		CreatedTo:       q.Get("created_to"),
	}
	if *f == (ServerFilters{}) {
		return nil
	}
	return f
}

// Dataset is one series of a chart payload.
type Dataset struct {
	Label           string    `json:"label"`
	Data            []float64 `json:"data"`
	BackgroundColor []string  `json:"backgroundColor,omitempty"`
}

// ChartData is the uniform payload consumed by chart widgets.
type ChartData struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
	Total    float64   `json:"total"`
}
