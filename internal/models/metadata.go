package models

import (
	"encoding/json"
	"regexp"
	"time"
)

// EnumColor assigns a display color to one value of an enum category. An
// empty UserID marks the global mapping; a user mapping overrides it.
type EnumColor struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Value     string    `json:"value"`
	Color     string    `json:"color"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidColorCategories is the set of enum categories that accept colors.
var ValidColorCategories = map[string]bool{
	"allocation_type":  true,
	"model_type":       true,
	"device_type":      true,
	"environment_type": true,
	"status_type":      true,
	"brand_type":       true,
	"os_type":          true,
}

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// IsHexColor reports whether c has the form #RRGGBB.
func IsHexColor(c string) bool {
	return hexColor.MatchString(c)
}

// DefaultRackUnits is the height of a rack when none is recorded.
const DefaultRackUnits = 42

// RackLocation is the full ancestor chain of a rack.
type RackLocation struct {
	Rack        string    `json:"rack"`
	DCSite      string    `json:"dc_site"`
	DCBuilding  string    `json:"dc_building,omitempty"`
	DCFloor     string    `json:"dc_floor,omitempty"`
	DCRoom      string    `json:"dc_room,omitempty"`
	TotalUnits  int       `json:"total_units"`
	Description string    `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Property types accepted by property definitions.
var ValidPropertyTypes = map[string]bool{
	"text":    true,
	"number":  true,
	"date":    true,
	"boolean": true,
	"select":  true,
}

var propertyKey = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// IsPropertyKey reports whether k is a lowercase snake_case identifier.
func IsPropertyKey(k string) bool {
	return propertyKey.MatchString(k)
}

// PropertyDefinition describes a custom server property.
type PropertyDefinition struct {
	Key          string    `json:"key"`
	Name         string    `json:"name"`
	PropertyType string    `json:"property_type"`
	Options      []string  `json:"options"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// ActivityLog records one user-visible change.
type ActivityLog struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id,omitempty"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id,omitempty"`
	Details    json.RawMessage `json:"details"`
	CreatedAt  time.Time       `json:"created_at"`
}
