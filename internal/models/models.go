package models

import (
	"fmt"
	"net/netip"
	"slices"
	"strings"
	"time"
)

// DateLayout is the wire and storage format for calendar dates such as warranty.
const DateLayout = "2006-01-02"

// Server represents a single device in the data center inventory.
type Server struct {
	ID              string    `json:"id"`
	Hostname        string    `json:"hostname"`
	SerialNumber    string    `json:"serial_number,omitempty"`
	Brand           string    `json:"brand,omitempty"`
	Model           string    `json:"model,omitempty"`
	IPAddress       string    `json:"ip_address,omitempty"`
	IPOOB           string    `json:"ip_oob,omitempty"`
	OperatingSystem string    `json:"operating_system,omitempty"`
	DCSite          string    `json:"dc_site"`
	DCBuilding      string    `json:"dc_building,omitempty"`
	DCFloor         string    `json:"dc_floor,omitempty"`
	DCRoom          string    `json:"dc_room,omitempty"`
	Rack            string    `json:"rack,omitempty"`
	Unit            *int      `json:"unit,omitempty"`
	DeviceType      string    `json:"device_type"`
	Allocation      string    `json:"allocation,omitempty"`
	Environment     string    `json:"environment,omitempty"`
	Status          string    `json:"status,omitempty"`
	Warranty        string    `json:"warranty,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Accepted values for the enumerated server columns. Matching is case-sensitive.
var (
	ValidDeviceTypes  = []string{"Server", "Storage", "Network"}
	ValidAllocations  = []string{"IAAS", "PAAS", "SAAS", "Load Balancer", "Database"}
	ValidEnvironments = []string{"Production", "Testing", "Pre-Production", "Development"}
	ValidStatuses     = []string{"Active", "Ready", "Inactive", "Maintenance", "Offline", "Decommissioned"}
)

// MaxUnit is the highest rack unit a server may occupy.
const MaxUnit = 60

// EnumField names a server column together with its accepted values.
type EnumField struct {
	Column string
	Values []string
}

// ServerEnums lists every enumerated server column in validation order.
var ServerEnums = []EnumField{
	{Column: "device_type", Values: ValidDeviceTypes},
	{Column: "allocation", Values: ValidAllocations},
	{Column: "environment", Values: ValidEnvironments},
	{Column: "status", Values: ValidStatuses},
}

// Normalize trims surrounding whitespace from every text field.
func (s *Server) Normalize() {
	for _, p := range []*string{
		&s.Hostname, &s.SerialNumber, &s.Brand, &s.Model, &s.IPAddress, &s.IPOOB,
		&s.OperatingSystem, &s.DCSite, &s.DCBuilding, &s.DCFloor, &s.DCRoom,
		&s.Rack, &s.DeviceType, &s.Allocation, &s.Environment, &s.Status,
		&s.Warranty, &s.Notes,
	} {
		*p = strings.TrimSpace(*p)
	}
}

// enumValue returns the server's value for an enumerated column.
func (s *Server) enumValue(column string) string {
	switch column {
	case "device_type":
		return s.DeviceType
	case "allocation":
		return s.Allocation
	case "environment":
		return s.Environment
	case "status":
		return s.Status
	}
	return ""
}

// Validate checks required fields, enumerated values, addresses, the rack unit
// and the warranty date. It returns one message per problem, or nil.
func (s *Server) Validate() []string {
	var problems []string

	var missing []string
	if s.Hostname == "" {
		missing = append(missing, "hostname")
	}
	if s.DCSite == "" {
		missing = append(missing, "dc_site")
	}
	if s.DeviceType == "" {
		missing = append(missing, "device_type")
	}
	if len(missing) > 0 {
		problems = append(problems, "Missing required field(s): "+strings.Join(missing, ", "))
	}

	for _, f := range ServerEnums {
		v := s.enumValue(f.Column)
		if v == "" || slices.Contains(f.Values, v) {
			continue
		}
		problems = append(problems, fmt.Sprintf("Invalid %s %q. Accepted values: %s",
			f.Column, v, strings.Join(f.Values, ", ")))
	}

	if s.IPAddress != "" {
		if _, err := netip.ParseAddr(s.IPAddress); err != nil {
			problems = append(problems, fmt.Sprintf("Invalid ip_address %q", s.IPAddress))
		}
	}
	if s.IPOOB != "" {
		if _, err := netip.ParseAddr(s.IPOOB); err != nil {
			problems = append(problems, fmt.Sprintf("Invalid ip_oob %q", s.IPOOB))
		}
	}
	if s.Unit != nil && (*s.Unit < 1 || *s.Unit > MaxUnit) {
		problems = append(problems, fmt.Sprintf("Invalid unit \"%d\" (expected 1-%d)", *s.Unit, MaxUnit))
	}
	if s.Warranty != "" {
		if _, err := time.Parse(DateLayout, s.Warranty); err != nil {
			problems = append(problems, fmt.Sprintf("Invalid warranty date %q (expected YYYY-MM-DD)", s.Warranty))
		}
	}
	return problems
}

// User roles, mirroring the user_role enum of the store.
const (
	RoleSuperAdmin = "super_admin"
	RoleEngineer   = "engineer"
	RoleViewer     = "viewer"
)

// ValidRoles is the set of allowed user_role values.
var ValidRoles = map[string]bool{
	RoleSuperAdmin: true,
	RoleEngineer:   true,
	RoleViewer:     true,
}
