// Package location implements the site → building → floor → room → rack
// filter cascade. Selecting a level clears every level below it, and the
// options offered for each level are constrained by the selected ancestors.
package location

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/tphummel/dcims/internal/models"
)

// ErrRackNotFound is returned when a rack's location cannot be resolved.
var ErrRackNotFound = errors.New("rack not found")

// Level is one tier of the location hierarchy.
type Level int

const (
	LevelSite Level = iota
	LevelBuilding
	LevelFloor
	LevelRoom
	LevelRack
)

// Levels lists the hierarchy from the top down.
var Levels = []Level{LevelSite, LevelBuilding, LevelFloor, LevelRoom, LevelRack}

var levelNames = [...]string{"site", "building", "floor", "room", "rack"}

var levelColumns = [...]string{"dc_site", "dc_building", "dc_floor", "dc_room", "rack"}

func (l Level) String() string {
	if l < LevelSite || l > LevelRack {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

// Column is the server column holding this level.
func (l Level) Column() string {
	return levelColumns[l]
}

// ParseLevel accepts a level name ("site") or its column ("dc_site").
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, l := range Levels {
		if s == levelNames[l] || s == levelColumns[l] {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown location level %q", s)
}

// Selection is the chosen value per level; empty means unselected.
type Selection struct {
	Site     string `json:"dc_site"`
	Building string `json:"dc_building"`
	Floor    string `json:"dc_floor"`
	Room     string `json:"dc_room"`
	Rack     string `json:"rack"`
}

func (s *Selection) field(l Level) *string {
	switch l {
	case LevelSite:
		return &s.Site
	case LevelBuilding:
		return &s.Building
	case LevelFloor:
		return &s.Floor
	case LevelRoom:
		return &s.Room
	case LevelRack:
		return &s.Rack
	}
	panic(fmt.Sprintf("location: invalid level %d", int(l)))
}

// Get returns the selected value at l.
func (s Selection) Get(l Level) string {
	return *s.field(l)
}

// Select returns a copy of s with l set to value and every deeper level
// cleared.
func (s Selection) Select(l Level, value string) Selection {
	*s.field(l) = strings.TrimSpace(value)
	for deeper := l + 1; deeper <= LevelRack; deeper++ {
		*s.field(deeper) = ""
	}
	return s
}

// Constraints returns the selected ancestors of l as column constraints.
func (s Selection) Constraints(l Level) []models.ColumnValue {
	var cs []models.ColumnValue
	for a := LevelSite; a < l; a++ {
		if v := s.Get(a); v != "" {
			cs = append(cs, models.ColumnValue{Column: a.Column(), Value: v})
		}
	}
	return cs
}

// ServerFilters renders the selection as enhanced server filters.
func (s Selection) ServerFilters() *models.ServerFilters {
	return &models.ServerFilters{
		DCSite:     s.Site,
		DCBuilding: s.Building,
		DCFloor:    s.Floor,
		DCRoom:     s.Room,
		Rack:       s.Rack,
	}
}

// Options holds the values offered at each level.
type Options struct {
	Sites     []string `json:"dc_site"`
	Buildings []string `json:"dc_building"`
	Floors    []string `json:"dc_floor"`
	Rooms     []string `json:"dc_room"`
	Racks     []string `json:"rack"`
}

func (o *Options) field(l Level) *[]string {
	switch l {
	case LevelSite:
		return &o.Sites
	case LevelBuilding:
		return &o.Buildings
	case LevelFloor:
		return &o.Floors
	case LevelRoom:
		return &o.Rooms
	}
	return &o.Racks
}

// Get returns the options at l.
func (o Options) Get(l Level) []string {
	return *o.field(l)
}

// State is a selection together with the options it leaves open.
type State struct {
	Selection Selection `json:"selection"`
	Options   Options   `json:"options"`
}

// Store supplies option values and rack locations.
type Store interface {
	LocationOptions(ctx context.Context, column string, constraints []models.ColumnValue) ([]string, error)
	GetRack(ctx context.Context, rack string) (*models.RackLocation, error)
	RackLocationFromServers(ctx context.Context, rack string) (*models.RackLocation, error)
}

// Cascade drives selections against a Store.
type Cascade struct {
	store Store
}

// New returns a Cascade backed by store.
func New(store Store) *Cascade {
	return &Cascade{store: store}
}

// Options fetches the options of every level for sel, one query per level,
// concurrently. The first failure cancels the rest.
func (c *Cascade) Options(ctx context.Context, sel Selection) (Options, error) {
	var opts Options
	g, ctx := errgroup.WithContext(ctx)
	for _, l := range Levels {
		g.Go(func() error {
			values, err := c.store.LocationOptions(ctx, l.Column(), sel.Constraints(l))
			if err != nil {
				return fmt.Errorf("%s options: %w", l, err)
			}
			*opts.field(l) = values
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Select applies value at level to sel and returns the resulting state.
func (c *Cascade) Select(ctx context.Context, sel Selection, level Level, value string) (*State, error) {
	next := sel.Select(level, value)
	opts, err := c.Options(ctx, next)
	if err != nil {
		return nil, err
	}
	return &State{Selection: next, Options: opts}, nil
}

// ResolveRack returns the full ancestor chain of rack. Recorded rack
// metadata wins; otherwise the location reported by most servers in the rack
// is used. ErrRackNotFound is returned when neither knows the rack.
func (c *Cascade) ResolveRack(ctx context.Context, rack string) (*models.RackLocation, error) {
	rack = strings.TrimSpace(rack)
	if rack == "" {
		return nil, fmt.Errorf("%w: empty rack name", ErrRackNotFound)
	}
	loc, err := c.store.GetRack(ctx, rack)
	if err == nil {
		return loc, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rack metadata: %w", err)
	}
	loc, err = c.store.RackLocationFromServers(ctx, rack)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrRackNotFound, rack)
	}
	if err != nil {
		return nil, fmt.Errorf("rack servers: %w", err)
	}
	return loc, nil
}

// SelectRack selects rack directly, filling every ancestor level from the
// rack's resolved location.
func (c *Cascade) SelectRack(ctx context.Context, rack string) (*State, error) {
	loc, err := c.ResolveRack(ctx, rack)
	if err != nil {
		return nil, err
	}
	sel := Selection{
		Site:     loc.DCSite,
		Building: loc.DCBuilding,
		Floor:    loc.DCFloor,
		Room:     loc.DCRoom,
		Rack:     loc.Rack,
	}
	opts, err := c.Options(ctx, sel)
	if err != nil {
		return nil, err
	}
	return &State{Selection: sel, Options: opts}, nil
}
