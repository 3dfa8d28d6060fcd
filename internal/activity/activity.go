// Package activity records bus events as activity log entries.
package activity

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/tphummel/dcims/internal/events"
	"github.com/tphummel/dcims/internal/models"
)

// Store persists activity entries.
type Store interface {
	InsertActivity(ctx context.Context, a *models.ActivityLog) error
}

// Recorder turns events into activity log rows.
type Recorder struct {
	store  Store
	clock  clock.Clock
	logger *slog.Logger
}

// NewRecorder returns a Recorder writing to store. A nil clock uses the
// wall clock; a nil logger uses slog.Default.
func NewRecorder(store Store, clk clock.Clock, logger *slog.Logger) *Recorder {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, clock: clk, logger: logger}
}

// Subscribe attaches the recorder to every topic of bus and returns a
// function that detaches it.
func (r *Recorder) Subscribe(bus *events.Bus) (unsubscribe func()) {
	unsubs := []func(){
		bus.ServerChanged.Subscribe(func(ev events.ServerChanged) {
			details := map[string]any{}
			if ev.Server != nil {
				details["hostname"] = ev.Server.Hostname
			}
			r.record(ev.UserID, ev.Action, "server", serverID(ev.Server), details)
		}),
		bus.DashboardChanged.Subscribe(func(ev events.DashboardChanged) {
			details := map[string]any{}
			id := ""
			if ev.Dashboard != nil {
				id = ev.Dashboard.ID
				details["name"] = ev.Dashboard.Name
				details["version"] = ev.Dashboard.Version
			}
			r.record(ev.UserID, ev.Action, "dashboard", id, details)
		}),
		bus.EnumColorChanged.Subscribe(func(ev events.EnumColorChanged) {
			details := map[string]any{}
			id := ""
			if ev.Color != nil {
				id = ev.Color.ID
				details["category"] = ev.Color.Category
				details["value"] = ev.Color.Value
				details["color"] = ev.Color.Color
			}
			r.record(ev.UserID, ev.Action, "enum_color", id, details)
		}),
		bus.FilterPreferenceChanged.Subscribe(func(ev events.FilterPreferenceChanged) {
			r.record(ev.UserID, events.Updated, "filter_preference", ev.UserID, ev.Filters)
		}),
		bus.ServersImported.Subscribe(func(ev events.ServersImported) {
			r.record(ev.UserID, "import", "server", "", map[string]int{
				"imported": ev.Imported,
				"errors":   ev.Errors,
			})
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (r *Recorder) record(userID, action, entityType, entityID string, details any) {
	raw, err := json.Marshal(details)
	if err != nil {
		r.logger.Error("encode activity details", "error", err, "entity_type", entityType)
		raw = []byte("{}")
	}
	entry := &models.ActivityLog{
		ID:         uuid.New().String(),
		UserID:     userID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    raw,
		CreatedAt:  r.clock.Now().UTC(),
	}
	// Detached from the request: events fire after the write committed.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.InsertActivity(ctx, entry); err != nil {
		r.logger.Error("record activity", "error", err, "action", action, "entity_type", entityType)
	}
}

func serverID(s *models.Server) string {
	if s == nil {
		return ""
	}
	return s.ID
}
