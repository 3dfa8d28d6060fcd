package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tphummel/dcims/internal/location"
	"github.com/tphummel/dcims/internal/models"
)

func selectionFromQuery(r *http.Request) location.Selection {
	q := r.URL.Query()
	return location.Selection{
		Site:     q.Get("dc_site"),
		Building: q.Get("dc_building"),
		Floor:    q.Get("dc_floor"),
		Room:     q.Get("dc_room"),
		Rack:     q.Get("rack"),
	}
}

// LocationOptions handles GET /api/v1/locations/options. The current
// selection is passed as dc_site, dc_building, dc_floor, dc_room and rack.
func (h *Handler) LocationOptions(w http.ResponseWriter, r *http.Request) {
	sel := selectionFromQuery(r)
	opts, err := h.Cascade.Options(r.Context(), sel)
	if err != nil {
		internalError(w, r, "failed to load location options", err)
		return
	}
	writeData(w, http.StatusOK, location.State{Selection: sel, Options: opts})
}

type selectRequest struct {
	Selection location.Selection `json:"selection"`
	Level     string             `json:"level"`
	Value     string             `json:"value"`
}

// SelectLocation handles POST /api/v1/locations/select. Choosing a level
// clears every deeper level; choosing a rack fills in its ancestors.
func (h *Handler) SelectLocation(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if !h.decode(w, r, &req) {
		return
	}
	level, err := location.ParseLevel(req.Level)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var state *location.State
	if level == location.LevelRack && strings.TrimSpace(req.Value) != "" {
		state, err = h.Cascade.SelectRack(r.Context(), req.Value)
	} else {
		state, err = h.Cascade.Select(r.Context(), req.Selection, level, req.Value)
	}
	if errors.Is(err, location.ErrRackNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		internalError(w, r, "failed to select location", err)
		return
	}
	writeData(w, http.StatusOK, state)
}

// RackLocation handles GET /api/v1/racks/{rack}/location.
func (h *Handler) RackLocation(w http.ResponseWriter, r *http.Request) {
	loc, err := h.Cascade.ResolveRack(r.Context(), r.PathValue("rack"))
	if errors.Is(err, location.ErrRackNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		internalError(w, r, "failed to resolve rack", err)
		return
	}
	writeData(w, http.StatusOK, loc)
}

// GetRack handles GET /api/v1/racks/{rack}: the recorded metadata only.
func (h *Handler) GetRack(w http.ResponseWriter, r *http.Request) {
	rack, err := h.DB.GetRack(r.Context(), r.PathValue("rack"))
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "rack not found")
		return
	}
	if err != nil {
		internalError(w, r, "failed to get rack", err)
		return
	}
	writeData(w, http.StatusOK, rack)
}

// PutRack handles PUT /api/v1/racks/{rack}.
func (h *Handler) PutRack(w http.ResponseWriter, r *http.Request) {
	var rack models.RackLocation
	if !h.decode(w, r, &rack) {
		return
	}
	rack.Rack = strings.TrimSpace(r.PathValue("rack"))
	rack.DCSite = strings.TrimSpace(rack.DCSite)
	if rack.DCSite == "" {
		writeError(w, http.StatusBadRequest, "dc_site is required")
		return
	}
	if rack.TotalUnits < 0 || rack.TotalUnits > models.MaxUnit {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("total_units must be between 1 and %d (0 for the default)", models.MaxUnit))
		return
	}
	rack.UpdatedAt = h.now()

	if err := h.DB.UpsertRack(r.Context(), &rack); err != nil {
		internalError(w, r, "failed to save rack", err)
		return
	}
	writeData(w, http.StatusOK, rack)
}
