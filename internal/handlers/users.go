package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/tphummel/dcims/internal/db"
	"github.com/tphummel/dcims/internal/events"
	"github.com/tphummel/dcims/internal/models"
)

// maxActivityLimit bounds ?limit= on the activity feed.
const maxActivityLimit = 1000

// ListActivity handles GET /api/v1/activity with optional ?entity_type= and
// ?limit= parameters.
func (h *Handler) ListActivity(w http.ResponseWriter, r *http.Request) {
	limit := db.DefaultActivityLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxActivityLimit {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxActivityLimit))
			return
		}
		limit = n
	}
	entries, err := h.DB.ListActivity(r.Context(), r.URL.Query().Get("entity_type"), limit)
	if err != nil {
		internalError(w, r, "failed to list activity", err)
		return
	}
	if entries == nil {
		entries = []*models.ActivityLog{}
	}
	writeData(w, http.StatusOK, entries)
}

// Me handles GET /api/v1/me: the caller's id and role. The /me routes sit
// behind middleware.RequireUser.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID := userOf(r)
	role, err := h.DB.GetUserRole(r.Context(), userID)
	if err != nil {
		internalError(w, r, "failed to look up role", err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"user_id": userID, "role": role})
}

// GetFilterPreference handles GET /api/v1/me/filters.
func (h *Handler) GetFilterPreference(w http.ResponseWriter, r *http.Request) {
	userID := userOf(r)
	f, err := h.DB.GetFilterPreference(r.Context(), userID)
	if err != nil {
		internalError(w, r, "failed to get filter preference", err)
		return
	}
	writeData(w, http.StatusOK, f)
}

// PutFilterPreference handles PUT /api/v1/me/filters.
func (h *Handler) PutFilterPreference(w http.ResponseWriter, r *http.Request) {
	userID := userOf(r)
	var f models.ServerFilters
	if !h.decode(w, r, &f) {
		return
	}
	if err := h.DB.SetFilterPreference(r.Context(), userID, &f, h.now()); err != nil {
		internalError(w, r, "failed to save filter preference", err)
		return
	}
	h.Bus.FilterPreferenceChanged.Publish(events.FilterPreferenceChanged{UserID: userID, Filters: &f})
	writeData(w, http.StatusOK, &f)
}

// SetUserRole handles PUT /api/v1/users/{id}/role. Super admins only.
func (h *Handler) SetUserRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role string `json:"role"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if !models.ValidRoles[req.Role] {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid role %q", req.Role))
		return
	}
	userID := r.PathValue("id")
	if err := h.DB.SetUserRole(r.Context(), userID, req.Role, h.now()); err != nil {
		internalError(w, r, "failed to set role", err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"user_id": userID, "role": req.Role})
}
