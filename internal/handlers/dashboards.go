package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/tphummel/dcims/internal/db"
	"github.com/tphummel/dcims/internal/events"
	"github.com/tphummel/dcims/internal/middleware"
	"github.com/tphummel/dcims/internal/models"
	"github.com/tphummel/dcims/internal/widgetschema"
)

// dashboardRequest is the body of dashboard create and update calls.
// Widgets stay raw until they have passed schema validation.
type dashboardRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Visibility  string            `json:"visibility"`
	Status      string            `json:"status"`
	Layout      json.RawMessage   `json:"layout"`
	Settings    json.RawMessage   `json:"settings"`
	Version     *int              `json:"version"`
	Widgets     []json.RawMessage `json:"widgets"`
}

// dashboard validates the request and returns the dashboard it describes,
// with defaults applied to every widget.
func (req *dashboardRequest) dashboard() (*models.Dashboard, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, errors.New("name is required")
	}
	if req.Visibility == "" {
		req.Visibility = models.VisibilityPrivate
	}
	if !models.ValidVisibilities[req.Visibility] {
		return nil, fmt.Errorf("invalid visibility %q", req.Visibility)
	}
	if req.Status == "" {
		req.Status = models.DashboardActive
	}
	if !models.ValidDashboardStatuses[req.Status] {
		return nil, fmt.Errorf("invalid status %q", req.Status)
	}
	if err := widgetschema.ValidateAll(req.Widgets); err != nil {
		return nil, err
	}

	dash := &models.Dashboard{
		Name:        req.Name,
		Description: req.Description,
		Visibility:  req.Visibility,
		Status:      req.Status,
		Layout:      req.Layout,
		Settings:    req.Settings,
		Widgets:     make([]*models.Widget, 0, len(req.Widgets)),
	}
	for i, raw := range req.Widgets {
		var wd models.Widget
		if err := json.Unmarshal(raw, &wd); err != nil {
			return nil, fmt.Errorf("widget %d: %w", i, err)
		}
		wd.StripInvalidIDs()
		wd.ApplyDefaults()
		dash.Widgets = append(dash.Widgets, &wd)
	}
	return dash, nil
}

// loadDashboard fetches a dashboard the caller may read. It writes the error
// response and returns nil otherwise.
func (h *Handler) loadDashboard(w http.ResponseWriter, r *http.Request, id, userID string) *models.Dashboard {
	dash, err := h.DB.GetDashboard(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "dashboard not found")
		return nil
	}
	if err != nil {
		internalError(w, r, "failed to get dashboard", err)
		return nil
	}
	if !dash.VisibleTo(userID) {
		writeError(w, http.StatusForbidden, "dashboard is private")
		return nil
	}
	return dash
}

// ListDashboards handles GET /api/v1/dashboards: public dashboards plus the
// caller's own.
func (h *Handler) ListDashboards(w http.ResponseWriter, r *http.Request) {
	dashboards, err := h.DB.ListDashboards(r.Context(), userOf(r))
	if err != nil {
		internalError(w, r, "failed to list dashboards", err)
		return
	}
	if dashboards == nil {
		dashboards = []*models.Dashboard{}
	}
	writeData(w, http.StatusOK, dashboards)
}

// GetDashboard handles GET /api/v1/dashboards/{id}.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	dash := h.loadDashboard(w, r, r.PathValue("id"), userOf(r))
	if dash == nil {
		return
	}
	writeData(w, http.StatusOK, dash)
}

// CreateDashboard handles POST /api/v1/dashboards. The caller becomes the
// owner.
func (h *Handler) CreateDashboard(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}
	var req dashboardRequest
	if !h.decode(w, r, &req) {
		return
	}
	dash, err := req.dashboard()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := h.now()
	dash.ID = uuid.New().String()
	dash.OwnerID = userID
	dash.CreatedAt = now
	dash.UpdatedAt = now

	if err := h.DB.CreateDashboard(r.Context(), dash); err != nil {
		internalError(w, r, "failed to create dashboard", err)
		return
	}
	h.Bus.DashboardChanged.Publish(events.DashboardChanged{Action: events.Created, UserID: userID, Dashboard: dash})
	writeData(w, http.StatusCreated, dash)
}

// UpdateDashboard handles PUT /api/v1/dashboards/{id}. Widgets are diffed
// against the stored set. A "version" in the body must match the stored
// version or the update is rejected with 409.
func (h *Handler) UpdateDashboard(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}
	id := r.PathValue("id")
	existing := h.loadDashboard(w, r, id, userID)
	if existing == nil {
		return
	}
	if existing.OwnerID != userID {
		writeError(w, http.StatusForbidden, "only the owner can modify a dashboard")
		return
	}

	var req dashboardRequest
	if !h.decode(w, r, &req) {
		return
	}
	dash, err := req.dashboard()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	dash.ID = id
	dash.OwnerID = existing.OwnerID
	dash.UpdatedAt = h.now()

	err = h.DB.UpdateDashboard(r.Context(), dash, req.Version)
	switch {
	case errors.Is(err, db.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, sql.ErrNoRows):
		writeError(w, http.StatusNotFound, "dashboard not found")
		return
	case err != nil:
		internalError(w, r, "failed to update dashboard", err)
		return
	}
	h.Bus.DashboardChanged.Publish(events.DashboardChanged{Action: events.Updated, UserID: userID, Dashboard: dash})
	writeData(w, http.StatusOK, dash)
}

// DeleteDashboard handles DELETE /api/v1/dashboards/{id}. Owner only.
func (h *Handler) DeleteDashboard(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}
	id := r.PathValue("id")
	existing := h.loadDashboard(w, r, id, userID)
	if existing == nil {
		return
	}
	if existing.OwnerID != userID {
		writeError(w, http.StatusForbidden, "only the owner can delete a dashboard")
		return
	}

	err := h.DB.DeleteDashboard(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "dashboard not found")
		return
	}
	if err != nil {
		internalError(w, r, "failed to delete dashboard", err)
		return
	}
	h.Bus.DashboardChanged.Publish(events.DashboardChanged{Action: events.Deleted, UserID: userID, Dashboard: existing})
	w.WriteHeader(http.StatusNoContent)
}

func userOf(r *http.Request) string {
	return middleware.UserID(r.Context())
}

// withBody returns a shallow copy of r reading body and carrying path id.
func withBody(r *http.Request, id string, body []byte) *http.Request {
	r2 := r.Clone(r.Context())
	r2.Body = io.NopCloser(bytes.NewReader(body))
	r2.ContentLength = int64(len(body))
	if id != "" {
		r2.SetPathValue("id", id)
	}
	return r2
}
