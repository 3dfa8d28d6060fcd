package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/tphummel/dcims/internal/events"
	"github.com/tphummel/dcims/internal/models"
)

// ListEnumColors handles GET /api/v1/enum-colors with an optional
// ?category= filter. The caller's own mappings override the global ones.
func (h *Handler) ListEnumColors(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if category != "" && !models.ValidColorCategories[category] {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid category %q", category))
		return
	}
	colors, err := h.DB.ListEnumColors(r.Context(), category, userOf(r))
	if err != nil {
		internalError(w, r, "failed to list enum colors", err)
		return
	}
	if colors == nil {
		colors = []*models.EnumColor{}
	}
	writeData(w, http.StatusOK, colors)
}

type enumColorRequest struct {
	Category string `json:"category"`
	Value    string `json:"value"`
	Color    string `json:"color"`
	// Global sets the default for every user. Super admins only.
	Global bool `json:"global"`
}

// isSuperAdmin reports whether userID holds the super_admin role. On lookup
// failure it writes a 500 and returns ok=false.
func (h *Handler) isSuperAdmin(w http.ResponseWriter, r *http.Request, userID string) (admin, ok bool) {
	role, err := h.DB.GetUserRole(r.Context(), userID)
	if err != nil {
		internalError(w, r, "failed to look up role", err)
		return false, false
	}
	return role == models.RoleSuperAdmin, true
}

// PutEnumColor handles PUT /api/v1/enum-colors. The mapping is scoped to the
// caller unless "global" is set.
func (h *Handler) PutEnumColor(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}
	var req enumColorRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Value = strings.TrimSpace(req.Value)
	switch {
	case !models.ValidColorCategories[req.Category]:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid category %q", req.Category))
		return
	case req.Value == "":
		writeError(w, http.StatusBadRequest, "value is required")
		return
	case !models.IsHexColor(req.Color):
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid color %q (expected #RRGGBB)", req.Color))
		return
	}

	owner := userID
	if req.Global {
		admin, ok := h.isSuperAdmin(w, r, userID)
		if !ok {
			return
		}
		if !admin {
			writeError(w, http.StatusForbidden, "only super admins can set global colors")
			return
		}
		owner = ""
	}

	now := h.now()
	c := &models.EnumColor{
		ID:        uuid.New().String(),
		Category:  req.Category,
		Value:     req.Value,
		Color:     strings.ToUpper(req.Color),
		UserID:    owner,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.DB.UpsertEnumColor(r.Context(), c); err != nil {
		internalError(w, r, "failed to save enum color", err)
		return
	}
	h.Bus.EnumColorChanged.Publish(events.EnumColorChanged{Action: events.Updated, UserID: userID, Color: c})
	writeData(w, http.StatusOK, c)
}

// DeleteEnumColor handles DELETE /api/v1/enum-colors/{id}. Users may delete
// their own mappings; global mappings need a super admin.
func (h *Handler) DeleteEnumColor(w http.ResponseWriter, r *http.Request) {
	userID := requireUser(w, r)
	if userID == "" {
		return
	}
	id := r.PathValue("id")
	c, err := h.DB.GetEnumColor(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "enum color not found")
		return
	}
	if err != nil {
		internalError(w, r, "failed to get enum color", err)
		return
	}

	switch c.UserID {
	case userID:
	case "":
		admin, ok := h.isSuperAdmin(w, r, userID)
		if !ok {
			return
		}
		if !admin {
			writeError(w, http.StatusForbidden, "only super admins can delete global colors")
			return
		}
	default:
		writeError(w, http.StatusForbidden, "enum color belongs to another user")
		return
	}

	err = h.DB.DeleteEnumColor(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "enum color not found")
		return
	}
	if err != nil {
		internalError(w, r, "failed to delete enum color", err)
		return
	}
	h.Bus.EnumColorChanged.Publish(events.EnumColorChanged{Action: events.Deleted, UserID: userID, Color: c})
	w.WriteHeader(http.StatusNoContent)
}
