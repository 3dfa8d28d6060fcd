package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/tphummel/dcims/internal/db"
	"github.com/tphummel/dcims/internal/models"
)

// ListProperties handles GET /api/v1/properties. ?active=true hides
// inactive definitions.
func (h *Handler) ListProperties(w http.ResponseWriter, r *http.Request) {
	activeOnly := false
	if v := r.URL.Query().Get("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "active must be true or false")
			return
		}
		activeOnly = b
	}
	props, err := h.DB.ListProperties(r.Context(), activeOnly)
	if err != nil {
		internalError(w, r, "failed to list properties", err)
		return
	}
	if props == nil {
		props = []*models.PropertyDefinition{}
	}
	writeData(w, http.StatusOK, props)
}

func validateProperty(p *models.PropertyDefinition) error {
	p.Key = strings.TrimSpace(p.Key)
	p.Name = strings.TrimSpace(p.Name)
	switch {
	case !models.IsPropertyKey(p.Key):
		return fmt.Errorf("invalid key %q (expected lowercase snake_case)", p.Key)
	case p.Name == "":
		return errors.New("name is required")
	case !models.ValidPropertyTypes[p.PropertyType]:
		return fmt.Errorf("invalid property_type %q", p.PropertyType)
	case p.PropertyType == "select" && len(p.Options) == 0:
		return errors.New("select properties need at least one option")
	case p.PropertyType != "select" && len(p.Options) > 0:
		return errors.New("options are only allowed for select properties")
	}
	return nil
}

// CreateProperty handles POST /api/v1/properties.
func (h *Handler) CreateProperty(w http.ResponseWriter, r *http.Request) {
	p := models.PropertyDefinition{Active: true}
	if !h.decode(w, r, &p) {
		return
	}
	if err := validateProperty(&p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p.CreatedAt = h.now()

	err := h.DB.CreateProperty(r.Context(), &p)
	if errors.Is(err, db.ErrConflict) {
		writeError(w, http.StatusConflict, fmt.Sprintf("property %q already exists", p.Key))
		return
	}
	if err != nil {
		internalError(w, r, "failed to create property", err)
		return
	}
	writeData(w, http.StatusCreated, p)
}

// DeleteProperty handles DELETE /api/v1/properties/{key}.
func (h *Handler) DeleteProperty(w http.ResponseWriter, r *http.Request) {
	err := h.DB.DeleteProperty(r.Context(), r.PathValue("key"))
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "property not found")
		return
	}
	if err != nil {
		internalError(w, r, "failed to delete property", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
