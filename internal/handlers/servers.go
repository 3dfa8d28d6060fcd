package handlers

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/tphummel/dcims/internal/csvimport"
	"github.com/tphummel/dcims/internal/events"
	"github.com/tphummel/dcims/internal/metrics"
	"github.com/tphummel/dcims/internal/middleware"
	"github.com/tphummel/dcims/internal/models"
	"github.com/tphummel/dcims/internal/query"
)

// decodeServer reads and validates a server body. It writes the error
// response and returns nil on failure.
func (h *Handler) decodeServer(w http.ResponseWriter, r *http.Request) *models.Server {
	var s models.Server
	if !h.decode(w, r, &s) {
		return nil
	}
	s.Normalize()
	if problems := s.Validate(); len(problems) > 0 {
		writeError(w, http.StatusBadRequest, strings.Join(problems, "; "))
		return nil
	}
	return &s
}

// CreateServer handles POST /api/v1/servers.
func (h *Handler) CreateServer(w http.ResponseWriter, r *http.Request) {
	s := h.decodeServer(w, r)
	if s == nil {
		return
	}

	now := h.now()
	s.ID = uuid.New().String()
	s.CreatedAt = now
	s.UpdatedAt = now

	if err := h.DB.CreateServer(r.Context(), s); err != nil {
		internalError(w, r, "failed to create server", err)
		return
	}
	h.Bus.ServerChanged.Publish(events.ServerChanged{
		Action: events.Created, UserID: middleware.UserID(r.Context()), Server: s,
	})
	writeData(w, http.StatusCreated, s)
}

// ListServers handles GET /api/v1/servers. Query parameters named after
// server columns act as enhanced filters.
func (h *Handler) ListServers(w http.ResponseWriter, r *http.Request) {
	servers, err := h.DB.ListServers(r.Context(), models.ServerFiltersFromQuery(r.URL.Query()))
	if errors.Is(err, query.ErrUnknownFilter) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		internalError(w, r, "failed to list servers", err)
		return
	}
	if servers == nil {
		servers = []*models.Server{}
	}
	writeData(w, http.StatusOK, servers)
}

// GetServer handles GET /api/v1/servers/{id}.
func (h *Handler) GetServer(w http.ResponseWriter, r *http.Request) {
	s, err := h.DB.GetServer(r.Context(), r.PathValue("id"))
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "server not found")
		return
	}
	if err != nil {
		internalError(w, r, "failed to get server", err)
		return
	}
	writeData(w, http.StatusOK, s)
}

// UpdateServer handles PUT /api/v1/servers/{id}.
func (h *Handler) UpdateServer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	existing, err := h.DB.GetServer(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "server not found")
		return
	}
	if err != nil {
		internalError(w, r, "failed to get server", err)
		return
	}

	s := h.decodeServer(w, r)
	if s == nil {
		return
	}
	s.ID = id
	s.CreatedAt = existing.CreatedAt
	s.UpdatedAt = h.now()

	if err := h.DB.UpdateServer(r.Context(), s); err != nil {
		internalError(w, r, "failed to update server", err)
		return
	}
	h.Bus.ServerChanged.Publish(events.ServerChanged{
		Action: events.Updated, UserID: middleware.UserID(r.Context()), Server: s,
	})
	writeData(w, http.StatusOK, s)
}

// DeleteServer handles DELETE /api/v1/servers/{id}.
func (h *Handler) DeleteServer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existing, err := h.DB.GetServer(r.Context(), id)
	if err == nil {
		err = h.DB.DeleteServer(r.Context(), id)
	}
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "server not found")
		return
	}
	if err != nil {
		internalError(w, r, "failed to delete server", err)
		return
	}
	h.Bus.ServerChanged.Publish(events.ServerChanged{
		Action: events.Deleted, UserID: middleware.UserID(r.Context()), Server: existing,
	})
	w.WriteHeader(http.StatusNoContent)
}

// ImportServers handles POST /api/v1/servers/import with a CSV body. Valid
// rows are stored; invalid rows are reported without stopping the batch.
func (h *Handler) ImportServers(w http.ResponseWriter, r *http.Request) {
	h.limitBody(w, r)
	res, err := csvimport.Import(r.Context(), r.Body, h.DB, h.now())
	switch {
	case isTooLarge(err):
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	case errors.Is(err, csvimport.ErrMissingColumns):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		internalError(w, r, "failed to import servers", err)
		return
	}

	metrics.AddImportRows(res.Imported, len(res.Errors))
	h.Bus.ServersImported.Publish(events.ServersImported{
		UserID: middleware.UserID(r.Context()), Imported: res.Imported, Errors: len(res.Errors),
	})
	writeData(w, http.StatusOK, res)
}

// ExportServers handles GET /api/v1/servers/export. It accepts the same
// filters as ListServers and answers with a CSV attachment.
func (h *Handler) ExportServers(w http.ResponseWriter, r *http.Request) {
	servers, err := h.DB.ListServers(r.Context(), models.ServerFiltersFromQuery(r.URL.Query()))
	if errors.Is(err, query.ErrUnknownFilter) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		internalError(w, r, "failed to export servers", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="servers.csv"`)
	if err := csvimport.Export(w, servers); err != nil {
		slog.ErrorContext(r.Context(), "failed to write CSV export", "error", err)
	}
}
