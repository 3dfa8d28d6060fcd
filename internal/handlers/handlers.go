package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tphummel/dcims/internal/db"
	"github.com/tphummel/dcims/internal/events"
	"github.com/tphummel/dcims/internal/location"
	"github.com/tphummel/dcims/internal/middleware"
	"github.com/tphummel/dcims/internal/query"
)

// DefaultMaxBodyBytes caps JSON and CSV request bodies when the handler is
// not configured otherwise.
const DefaultMaxBodyBytes = 1 << 20

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	DB      *db.DB
	Bus     *events.Bus
	Cascade *location.Cascade
	Clock   clock.Clock

	// Strict rejects widget filters with an unknown field or operator.
	// When false they are skipped and reported back to the caller.
	Strict        bool
	MaxBodyBytes  int64
	// MaxWidgetRows caps the rows one widget chart is built from; larger
	// result sets are rejected. Zero means query.MaxRows.
	MaxWidgetRows int

	Version string
	Commit  string
}

// New returns a Handler over database with a real clock, a fresh event bus
// and strict filtering.
func New(database *db.DB) *Handler {
	return &Handler{
		DB:            database,
		Bus:           events.NewBus(),
		Cascade:       location.New(database),
		Clock:         clock.New(),
		Strict:        true,
		MaxBodyBytes:  DefaultMaxBodyBytes,
		MaxWidgetRows: query.MaxRows,
	}
}

// envelope is the response shape of every /api/v1 endpoint.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: msg})
}

// internalError logs err and answers with a generic message.
func internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	slog.ErrorContext(r.Context(), msg, "error", err, "method", r.Method, "path", r.URL.Path)
	writeError(w, http.StatusInternalServerError, msg)
}

func (h *Handler) now() time.Time {
	return h.Clock.Now().UTC()
}

func (h *Handler) limitBody(w http.ResponseWriter, r *http.Request) {
	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
}

// decode reads a JSON body into v. It writes the error response and returns
// false when the body is too large or malformed.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	h.limitBody(w, r)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if isTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// requireUser returns the caller's user id, or writes 401 and returns "".
func requireUser(w http.ResponseWriter, r *http.Request) string {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
	}
	return userID
}

// Health handles GET /healthz. No auth required.
// Returns 503 if the database is unreachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.DB.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.Version,
		"commit":  h.Commit,
	})
}
