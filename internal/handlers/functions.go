package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
)

// DashboardFunction handles /functions/v1/dashboards, the single-endpoint
// form of the dashboard API. The operation comes from the "action" query
// parameter or body field: list, get, create, update or delete. The id comes
// from "id" in the query or body. Create and update read the dashboard from
// a "dashboard" body object, or from the body itself when that is absent.
func (h *Handler) DashboardFunction(w http.ResponseWriter, r *http.Request) {
	h.limitBody(w, r)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		if isTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(body) > 0 && !gjson.ValidBytes(body) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	action := r.URL.Query().Get("action")
	if action == "" {
		action = gjson.GetBytes(body, "action").String()
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		id = gjson.GetBytes(body, "id").String()
	}
	payload := body
	if d := gjson.GetBytes(body, "dashboard"); d.IsObject() {
		payload = []byte(d.Raw)
	}

	needID := func() bool {
		if id == "" {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("%s requires an id", action))
			return false
		}
		return true
	}

	switch action {
	case "list":
		h.ListDashboards(w, r)
	case "get":
		if needID() {
			h.GetDashboard(w, withBody(r, id, nil))
		}
	case "create":
		h.CreateDashboard(w, withBody(r, "", payload))
	case "update":
		if needID() {
			h.UpdateDashboard(w, withBody(r, id, payload))
		}
	case "delete":
		if needID() {
			h.DeleteDashboard(w, withBody(r, id, nil))
		}
	case "":
		writeError(w, http.StatusBadRequest, "action is required")
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", action))
	}
}
