package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tphummel/dcims/internal/activity"
	"github.com/tphummel/dcims/internal/db"
	"github.com/tphummel/dcims/internal/handlers"
	"github.com/tphummel/dcims/internal/middleware"
	"github.com/tphummel/dcims/internal/models"
)

const (
	anonKey   = "test-anon-key"
	jwtSecret = "test-jwt-secret"
)

var (
	ctx      = context.Background()
	baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

// newTestMux builds the same router as the serve command, backed by an
// in-memory DB. It returns both the router (for serving requests) and the DB
// (for pre-seeding). Users "eng" and "admin" hold the engineer and
// super_admin roles; everybody else is a viewer.
func newTestMux(t *testing.T, opts ...func(*handlers.Handler)) (http.Handler, *db.DB) {
	t.Helper()
	d, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	for user, role := range map[string]string{"eng": models.RoleEngineer, "admin": models.RoleSuperAdmin} {
		if err := d.SetUserRole(ctx, user, role, baseTime); err != nil {
			t.Fatalf("SetUserRole: %v", err)
		}
	}

	mock := clock.NewMock()
	mock.Set(baseTime)

	h := handlers.New(d)
	h.Clock = mock
	h.Version = "test"
	for _, opt := range opts {
		opt(h)
	}
	unsubscribe := activity.NewRecorder(d, mock, nil).Subscribe(h.Bus)
	t.Cleanup(unsubscribe)

	mux := handlers.NewRouter(h, handlers.RouterConfig{
		AnonKey:   anonKey,
		JWTSecret: []byte(jwtSecret),
	})
	return mux, d
}

// apiReq builds a request carrying the anonymous key and, when user is set,
// a token identifying that user.
func apiReq(t *testing.T, method, path string, body []byte, user string) *http.Request {
	t.Helper()
	var r *http.Request
	if body != nil {
		r = httptest.NewRequest(method, path, bytes.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	r.Header.Set(middleware.APIKeyHeader, anonKey)
	if user != "" {
		tok, err := middleware.SignToken([]byte(jwtSecret), user, time.Now(), time.Hour)
		if err != nil {
			t.Fatalf("SignToken: %v", err)
		}
		r.Header.Set("Authorization", "Bearer "+tok)
	}
	return r
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

// serve is a small helper that runs a request through the mux and returns the recorder.
func serve(mux http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// decodeData checks for a success envelope and unmarshals its data into v.
func decodeData(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("decode response body: %v\nbody: %s", err, w.Body.String())
	}
	if !env.Success {
		t.Fatalf("expected success envelope, got error %q", env.Error)
	}
	if v != nil {
		if err := json.Unmarshal(env.Data, v); err != nil {
			t.Fatalf("decode data: %v\ndata: %s", err, env.Data)
		}
	}
}

// decodeError checks for a failure envelope and returns its message.
func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("decode response body: %v\nbody: %s", err, w.Body.String())
	}
	if env.Success {
		t.Fatalf("expected error envelope, got success: %s", env.Data)
	}
	return env.Error
}

func seedServer(t *testing.T, d *db.DB, hostname, status string, offset int) *models.Server {
	t.Helper()
	at := baseTime.Add(time.Duration(offset) * time.Minute)
	s := &models.Server{
		ID:         fmt.Sprintf("00000000-0000-0000-0000-%012d", offset),
		Hostname:   hostname,
		DCSite:     "DC-East",
		DCBuilding: "B1",
		DCFloor:    "1",
		DCRoom:     "R101",
		Rack:       "R1",
		DeviceType: "Server",
		Status:     status,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
	if err := d.CreateServer(ctx, s); err != nil {
		t.Fatalf("CreateServer: %v", err)
	}
	return s
}

// --- Health ---

func TestHealth(t *testing.T) {
	mux, _ := newTestMux(t)
	w := serve(mux, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", w.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body: got %v", body)
	}
}

func TestMetricsRoute(t *testing.T) {
	d, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	mux := handlers.NewRouter(handlers.New(d), handlers.RouterConfig{
		AnonKey: anonKey,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("# metrics\n")) //nolint:errcheck
		}),
	})
	w := serve(mux, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || w.Body.String() != "# metrics\n" {
		t.Errorf("metrics: got %d %q", w.Code, w.Body.String())
	}
}

// --- Auth guard on API routes ---

func TestAPIRoutes_RequireAPIKey(t *testing.T) {
	mux, _ := newTestMux(t)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/servers"},
		{http.MethodPost, "/api/v1/servers"},
		{http.MethodGet, "/api/v1/servers/some-id"},
		{http.MethodPost, "/api/v1/servers/import"},
		{http.MethodGet, "/api/v1/dashboards"},
		{http.MethodPut, "/api/v1/dashboards/some-id"},
		{http.MethodPost, "/api/v1/widgets/data"},
		{http.MethodPost, "/functions/v1/dashboards"},
		{http.MethodGet, "/api/v1/locations/options"},
		{http.MethodGet, "/api/v1/enum-colors"},
		{http.MethodGet, "/api/v1/activity"},
	}

	for _, rt := range routes {
		t.Run(fmt.Sprintf("%s %s", rt.method, rt.path), func(t *testing.T) {
			req := httptest.NewRequest(rt.method, rt.path, nil)
			// deliberately no apikey header
			w := serve(mux, req)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("expected 401 without apikey, got %d", w.Code)
			}
		})
	}
}

func TestAPIRoutes_InvalidToken(t *testing.T) {
	mux, _ := newTestMux(t)
	req := apiReq(t, http.MethodGet, "/api/v1/servers", nil, "")
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := serve(mux, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", w.Code)
	}
}

// --- Servers ---

func validServer() map[string]any {
	return map[string]any{
		"hostname":    "web-01",
		"dc_site":     "DC-East",
		"device_type": "Server",
		"status":      "Active",
		"ip_address":  "10.0.0.5",
		"unit":        12,
	}
}

func TestCreateServer_Valid(t *testing.T) {
	mux, _ := newTestMux(t)

	w := serve(mux, apiReq(t, http.MethodPost, "/api/v1/servers", mustJSON(t, validServer()), "eng"))
	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want 201\nbody: %s", w.Code, w.Body.String())
	}

	var s models.Server
	decodeData(t, w, &s)
	if s.ID == "" {
		t.Error("ID should be non-empty")
	}
	if s.Hostname != "web-01" {
		t.Errorf("Hostname: got %q, want web-01", s.Hostname)
	}
	if s.Unit == nil || *s.Unit != 12 {
		t.Errorf("Unit: got %v, want 12", s.Unit)
	}
	if !s.CreatedAt.Equal(baseTime) {
		t.Errorf("CreatedAt: got %v, want %v", s.CreatedAt, baseTime)
	}
}

func TestCreateServer_Roles(t *testing.T) {
	mux, _ := newTestMux(t)
	body := mustJSON(t, validServer())

	tests := []struct {
		user       string
		wantStatus int
	}{
		{"", http.StatusUnauthorized},
		{"viewer-bob", http.StatusForbidden},
		{"eng", http.StatusCreated},
		{"admin", http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run("user="+tt.user, func(t *testing.T) {
			w := serve(mux, apiReq(t, http.MethodPost, "/api/v1/servers", body, tt.user))
			if w.Code != tt.wantStatus {
				t.Errorf("status: got %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestCreateServer_ValidationErrors(t *testing.T) {
	mux, _ := newTestMux(t)

	tests := []struct {
		name    string
		mutate  func(m map[string]any)
		wantMsg string
	}{
		{"missing hostname", func(m map[string]any) { delete(m, "hostname") }, "Missing required field(s): hostname"},
		{"invalid status", func(m map[string]any) { m["status"] = "Whatever" }, `Invalid status "Whatever"`},
		{"invalid device type", func(m map[string]any) { m["device_type"] = "Toaster" }, "Invalid device_type"},
		{"invalid ip", func(m map[string]any) { m["ip_address"] = "10.0.0" }, "Invalid ip_address"},
		{"unit out of range", func(m map[string]any) { m["unit"] = 61 }, "Invalid unit"},
		{"bad warranty", func(m map[string]any) { m["warranty"] = "03/01/2025" }, "Invalid warranty date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := validServer()
			tt.mutate(payload)
			w := serve(mux, apiReq(t, http.MethodPost, "/api/v1/servers", mustJSON(t, payload), "eng"))
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status: got %d, want 400", w.Code)
			}
			if msg := decodeError(t, w); !strings.Contains(msg, tt.wantMsg) {
				t.Errorf("error: got %q, want it to contain %q", msg, tt.wantMsg)
			}
		})
	}
}

func TestCreateServer_InvalidJSON(t *testing.T) {
	mux, _ := newTestMux(t)
	w := serve(mux, apiReq(t, http.MethodPost, "/api/v1/servers", []byte("{not json"), "eng"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
}

func TestCreateServer_BodyTooLarge(t *testing.T) {
	mux, _ := newTestMux(t, func(h *handlers.Handler) { h.MaxBodyBytes = 64 })
	payload := validServer()
	payload["notes"] = strings.Repeat("x", 200)
	w := serve(mux, apiReq(t, http.MethodPost, "/api/v1/servers", mustJSON(t, payload), "eng"))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status: got %d, want 413", w.Code)
	}
}

func TestServerLifecycle(t *testing.T) {
	mux, _ := newTestMux(t)

	w := serve(mux, apiReq(t, http.MethodPost, "/api/v1/servers", mustJSON(t, validServer()), "eng"))
	var created models.Server
	decodeData(t, w, &created)

	w = serve(mux, apiReq(t, http.MethodGet, "/api/v1/servers/"+created.ID, nil, ""))
	if w.Code != http.StatusOK {
		t.Fatalf("get: got %d", w.Code)
	}

	update := validServer()
	update["status"] = "Maintenance"
	w = serve(mux, apiReq(t, http.MethodPut, "/api/v1/servers/"+created.ID, mustJSON(t, update), "eng"))
	if w.Code != http.StatusOK {
		t.Fatalf("update: got %d\nbody: %s", w.Code, w.Body.String())
	}
	var updated models.Server
	decodeData(t, w, &updated)
	if updated.Status != "Maintenance" {
		t.Errorf("Status: got %q, want Maintenance", updated.Status)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("CreatedAt changed: %v -> %v", created.CreatedAt, updated.CreatedAt)
	}

	w = serve(mux, apiReq(t, http.MethodGet, "/api/v1/servers?status=Maintenance", nil, ""))
	var list []models.Server
	decodeData(t, w, &list)
	if len(list) != 1 || list[0].ID != created.ID {
		t.Errorf("filtered list: got %+v", list)
	}

	w = serve(mux, apiReq(t, http.MethodDelete, "/api/v1/servers/"+created.ID, nil, "eng"))
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: got %d", w.Code)
	}
	w = serve(mux, apiReq(t, http.MethodGet, "/api/v1/servers/"+created.ID, nil, ""))
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete: got %d, want 404", w.Code)
	}
	w = serve(mux, apiReq(t, http.MethodDelete, "/api/v1/servers/"+created.ID, nil, "eng"))
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete: got %d, want 404", w.Code)
	}
}

func TestListServers_EmptyIsArray(t *testing.T) {
	mux, _ := newTestMux(t)
	w := serve(mux, apiReq(t, http.MethodGet, "/api/v1/servers", nil, ""))
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"data":[]`) {
		t.Errorf("body: got %s, want an empty data array", w.Body.String())
	}
}

func TestListServers_AllSentinelAndBadDate(t *testing.T) {
	mux, d := newTestMux(t)
	seedServer(t, d, "a", "Active", 1)
	seedServer(t, d, "b", "Offline", 2)

	w := serve(mux, apiReq(t, http.MethodGet, "/api/v1/servers?status=All+Status", nil, ""))
	var list []models.Server
	decodeData(t, w, &list)
	if len(list) != 2 {
		t.Errorf("All Status: got %d servers, want 2", len(list))
	}

	w = serve(mux, apiReq(t, http.MethodGet, "/api/v1/servers?warranty_from=soon", nil, ""))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad date: got %d, want 400", w.Code)
	}
}

func TestUpdateServer_NotFound(t *testing.T) {
	mux, _ := newTestMux(t)
	w := serve(mux, apiReq(t, http.MethodPut, "/api/v1/servers/missing", mustJSON(t, validServer()), "eng"))
	if w.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", w.Code)
	}
}

// --- CSV import / export ---

func csvReq(t *testing.T, body, user string) *http.Request {
	t.Helper()
	r := apiReq(t, http.MethodPost, "/api/v1/servers/import", []byte(body), user)
	r.Header.Set("Content-Type", "text/csv")
	return r
}

func TestImportServers(t *testing.T) {
	mux, d := newTestMux(t)

	body := "hostname,dc_site,device_type,status\n" +
		"web-01,DC-East,Server,Active\n" +
		"web-02,DC-East,Server,Whatever\n" +
		",DC-East,Server,Active\n"
	w := serve(mux, csvReq(t, body, "eng"))
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d\nbody: %s", w.Code, w.Body.String())
	}

	var res struct {
		Imported int      `json:"imported"`
		Errors   []string `json:"errors"`
	}
	decodeData(t, w, &res)
	if res.Imported != 1 {
		t.Errorf("imported: got %d, want 1", res.Imported)
	}
	if len(res.Errors) != 2 {
		t.Fatalf("errors: got %v, want 2", res.Errors)
	}
	if !strings.HasPrefix(res.Errors[0], "Row 2: ") || !strings.Contains(res.Errors[0], "Invalid status") {
		t.Errorf("errors[0]: got %q", res.Errors[0])
	}
	if !strings.HasPrefix(res.Errors[1], "Row 3: ") || !strings.Contains(res.Errors[1], "hostname") {
		t.Errorf("errors[1]: got %q", res.Errors[1])
	}

	servers, err := d.ListServers(ctx, nil)
	if err != nil {
		t.Fatalf("ListServers: %v", err)
	}
	if len(servers) != 1 || servers[0].Hostname != "web-01" {
		t.Errorf("stored servers: got %+v", servers)
	}
}

func TestImportServers_MissingColumns(t *testing.T) {
	mux, _ := newTestMux(t)
	w := serve(mux, csvReq(t, "hostname,status\nweb-01,Active\n", "eng"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", w.Code)
	}
	if msg := decodeError(t, w); !strings.Contains(msg, "dc_site") || !strings.Contains(msg, "device_type") {
		t.Errorf("error should name the missing columns: %q", msg)
	}
}

func TestImportServers_ViewerForbidden(t *testing.T) {
	mux, _ := newTestMux(t)
	w := serve(mux, csvReq(t, "hostname,dc_site,device_type\nweb-01,DC-East,Server\n", "viewer-bob"))
	if w.Code != http.StatusForbidden {
		t.Errorf("status: got %d, want 403", w.Code)
	}
}

func TestExportServers(t *testing.T) {
	mux, d := newTestMux(t)
	seedServer(t, d, "web-01", "Active", 1)
	seedServer(t, d, "web-02", "Offline", 2)

	w := serve(mux, apiReq(t, http.MethodGet, "/api/v1/servers/export?status=Active", nil, ""))
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type: got %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "servers.csv") {
		t.Errorf("Content-Disposition: got %q", cd)
	}
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines: got %d, want header + 1 row\n%s", len(lines), w.Body.String())
	}
	if !strings.HasPrefix(lines[0], "hostname,dc_site,device_type") {
		t.Errorf("header: got %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "web-01,DC-East,Server") {
		t.Errorf("row: got %q", lines[1])
	}
}
