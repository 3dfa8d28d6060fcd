package handlers

import (
	"log/slog"
	"net/http"

	"github.com/tphummel/dcims/internal/metrics"
	"github.com/tphummel/dcims/internal/middleware"
	"github.com/tphummel/dcims/internal/models"
)

// RouterConfig carries the settings of the outer HTTP stack.
type RouterConfig struct {
	// AnonKey is the shared key every API call presents in the apikey header.
	AnonKey string
	// JWTSecret verifies optional Bearer tokens that identify the user.
	JWTSecret   []byte
	CORSOrigins []string
	Logger      *slog.Logger
	// Metrics serves GET /metrics when non-nil.
	Metrics http.Handler
}

var (
	editors = []string{models.RoleEngineer, models.RoleSuperAdmin}
	admins  = []string{models.RoleSuperAdmin}
)

// NewRouter registers every route of the service on a new mux and wraps it
// with request logging and CORS.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, next http.Handler) {
		mux.Handle(pattern, metrics.Middleware(pattern, next))
	}
	// api requires the anonymous key and resolves the optional user token.
	api := func(pattern string, next http.Handler) {
		handle(pattern, middleware.APIKey(cfg.AnonKey, middleware.Identity(cfg.JWTSecret, cfg.AnonKey, next)))
	}
	role := func(allowed []string, fn http.HandlerFunc) http.Handler {
		return middleware.RequireRole(h.DB, allowed, fn)
	}

	// Health, metrics and docs: no auth
	handle("GET /healthz", http.HandlerFunc(h.Health))
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}
	docs, err := NewDocs(h.Version)
	if err != nil {
		slog.Warn("serving unversioned openapi document", "error", err)
	}
	handle("GET /openapi.yaml", http.HandlerFunc(docs.Spec))
	handle("GET /docs", http.HandlerFunc(docs.Page))

	// Servers: reads for everyone, writes for engineers and admins
	api("GET /api/v1/servers", http.HandlerFunc(h.ListServers))
	api("POST /api/v1/servers", role(editors, h.CreateServer))
	api("GET /api/v1/servers/export", http.HandlerFunc(h.ExportServers))
	api("POST /api/v1/servers/import", role(editors, h.ImportServers))
	api("GET /api/v1/servers/{id}", http.HandlerFunc(h.GetServer))
	api("PUT /api/v1/servers/{id}", role(editors, h.UpdateServer))
	api("DELETE /api/v1/servers/{id}", role(editors, h.DeleteServer))

	// Dashboards and widget data
	api("GET /api/v1/dashboards", http.HandlerFunc(h.ListDashboards))
	api("POST /api/v1/dashboards", http.HandlerFunc(h.CreateDashboard))
	api("GET /api/v1/dashboards/{id}", http.HandlerFunc(h.GetDashboard))
	api("PUT /api/v1/dashboards/{id}", http.HandlerFunc(h.UpdateDashboard))
	api("DELETE /api/v1/dashboards/{id}", http.HandlerFunc(h.DeleteDashboard))
	api("GET /api/v1/dashboards/{id}/widgets/{widgetID}/data", http.HandlerFunc(h.WidgetData))
	api("POST /api/v1/widgets/data", http.HandlerFunc(h.QueryWidgetData))
	api("GET /functions/v1/dashboards", http.HandlerFunc(h.DashboardFunction))
	api("POST /functions/v1/dashboards", http.HandlerFunc(h.DashboardFunction))

	// Location cascade and racks
	api("GET /api/v1/locations/options", http.HandlerFunc(h.LocationOptions))
	api("POST /api/v1/locations/select", http.HandlerFunc(h.SelectLocation))
	api("GET /api/v1/racks/{rack}", http.HandlerFunc(h.GetRack))
	api("PUT /api/v1/racks/{rack}", role(editors, h.PutRack))
	api("GET /api/v1/racks/{rack}/location", http.HandlerFunc(h.RackLocation))

	// Enum colors, custom properties, activity
	api("GET /api/v1/enum-colors", http.HandlerFunc(h.ListEnumColors))
	api("PUT /api/v1/enum-colors", http.HandlerFunc(h.PutEnumColor))
	api("DELETE /api/v1/enum-colors/{id}", http.HandlerFunc(h.DeleteEnumColor))
	api("GET /api/v1/properties", http.HandlerFunc(h.ListProperties))
	api("POST /api/v1/properties", role(admins, h.CreateProperty))
	api("DELETE /api/v1/properties/{key}", role(admins, h.DeleteProperty))
	api("GET /api/v1/activity", http.HandlerFunc(h.ListActivity))

	// Current user and role administration
	api("GET /api/v1/me", middleware.RequireUser(http.HandlerFunc(h.Me)))
	api("GET /api/v1/me/filters", middleware.RequireUser(http.HandlerFunc(h.GetFilterPreference)))
	api("PUT /api/v1/me/filters", middleware.RequireUser(http.HandlerFunc(h.PutFilterPreference)))
	api("PUT /api/v1/users/{id}/role", role(admins, h.SetUserRole))

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return middleware.RequestLogger(logger, middleware.SkipPaths("/healthz", "/metrics"),
		middleware.CORS(cfg.CORSOrigins, mux))
}
