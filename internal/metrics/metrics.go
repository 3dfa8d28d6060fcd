package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dcims_http_requests_total",
			Help: "Total number of HTTP requests by method, route, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dcims_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds by method and route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dcims_http_requests_in_flight",
		Help: "Current number of HTTP requests being processed.",
	})

	widgetQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dcims_widget_query_duration_seconds",
			Help:    "Time spent building and running widget aggregation queries, by table.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"table"},
	)

	widgetQueryRows = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dcims_widget_query_rows",
			Help:    "Rows read by widget aggregation queries, by table.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 9),
		},
		[]string{"table"},
	)

	ignoredFiltersTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dcims_widget_ignored_filters_total",
		Help: "Widget filters skipped because their field or operator is not supported.",
	})

	importRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dcims_import_rows_total",
			Help: "CSV import rows by outcome.",
		},
		[]string{"result"},
	)
)

// InventoryDB is the subset of db.DB needed to collect inventory metrics.
type InventoryDB interface {
	CountServersByStatus(ctx context.Context) (map[string]int, error)
	CountDashboards(ctx context.Context) (map[string]int, error)
}

// inventoryCollector queries the database on each scrape to report server
// counts by status and dashboard counts by visibility.
type inventoryCollector struct {
	db             InventoryDB
	serversDesc    *prometheus.Desc
	dashboardsDesc *prometheus.Desc
}

func newInventoryCollector(db InventoryDB) *inventoryCollector {
	return &inventoryCollector{
		db: db,
		serversDesc: prometheus.NewDesc(
			"dcims_servers_total",
			"Number of servers in the inventory, partitioned by status.",
			[]string{"status"},
			nil,
		),
		dashboardsDesc: prometheus.NewDesc(
			"dcims_dashboards_total",
			"Number of dashboards, partitioned by visibility.",
			[]string{"visibility"},
			nil,
		),
	}
}

func (c *inventoryCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.serversDesc
	ch <- c.dashboardsDesc
}

func (c *inventoryCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	collect(ch, c.serversDesc, func() (map[string]int, error) {
		counts, err := c.db.CountServersByStatus(ctx)
		if n, ok := counts[""]; ok {
			delete(counts, "")
			counts["unknown"] += n
		}
		return counts, err
	})
	collect(ch, c.dashboardsDesc, func() (map[string]int, error) {
		return c.db.CountDashboards(ctx)
	})
}

func collect(ch chan<- prometheus.Metric, desc *prometheus.Desc, count func() (map[string]int, error)) {
	counts, err := count()
	if err != nil {
		ch <- prometheus.NewInvalidMetric(desc, err)
		return
	}
	for label, n := range counts {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(n), label)
	}
}

// Register registers all metrics with reg. Call once per registry at startup
// after the database is initialised.
func Register(reg prometheus.Registerer, db InventoryDB) error {
	for _, c := range []prometheus.Collector{
		// Standard Go runtime and process metrics
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),

		// HTTP service metrics
		httpRequestsTotal,
		httpRequestDuration,
		httpRequestsInFlight,

		// Application metrics
		widgetQueryDuration,
		widgetQueryRows,
		ignoredFiltersTotal,
		importRowsTotal,
		newInventoryCollector(db),
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ObserveWidgetQuery records one widget aggregation against table.
func ObserveWidgetQuery(table string, rows int, d time.Duration) {
	widgetQueryDuration.WithLabelValues(table).Observe(d.Seconds())
	widgetQueryRows.WithLabelValues(table).Observe(float64(rows))
}

// AddIgnoredFilters counts filters dropped in lenient mode.
func AddIgnoredFilters(n int) {
	if n > 0 {
		ignoredFiltersTotal.Add(float64(n))
	}
}

// AddImportRows counts the outcome of one CSV import.
func AddImportRows(imported, rejected int) {
	importRowsTotal.WithLabelValues("imported").Add(float64(imported))
	importRowsTotal.WithLabelValues("rejected").Add(float64(rejected))
}

// responseWriter wraps http.ResponseWriter to capture the response status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware wraps an http.Handler to record HTTP metrics.
// pattern should be the route pattern string (e.g. "/api/v1/servers/{id}")
// so the path label has bounded cardinality.
func Middleware(pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			httpRequestsInFlight.Dec()
			status := strconv.Itoa(rw.status)
			httpRequestsTotal.WithLabelValues(r.Method, pattern, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
		}()

		next.ServeHTTP(rw, r)
	})
}
