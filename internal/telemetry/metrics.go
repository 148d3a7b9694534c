// Package telemetry provides application-level observability for the issuance registry.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are served on
// the side-channel HTTP server started by cmd/server:
//
//	GET http://<host>:<RMS_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is not served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Lineage cascade outcomes per issuance kind and relationship
//   - Audit records written and audit shipping failures
//   - Blob storage operations per backend
//   - Database connection pool gauge (polled every 30 s)
//
// Usage:
//
//	telemetry.LineageCascadesTotal.WithLabelValues("ordinance", "Repeals", "applied").Inc()
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lgu-records/issuance-registry/internal/safego"
)

// HTTP metrics, labelled by method, route template and status code. The path
// label holds the Gin route template (e.g. /api/v1/records/:kind/:id) to keep
// cardinality bounded.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Cascade outcomes reported by the lineage engine.
const (
	CascadeApplied    = "applied"
	CascadeUnchanged  = "unchanged"  // EO Supplements against an already Active parent
	CascadeSuppressed = "suppressed" // edit without a lineage change
	CascadeNoParent   = "no_parent"  // parent id did not resolve
)

// LineageCascadesTotal counts every cascade decision by kind, relationship and
// outcome. A steady rate of "no_parent" usually means stale parent pickers.
//
// Example PromQL queries:
//   - Repeals per day:  sum(increase(lineage_cascades_total{relationship="Repeals",outcome="applied"}[1d]))
var LineageCascadesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "lineage_cascades_total",
		Help: "Lineage cascade decisions, by issuance kind, relationship type and outcome.",
	},
	[]string{"kind", "relationship", "outcome"},
)

// Audit metrics.
//
// AuditRecordsTotal is incremented for each audit row written inside a transaction
// (rows from a rolled-back transaction are counted too). AuditShipFailuresTotal counts
// entries an external sink refused.
var (
	AuditRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_records_total",
			Help: "Total number of audit log rows written, by action and auditable type.",
		},
		[]string{"action", "entity"},
	)

	AuditShipFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_ship_failures_total",
			Help: "Total number of audit entries that failed to reach an external sink, by sink type.",
		},
		[]string{"sink"},
	)
)

// StorageOperationsTotal counts blob store calls by backend, operation
// (store, delete, exists, url) and result (ok, error).
var StorageOperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storage_operations_total",
		Help: "Total number of blob storage operations, by backend, operation and result.",
	},
	[]string{"backend", "op", "result"},
)

// DBOpenConnections tracks open connections held by the sql.DB pool. It is
// sampled every 30 seconds by StartDBStatsCollector.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits once the database becomes unreachable, which happens when
// the application shuts down and closes the pool.
func StartDBStatsCollector(db *sql.DB) {
	safego.Go("db-stats-collector", func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	})
}

// ObserveStorage records the result of one blob store call
func ObserveStorage(backend, op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	StorageOperationsTotal.WithLabelValues(backend, op, result).Inc()
}
