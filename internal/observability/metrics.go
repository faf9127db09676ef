// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Run metrics
	RunsTotal   *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec
	RunProgress *prometheus.GaugeVec

	// Backtest metrics
	BacktestsTotal   *prometheus.CounterVec
	BacktestDuration prometheus.Histogram

	// Walk-forward metrics
	WindowsProcessed prometheus.Counter
	WindowsSkipped   prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "strategy_opt_lab"
	}

	return &Metrics{
		// Run metrics
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "runs_total",
			Help:      "Total number of optimization runs by mode and final status",
		}, []string{"mode", "status"}),
		RunDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "run_duration_seconds",
			Help:      "Optimization run duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"mode"}),
		RunProgress: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "run_progress",
			Help:      "Progress fraction of active runs (0 to 1)",
		}, []string{"run_id"}),

		// Backtest metrics
		BacktestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulator",
			Name:      "backtests_total",
			Help:      "Total number of backtests by phase and status",
		}, []string{"phase", "status"}),
		BacktestDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "simulator",
			Name:      "backtest_duration_seconds",
			Help:      "Single backtest duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Walk-forward metrics
		WindowsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "walkforward",
			Name:      "windows_processed_total",
			Help:      "Total number of walk-forward windows processed",
		}),
		WindowsSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "walkforward",
			Name:      "windows_skipped_total",
			Help:      "Total number of windows skipped for lack of a qualified winner",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordRunFinished records a finished run with its terminal status.
func RecordRunFinished(mode, status string, durationSeconds float64) {
	DefaultMetrics.RunsTotal.WithLabelValues(mode, status).Inc()
	DefaultMetrics.RunDuration.WithLabelValues(mode).Observe(durationSeconds)
}

// RecordBacktest records one simulator call.
func RecordBacktest(phase, status string, durationSeconds float64) {
	DefaultMetrics.BacktestsTotal.WithLabelValues(phase, status).Inc()
	DefaultMetrics.BacktestDuration.Observe(durationSeconds)
}

// UpdateRunProgress updates the progress gauge for a run.
func UpdateRunProgress(runID string, fraction float64) {
	DefaultMetrics.RunProgress.WithLabelValues(runID).Set(fraction)
}

// ClearRunProgress drops the progress series of a finished run.
func ClearRunProgress(runID string) {
	DefaultMetrics.RunProgress.DeleteLabelValues(runID)
}

// RecordWindowProcessed increments the windows processed counter.
func RecordWindowProcessed() {
	DefaultMetrics.WindowsProcessed.Inc()
}

// RecordWindowSkipped increments the windows skipped counter.
func RecordWindowSkipped() {
	DefaultMetrics.WindowsSkipped.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
