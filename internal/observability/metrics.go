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
	// Engine metrics
	RunsTotal      *prometheus.CounterVec
	RunDuration    prometheus.Histogram
	BarsProcessed  prometheus.Counter
	TradesRecorded *prometheus.CounterVec
	PausedBars     prometheus.Counter

	// Sweep metrics
	SweepJobsTotal    *prometheus.CounterVec
	SweepRunsInFlight prometheus.Gauge
	SweepDuration     prometheus.Histogram

	// Verification metrics
	VerificationsTotal *prometheus.CounterVec

	// Streaming metrics
	StreamClients prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
	RowsWritten     *prometheus.CounterVec

	// Health metrics
	LastSuccessfulRun prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "backtest"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "runs_total",
			Help:      "Total number of backtest runs by status",
		}, []string{"status"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "run_duration_seconds",
			Help:      "Wall time of one backtest run in seconds",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		}),
		BarsProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "bars_processed_total",
			Help:      "Total number of bars simulated",
		}),
		TradesRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "trades_total",
			Help:      "Total number of closed trades by exit reason",
		}, []string{"exit_reason"}),
		PausedBars: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "paused_bars_total",
			Help:      "Total number of bars with entries blocked by drawdown pause",
		}),

		SweepJobsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "jobs_total",
			Help:      "Total number of parameter sweep jobs by status",
		}, []string{"status"}),
		SweepRunsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "runs_in_flight",
			Help:      "Number of sweep runs currently executing",
		}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "duration_seconds",
			Help:      "Sweep job duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),

		VerificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verification",
			Name:      "runs_total",
			Help:      "Total number of replay verifications by result",
		}, []string{"result"}),

		StreamClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "stream_clients",
			Help:      "Number of connected ledger stream clients",
		}),

		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"store", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"store", "operation"}),
		RowsWritten: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "rows_written_total",
			Help:      "Total number of rows written by store",
		}, []string{"store"}),

		LastSuccessfulRun: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of last successful backtest run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordRun records a finished backtest run.
func (m *Metrics) RecordRun(status string, seconds float64, bars int) {
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(seconds)
	m.BarsProcessed.Add(float64(bars))
}

// RecordTrade increments the trade counter for reason.
func (m *Metrics) RecordTrade(exitReason string) {
	m.TradesRecorded.WithLabelValues(exitReason).Inc()
}

// RecordSweep records a finished sweep job.
func (m *Metrics) RecordSweep(status string, seconds float64) {
	m.SweepJobsTotal.WithLabelValues(status).Inc()
	m.SweepDuration.Observe(seconds)
}

// RecordDBWrite records database write metrics.
func (m *Metrics) RecordDBWrite(store, operation string, rows int, seconds float64, err error) {
	m.DBQueryDuration.WithLabelValues(store, operation).Observe(seconds)
	if err != nil {
		m.DBQueryErrors.WithLabelValues(store, operation).Inc()
		return
	}
	m.RowsWritten.WithLabelValues(store).Add(float64(rows))
}

// RecordVerification records the outcome of one replay verification.
func RecordVerification(ok bool) {
	result := "match"
	if !ok {
		result = "mismatch"
	}
	DefaultMetrics.VerificationsTotal.WithLabelValues(result).Inc()
}
