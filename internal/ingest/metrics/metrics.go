package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for ingestion runs.
type Metrics struct {
	RecordsProcessed  prometheus.Counter
	RecordsDropped    prometheus.Counter
	RunsTotal         *prometheus.CounterVec
	RunDuration       prometheus.Histogram
	WorkspacesCreated prometheus.Counter
}

// New creates a Metrics instance with all ingestion metrics registered.
func New() *Metrics {
	return &Metrics{
		RecordsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civicat_ingest_records_processed_total",
			Help: "Total source records read across ingestion runs",
		}),
		RecordsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civicat_ingest_records_dropped_total",
			Help: "Records dropped because their city is not whitelisted",
		}),
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civicat_ingest_runs_total",
			Help: "Ingestion runs by outcome",
		}, []string{"outcome"}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "civicat_ingest_run_duration_seconds",
			Help:    "Wall-clock duration of ingestion runs",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 1800},
		}),
		WorkspacesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civicat_ingest_workspaces_created_total",
			Help: "Workspace documents created during ingestion",
		}),
	}
}

// ObserveRun records the outcome and duration of one run.
func (m *Metrics) ObserveRun(start time.Time, outcome string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(time.Since(start).Seconds())
}

// AddProcessed counts records read from the source.
func (m *Metrics) AddProcessed(n int) {
	if m == nil {
		return
	}
	m.RecordsProcessed.Add(float64(n))
}

// IncDropped counts a record rejected by the whitelist.
func (m *Metrics) IncDropped() {
	if m == nil {
		return
	}
	m.RecordsDropped.Inc()
}

// IncWorkspaceCreated counts a workspace document created by a run.
func (m *Metrics) IncWorkspaceCreated() {
	if m == nil {
		return
	}
	m.WorkspacesCreated.Inc()
}
