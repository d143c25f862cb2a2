package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "weather_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL pipeline.
type Metrics struct {
	// Flatten stage.
	DocumentsRead    prometheus.Counter
	DocumentsSkipped prometheus.Counter
	RecordsFlattened prometheus.Counter
	FieldsDefaulted  *prometheus.CounterVec // labels: field

	// Load stage.
	RecordsDropped    prometheus.Counter
	DuplicatesRemoved prometheus.Counter
	RowsInserted      prometheus.Counter
	RowsSkipped       prometheus.Counter

	// Runs.
	StageDuration    *prometheus.HistogramVec // labels: stage={flatten,load}
	StageFailures    *prometheus.CounterVec   // labels: stage={flatten,load}
	Runs             *prometheus.CounterVec   // labels: outcome={success,empty,failure,skipped}
	LastSuccess      prometheus.Gauge
	SchedulerRunning prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		DocumentsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_read_total",
			Help:      "Raw observation documents read from the document store.",
		}),
		DocumentsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_skipped_total",
			Help:      "Raw documents that could not be decoded and were skipped.",
		}),
		RecordsFlattened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_flattened_total",
			Help:      "Flat records written to artifacts.",
		}),
		FieldsDefaulted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fields_defaulted_total",
			Help:      "Source fields absent during flattening, by output column.",
		}, []string{"field"}),
		RecordsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Artifact records dropped because observed_at was null or unparseable.",
		}),
		DuplicatesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_removed_total",
			Help:      "Records removed by in-batch natural-key deduplication.",
		}),
		RowsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_inserted_total",
			Help:      "Rows created in weather_readings.",
		}),
		RowsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_skipped_total",
			Help:      "Rows skipped because their natural key already existed.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of a flatten or load stage.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		StageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Failed flatten or load stages.",
		}, []string{"stage"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
		SchedulerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_running",
			Help:      "1 when the scheduler is active, 0 when shut down.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.DocumentsRead,
		m.DocumentsSkipped,
		m.RecordsFlattened,
		m.FieldsDefaulted,
		m.RecordsDropped,
		m.DuplicatesRemoved,
		m.RowsInserted,
		m.RowsSkipped,
		m.StageDuration,
		m.StageFailures,
		m.Runs,
		m.LastSuccess,
		m.SchedulerRunning,
	}
}
