package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the ingestion orchestrator

var (
	// API call metrics
	APICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courtside_api_calls_total",
			Help: "Total number of upstream API calls",
		},
		[]string{"endpoint", "status"},
	)

	APICallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "courtside_api_call_duration_seconds",
			Help:    "Duration of upstream API calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Ingestion cycle metrics
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courtside_ingestion_cycles_total",
			Help: "Total number of ingestion cycle executions",
		},
		[]string{"status"},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "courtside_ingestion_cycle_duration_seconds",
			Help:    "Duration of ingestion cycles in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	SnapshotsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "courtside_snapshots_written_total",
			Help: "Total number of raw snapshot rows written to the warehouse",
		},
	)

	// Orchestrator metrics
	WindowActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "courtside_polling_window_active",
			Help: "Whether the polling window is currently active (1) or not (0)",
		},
	)

	LiveGames = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "courtside_live_games",
			Help: "Number of games currently tracked as live",
		},
	)

	ScheduleRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courtside_schedule_refreshes_total",
			Help: "Total number of daily schedule refreshes",
		},
		[]string{"status"},
	)

	OrchestratorTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "courtside_orchestrator_ticks_total",
			Help: "Total number of orchestrator ticks",
		},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courtside_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	// System metrics
	SystemUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "courtside_system_uptime_seconds",
			Help: "System uptime in seconds",
		},
	)

	LastSuccessfulCycle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "courtside_last_successful_cycle_timestamp",
			Help: "Timestamp of the last successful ingestion cycle",
		},
	)
)

// RecordAPICall records an API call metric
func RecordAPICall(endpoint, status string, duration float64) {
	APICallsTotal.WithLabelValues(endpoint, status).Inc()
	APICallDuration.WithLabelValues(endpoint).Observe(duration)
}

// RecordCycle records an ingestion cycle execution
func RecordCycle(status string, duration float64) {
	CyclesTotal.WithLabelValues(status).Inc()
	CycleDuration.Observe(duration)

	if status == "success" {
		LastSuccessfulCycle.SetToCurrentTime()
	}
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// SetWindowActive updates the polling window gauge
func SetWindowActive(active bool) {
	if active {
		WindowActive.Set(1)
	} else {
		WindowActive.Set(0)
	}
}

// RecordScheduleRefresh records a daily schedule refresh
func RecordScheduleRefresh(status string) {
	ScheduleRefreshesTotal.WithLabelValues(status).Inc()
}
