// Package metrics defines the Prometheus collectors for the embedding worker
// and exposes an HTTP handler for scraping. All recording methods are safe
// to call on a nil *Metrics so tests and tools can run without a registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the worker.
type Metrics struct {
	JobsProcessedTotal  *prometheus.CounterVec
	StepDuration        *prometheus.HistogramVec
	LedgerResultsTotal  *prometheus.CounterVec
	AcksTotal           *prometheus.CounterVec
	IndexOpsTotal       *prometheus.CounterVec
	JobsInFlight        prometheus.Gauge
	CircuitBreakerState *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsProcessedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "embedding_jobs_processed_total",
				Help: "Jobs processed by outcome (success, retryable, permanent).",
			},
			[]string{"outcome"},
		),
		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "embedding_step_duration_seconds",
				Help:    "Latency of each job step in seconds.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"step"},
		),
		LedgerResultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "embedding_ledger_begin_total",
				Help: "Ledger try-begin results (admitted, already_completed, already_in_progress, exhausted, error).",
			},
			[]string{"result"},
		),
		AcksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "embedding_acks_total",
				Help: "Broker settlements by decision (ack, nack_requeue, nack_dead_letter).",
			},
			[]string{"decision"},
		),
		IndexOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "embedding_index_operations_total",
				Help: "Vector index operations by op and status.",
			},
			[]string{"op", "status"},
		),
		JobsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "embedding_jobs_in_flight",
				Help: "Jobs currently being processed.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.JobsProcessedTotal,
		m.StepDuration,
		m.LedgerResultsTotal,
		m.AcksTotal,
		m.IndexOpsTotal,
		m.JobsInFlight,
		m.CircuitBreakerState,
	)
	return m
}

// JobProcessed counts a finished job.
func (m *Metrics) JobProcessed(outcome string) {
	if m == nil {
		return
	}
	m.JobsProcessedTotal.WithLabelValues(outcome).Inc()
}

// ObserveStep records how long a step took.
func (m *Metrics) ObserveStep(step string, d time.Duration) {
	if m == nil {
		return
	}
	m.StepDuration.WithLabelValues(step).Observe(d.Seconds())
}

// LedgerResult counts a try-begin result.
func (m *Metrics) LedgerResult(result string) {
	if m == nil {
		return
	}
	m.LedgerResultsTotal.WithLabelValues(result).Inc()
}

// Ack counts a broker settlement.
func (m *Metrics) Ack(decision string) {
	if m == nil {
		return
	}
	m.AcksTotal.WithLabelValues(decision).Inc()
}

// IndexOp counts a vector index call.
func (m *Metrics) IndexOp(op string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.IndexOpsTotal.WithLabelValues(op, status).Inc()
}

// JobStarted and JobFinished track the in-flight gauge.
func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.JobsInFlight.Inc()
}

func (m *Metrics) JobFinished() {
	if m == nil {
		return
	}
	m.JobsInFlight.Dec()
}

// SetCircuitState publishes a breaker's state as its numeric value.
func (m *Metrics) SetCircuitState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// Handler returns the scrape handler for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
