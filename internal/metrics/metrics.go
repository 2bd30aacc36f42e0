package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the payout service
type Metrics struct {
	// API metrics
	PayoutsCreatedTotal  *prometheus.CounterVec
	EnqueueFailuresTotal prometheus.Counter

	// Processing metrics
	ProcessingResultsTotal *prometheus.CounterVec
	ProcessingDuration     *prometheus.HistogramVec

	// Task metrics
	TaskRetriesTotal   prometheus.Counter
	TaskAbandonedTotal prometheus.Counter
	TasksInFlight      prometheus.Gauge
}

// NewMetrics creates the metrics and registers them with reg. A nil reg
// uses the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "payout_service"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		PayoutsCreatedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payouts_created_total",
				Help:      "Total number of payouts created",
			},
			[]string{"currency"},
		),

		EnqueueFailuresTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "enqueue_failures_total",
				Help:      "Total number of payouts that could not be queued for processing",
			},
		),

		ProcessingResultsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "processing_results_total",
				Help:      "Total number of processing runs by result code",
			},
			[]string{"result"},
		),

		ProcessingDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "processing_duration_seconds",
				Help:      "Wall time of one processing attempt in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 15, 30},
			},
			[]string{"result"},
		),

		TaskRetriesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "task_retries_total",
				Help:      "Total number of processing attempts retried after an infrastructure error",
			},
		),

		TaskAbandonedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "task_abandoned_total",
				Help:      "Total number of processing tasks dropped after exhausting retries",
			},
		),

		TasksInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tasks_in_flight",
				Help:      "Number of processing tasks currently running",
			},
		),
	}
}

// RecordPayoutCreated records a newly created payout
func (m *Metrics) RecordPayoutCreated(currency string) {
	m.PayoutsCreatedTotal.WithLabelValues(currency).Inc()
}

// RecordEnqueueFailure records a payout that could not be queued
func (m *Metrics) RecordEnqueueFailure() {
	m.EnqueueFailuresTotal.Inc()
}

// RecordProcessingResult records the outcome of one processing attempt.
// Infrastructure failures are recorded with result "ERROR_INFRA".
func (m *Metrics) RecordProcessingResult(result string, durationSeconds float64) {
	m.ProcessingResultsTotal.WithLabelValues(result).Inc()
	m.ProcessingDuration.WithLabelValues(result).Observe(durationSeconds)
}

// RecordTaskRetry records a retried attempt
func (m *Metrics) RecordTaskRetry() {
	m.TaskRetriesTotal.Inc()
}

// RecordTaskAbandoned records a task dropped after its last retry
func (m *Metrics) RecordTaskAbandoned() {
	m.TaskAbandonedTotal.Inc()
}

// TaskStarted and TaskFinished track in-flight tasks
func (m *Metrics) TaskStarted() {
	m.TasksInFlight.Inc()
}

func (m *Metrics) TaskFinished() {
	m.TasksInFlight.Dec()
}
