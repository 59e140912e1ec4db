package queue

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels how an attempt ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeRetry     Outcome = "retry"
	OutcomeFailed    Outcome = "failed"
)

// Metrics receives queue activity. Implementations must be safe for concurrent use.
type Metrics interface {
	JobEnqueued(kind string)
	JobFinished(kind string, outcome Outcome, took time.Duration)
	JobsExpired(n int)
	JobsRequeued(n int)
	JobsPurged(n int)
}

type NopMetrics struct{}

func (NopMetrics) JobEnqueued(string)                         {}
func (NopMetrics) JobFinished(string, Outcome, time.Duration) {}
func (NopMetrics) JobsExpired(int)                            {}
func (NopMetrics) JobsRequeued(int)                           {}
func (NopMetrics) JobsPurged(int)                             {}

// PrometheusMetrics exports queue activity under the conduit_queue_ prefix.
type PrometheusMetrics struct {
	enqueued    *prometheus.CounterVec
	finished    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	maintenance *prometheus.CounterVec
}

func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conduit_queue_jobs_enqueued_total",
			Help: "Jobs inserted into the queue",
		}, []string{"kind"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conduit_queue_jobs_finished_total",
			Help: "Job attempts by outcome",
		}, []string{"kind", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "conduit_queue_job_duration_seconds",
			Help:    "Handler execution time",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		maintenance: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conduit_queue_maintenance_jobs_total",
			Help: "Jobs touched by queue maintenance",
		}, []string{"action"}),
	}
	reg.MustRegister(m.enqueued, m.finished, m.duration, m.maintenance)
	return m
}

func (m *PrometheusMetrics) JobEnqueued(kind string) {
	m.enqueued.WithLabelValues(kind).Inc()
}

func (m *PrometheusMetrics) JobFinished(kind string, outcome Outcome, took time.Duration) {
	m.finished.WithLabelValues(kind, string(outcome)).Inc()
	m.duration.WithLabelValues(kind).Observe(took.Seconds())
}

func (m *PrometheusMetrics) JobsExpired(n int) {
	m.maintenance.WithLabelValues("expired").Add(float64(n))
}

func (m *PrometheusMetrics) JobsRequeued(n int) {
	m.maintenance.WithLabelValues("requeued").Add(float64(n))
}

func (m *PrometheusMetrics) JobsPurged(n int) {
	m.maintenance.WithLabelValues("purged").Add(float64(n))
}
