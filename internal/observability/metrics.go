package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce             sync.Once
	assessmentRequestsTotal  *prometheus.CounterVec
	assessmentLatencySeconds *prometheus.HistogramVec
	assessmentErrorsTotal    *prometheus.CounterVec
	evaluationsTotal         *prometheus.CounterVec
	batchItemFailuresTotal   *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the assessment API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		assessmentRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assessment_requests_total",
			Help: "Total number of assessment API requests served.",
		}, []string{"method", "route", "status"})

		assessmentLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "assessment_latency_seconds",
			Help:    "Latency distribution for assessment API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		}, []string{"method", "route"})

		assessmentErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assessment_errors_total",
			Help: "Total number of error responses returned by assessment endpoints.",
		}, []string{"method", "route", "status"})

		evaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assessment_evaluations_total",
			Help: "Answers evaluated, by match mode and outcome.",
		}, []string{"mode", "correct"})

		batchItemFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assessment_batch_item_failures_total",
			Help: "Batch entries that failed, by failure kind.",
		}, []string{"kind"})

		prometheus.MustRegister(assessmentRequestsTotal, assessmentLatencySeconds, assessmentErrorsTotal, evaluationsTotal, batchItemFailuresTotal)
	})
}

// AssessmentRequests exposes the counter for assessment requests.
func AssessmentRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return assessmentRequestsTotal
}

// AssessmentLatency exposes the latency histogram for assessment requests.
func AssessmentLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return assessmentLatencySeconds
}

// AssessmentErrors exposes the counter for assessment error responses.
func AssessmentErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return assessmentErrorsTotal
}

// Evaluations exposes the evaluation outcome counter.
func Evaluations() *prometheus.CounterVec {
	RegisterMetrics()
	return evaluationsTotal
}

// BatchItemFailures exposes the per-item batch failure counter.
func BatchItemFailures() *prometheus.CounterVec {
	RegisterMetrics()
	return batchItemFailuresTotal
}
