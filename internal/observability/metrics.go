package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	httpRequestsTotal      *prometheus.CounterVec
	httpLatencySeconds     *prometheus.HistogramVec
	gradingRequestsTotal   *prometheus.CounterVec
	gradingDurationSeconds *prometheus.HistogramVec
	gradingExtractions     *prometheus.CounterVec
	gradingRetriesTotal    prometheus.Counter
)

// RegisterMetrics initialises the Prometheus collectors for the HTTP layer and the grading pipeline.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gema_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gema_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"method", "route"})

		gradingRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gema_grading_requests_total",
			Help: "Grading runs by outcome.",
		}, []string{"outcome"})

		gradingDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gema_grading_duration_seconds",
			Help:    "End-to-end grading duration including the retry.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 90},
		}, []string{"outcome"})

		gradingExtractions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gema_grading_extractions_total",
			Help: "Extraction attempts by matching strategy, or failed.",
		}, []string{"strategy"})

		gradingRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gema_grading_retries_total",
			Help: "Grading runs that needed the strict retry prompt.",
		})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			gradingRequestsTotal,
			gradingDurationSeconds,
			gradingExtractions,
			gradingRetriesTotal,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// GradingRequests exposes the grading outcome counter.
func GradingRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingRequestsTotal
}

// GradingDuration exposes the grading duration histogram.
func GradingDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return gradingDurationSeconds
}

// GradingExtractions exposes the extraction strategy counter.
func GradingExtractions() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingExtractions
}

// GradingRetries exposes the retry counter.
func GradingRetries() prometheus.Counter {
	RegisterMetrics()
	return gradingRetriesTotal
}
