package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	responseTime = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "worker_response_time_seconds",
			Help:    "time from dispatch to the end of the response body.",
			Buckets: []float64{0.005, 0.05, 0.5, 1, 5, 10, 30, 60},
		},
	)

	totalHttpRequestsToUri = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "worker_http_requests_to_uri_total", Help: "dispatched requests by code, uri and method"},
		[]string{"code", "uri", "method"},
	)

	totalHttpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "worker_http_requests_total", Help: "dispatched requests by code and method"},
		[]string{"code", "method"},
	)

	streamedChunks = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "worker_streamed_chunks_total", Help: "response body chunks handed to the host"},
	)

	streamedBytes = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "worker_streamed_bytes_total", Help: "response body bytes handed to the host"},
	)

	streamFaults = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "worker_stream_faults_total", Help: "response bodies that ended with a fault"},
	)

	entryInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "worker_entry_invocations_total", Help: "entry point invocations by role and outcome"},
		[]string{"role", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		responseTime,
		totalHttpRequestsToUri,
		totalHttpRequests,
		streamedChunks,
		streamedBytes,
		streamFaults,
		entryInvocations,
	)
}

// Outcomes recorded for entry invocations.
const (
	OutcomeOK        = "ok"
	OutcomeResponded = "responded_with_error"
	OutcomeAborted   = "aborted"
)

// ObserveEntry counts one invocation of an entry point.
func ObserveEntry(role, outcome string) {
	entryInvocations.WithLabelValues(role, outcome).Inc()
}
