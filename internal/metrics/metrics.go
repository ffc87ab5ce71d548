package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus collectors for the scan station. Components increment
// them directly; the daemon calls Register once at startup.
var (
	ScanEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_events_total",
			Help: "Raw scan events seen by the gate, by decision (admit or drop reason)",
		},
		[]string{"decision"},
	)

	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transactions_total",
			Help: "Completed transactions by protocol mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	ServiceRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "service_requests_total",
			Help: "Calls to the fulfillment service by call and result",
		},
		[]string{"call", "result"},
	)

	ServiceRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "service_request_duration_seconds",
			Help:    "Fulfillment service call latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"call"},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Requests to the local station API",
		},
		[]string{"handler", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Local station API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler", "method"},
	)
)

// Register registers all collectors with the default registry.
func Register() {
	prometheus.MustRegister(ScanEventsTotal)
	prometheus.MustRegister(TransactionsTotal)
	prometheus.MustRegister(ServiceRequestsTotal)
	prometheus.MustRegister(ServiceRequestDuration)
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
}
