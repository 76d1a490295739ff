package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP Request Metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "toolgate",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		},
		[]string{"method", "status_code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "toolgate",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "status_code"},
	)

	httpActiveRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "toolgate",
			Subsystem: "http",
			Name:      "active_requests",
			Help:      "Number of currently active HTTP requests",
		},
	)

	// Rate Limit Metrics
	rateLimitChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "toolgate",
			Subsystem: "ratelimit",
			Name:      "checks_total",
			Help:      "Total number of rate limit decisions by outcome",
		},
		[]string{"outcome"}, // allowed, rate_limited, blocked
	)

	rateLimitCheckDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "toolgate",
			Subsystem: "ratelimit",
			Name:      "check_duration_seconds",
			Help:      "Duration of a full rate limit evaluation in seconds",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		},
	)

	rateLimitViolationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "toolgate",
			Subsystem: "ratelimit",
			Name:      "violations_total",
			Help:      "Total number of recorded violations",
		},
	)

	rateLimitBlocksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "toolgate",
			Subsystem: "ratelimit",
			Name:      "blocks_total",
			Help:      "Total number of block writes by trigger",
		},
		[]string{"trigger"}, // auto, manual, renewal
	)

	rateLimitUnblocksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "toolgate",
			Subsystem: "ratelimit",
			Name:      "unblocks_total",
			Help:      "Total number of administrative unblocks",
		},
	)

	rateLimitUtilization = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "toolgate",
			Subsystem: "ratelimit",
			Name:      "utilization_percent",
			Help:      "Utilization of the most constraining window as a percentage",
		},
		[]string{"window"}, // minute, hour
	)

	// Store Metrics
	storeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "toolgate",
			Subsystem: "store",
			Name:      "errors_total",
			Help:      "Total number of key-value store errors by operation",
		},
		[]string{"operation"}, // get, set, incr, delete, ping
	)

	// Circuit Breaker Metrics
	circuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "toolgate",
			Subsystem: "circuitbreaker",
			Name:      "state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"name"},
	)

	circuitBreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "toolgate",
			Subsystem: "circuitbreaker",
			Name:      "transitions_total",
			Help:      "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Backend (downstream dispatch) Metrics
	backendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "toolgate",
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "Total number of forwarded requests by status code",
		},
		[]string{"status_code"},
	)

	backendRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "toolgate",
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "Upstream dispatch duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	backendErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "toolgate",
			Subsystem: "backend",
			Name:      "errors_total",
			Help:      "Total number of upstream dispatch errors by type",
		},
		[]string{"error_type"},
	)
)

var registerOnce sync.Once

// Register registers all metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestsTotal,
			httpRequestDuration,
			httpActiveRequests,
			rateLimitChecksTotal,
			rateLimitCheckDuration,
			rateLimitViolationsTotal,
			rateLimitBlocksTotal,
			rateLimitUnblocksTotal,
			rateLimitUtilization,
			storeErrorsTotal,
			circuitBreakerState,
			circuitBreakerTransitions,
			backendRequestsTotal,
			backendRequestDuration,
			backendErrorsTotal,
		)
	})
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	Register()
	return promhttp.Handler()
}

// RecordHTTPRequest records a completed HTTP request
func RecordHTTPRequest(method, statusCode string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, statusCode).Inc()
	httpRequestDuration.WithLabelValues(method, statusCode).Observe(duration.Seconds())
}

// IncActiveRequests increments the active request gauge
func IncActiveRequests() {
	httpActiveRequests.Inc()
}

// DecActiveRequests decrements the active request gauge
func DecActiveRequests() {
	httpActiveRequests.Dec()
}

// RecordRateLimitCheck records a rate limit decision
func RecordRateLimitCheck(outcome string, duration time.Duration) {
	rateLimitChecksTotal.WithLabelValues(outcome).Inc()
	rateLimitCheckDuration.Observe(duration.Seconds())
}

// RecordViolation records a recorded violation
func RecordViolation() {
	rateLimitViolationsTotal.Inc()
}

// RecordBlock records a block write
func RecordBlock(trigger string) {
	rateLimitBlocksTotal.WithLabelValues(trigger).Inc()
}

// RecordUnblock records an administrative unblock
func RecordUnblock() {
	rateLimitUnblocksTotal.Inc()
}

// RecordRateLimitUtilization records utilization of the most constraining window
func RecordRateLimitUtilization(window string, utilizationPercent float64) {
	rateLimitUtilization.WithLabelValues(window).Set(utilizationPercent)
}

// RecordStoreError records a key-value store error
func RecordStoreError(operation string) {
	storeErrorsTotal.WithLabelValues(operation).Inc()
}

// SetCircuitBreakerState sets the circuit breaker state gauge
func SetCircuitBreakerState(name string, state int) {
	circuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordCircuitBreakerTransition records a circuit breaker state transition
func RecordCircuitBreakerTransition(name, fromState, toState string) {
	circuitBreakerTransitions.WithLabelValues(name, fromState, toState).Inc()
}

// RecordBackendRequest records a forwarded request
func RecordBackendRequest(statusCode string, duration time.Duration) {
	backendRequestsTotal.WithLabelValues(statusCode).Inc()
	backendRequestDuration.Observe(duration.Seconds())
}

// RecordBackendError records an upstream dispatch error
func RecordBackendError(errorType string) {
	backendErrorsTotal.WithLabelValues(errorType).Inc()
}
