package prometheus

import (
	"time"

	"esim-service/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics stay nil until InitMetrics runs; every recorder is a no-op before that.
var (
	// HTTP request metrics
	HttpRequestsTotal   *prometheus.CounterVec
	HttpRequestDuration *prometheus.HistogramVec

	// Authentication metrics
	AuthAttemptsCounter *prometheus.CounterVec
	AccessDeniedCounter *prometheus.CounterVec

	// Database operation metrics
	DbOperationDuration *prometheus.HistogramVec

	// Lifecycle metrics
	TransitionsCounter *prometheus.CounterVec

	// Outbound call metrics
	GatewayCallDuration      *prometheus.HistogramVec
	ProviderValidationsTotal *prometheus.CounterVec

	// QR metrics
	QRCodesCounter *prometheus.CounterVec
)

// InitMetrics initializes Prometheus metrics with configuration
func InitMetrics(config *config.Config) {
	prefix := config.Metrics.Prefix

	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	AuthAttemptsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_auth_attempts_total",
			Help: "Total number of authentication attempts by outcome",
		},
		[]string{"outcome"},
	)

	AccessDeniedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_access_denied_total",
			Help: "Total number of requests denied by the access layer",
		},
		[]string{"action", "role"},
	)

	DbOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation_type"},
	)

	TransitionsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_profile_operations_total",
			Help: "Total number of logged profile operations",
		},
		[]string{"operation", "status"},
	)

	GatewayCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_gateway_call_duration_seconds",
			Help:    "Duration of deployment gateway calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"call", "outcome"},
	)

	ProviderValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_provider_validations_total",
			Help: "Total number of activation code validations by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	QRCodesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_qr_codes_total",
			Help: "Total number of QR code events",
		},
		[]string{"event"},
	)
}

// TrackDBOperation returns a function that records the duration of a database operation
func TrackDBOperation(operationType string) func(startTime time.Time) {
	return func(startTime time.Time) {
		if DbOperationDuration == nil {
			return
		}
		DbOperationDuration.WithLabelValues(operationType).Observe(time.Since(startTime).Seconds())
	}
}

// RecordHTTPRequest records one served request
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if HttpRequestsTotal == nil {
		return
	}
	HttpRequestsTotal.WithLabelValues(method, path, status).Inc()
	HttpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordAuthAttempt counts token checks: success, missing or invalid
func RecordAuthAttempt(outcome string) {
	if AuthAttemptsCounter == nil {
		return
	}
	AuthAttemptsCounter.WithLabelValues(outcome).Inc()
}

// RecordAccessDenied counts access layer denials
func RecordAccessDenied(action, role string) {
	if AccessDeniedCounter == nil {
		return
	}
	AccessDeniedCounter.WithLabelValues(action, role).Inc()
}

// RecordTransition counts an operation log entry
func RecordTransition(operation, status string) {
	if TransitionsCounter == nil {
		return
	}
	TransitionsCounter.WithLabelValues(operation, status).Inc()
}

// ObserveGatewayCall records a deployment gateway round trip
func ObserveGatewayCall(call, outcome string, duration time.Duration) {
	if GatewayCallDuration == nil {
		return
	}
	GatewayCallDuration.WithLabelValues(call, outcome).Observe(duration.Seconds())
}

// RecordProviderValidation counts a provider validation outcome
func RecordProviderValidation(provider, outcome string) {
	if ProviderValidationsTotal == nil {
		return
	}
	ProviderValidationsTotal.WithLabelValues(provider, outcome).Inc()
}

// RecordQREvent counts QR generated, served, regenerated and scanned events
func RecordQREvent(event string) {
	if QRCodesCounter == nil {
		return
	}
	QRCodesCounter.WithLabelValues(event).Inc()
}
