// Package metrics provides Prometheus metrics for the staff portal.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Portal HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coffeeportal_http_requests_total",
			Help: "Total number of portal HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coffeeportal_http_request_duration_seconds",
			Help:    "Portal HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Backend API metrics
	apiCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coffeeportal_api_calls_total",
			Help: "Total calls to the backend API by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	apiCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coffeeportal_api_call_duration_seconds",
			Help:    "Backend API call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	apiCallsSuperseded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coffeeportal_api_calls_superseded_total",
			Help: "In-flight API calls aborted because a newer call replaced them",
		},
	)

	// Session metrics
	sessionResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coffeeportal_session_resolutions_total",
			Help: "Session context resolutions by outcome",
		},
		[]string{"outcome"},
	)

	sessionTeardownsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coffeeportal_session_teardowns_total",
			Help: "Session teardowns by reason",
		},
		[]string{"reason"},
	)

	// Media library metrics
	libraryMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coffeeportal_library_mutations_total",
			Help: "Media library mutations by operation and status",
		},
		[]string{"op", "status"},
	)

	libraryTreeSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coffeeportal_library_tree_size",
			Help: "Number of folder nodes in the most recently built tree",
		},
	)

	libraryUploadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coffeeportal_library_upload_bytes_total",
			Help: "Total bytes uploaded through the media library",
		},
	)

	previewRefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coffeeportal_preview_refresh_duration_seconds",
			Help:    "Time to refresh all preview URLs of a library view",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Store metrics
	storeOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coffeeportal_store_operation_duration_seconds",
			Help:    "Client state store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	// S3 metrics
	s3OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coffeeportal_s3_operation_duration_seconds",
			Help:    "S3 operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	s3OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coffeeportal_s3_operations_total",
			Help: "Total S3 operations",
		},
		[]string{"operation", "status"},
	)

	// Notification metrics
	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coffeeportal_notifications_total",
			Help: "User-visible notifications published by level",
		},
		[]string{"level"},
	)

	notificationStreamsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coffeeportal_notification_streams_active",
			Help: "Number of connected notification streams",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records a portal HTTP request metric.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordAPICall records a backend API call and its outcome kind.
func RecordAPICall(op, outcome string, duration time.Duration) {
	apiCallsTotal.WithLabelValues(op, outcome).Inc()
	apiCallDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordSuperseded records an API call aborted by a newer one.
func RecordSuperseded() {
	apiCallsSuperseded.Inc()
}

// RecordResolution records how a session context was resolved.
func RecordResolution(outcome string) {
	sessionResolutionsTotal.WithLabelValues(outcome).Inc()
}

// RecordTeardown records a session teardown.
func RecordTeardown(reason string) {
	sessionTeardownsTotal.WithLabelValues(reason).Inc()
}

// RecordLibraryMutation records a media library mutation.
func RecordLibraryMutation(op string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	libraryMutationsTotal.WithLabelValues(op, status).Inc()
}

// SetLibraryTreeSize sets the size of the last built folder tree.
func SetLibraryTreeSize(size int) {
	libraryTreeSize.Set(float64(size))
}

// RecordUpload records uploaded bytes.
func RecordUpload(bytes int64) {
	libraryUploadBytes.Add(float64(bytes))
}

// RecordPreviewRefresh records a preview URL refresh pass.
func RecordPreviewRefresh(duration time.Duration) {
	previewRefreshDuration.Observe(duration.Seconds())
}

// RecordStoreOperation records a client state store operation.
func RecordStoreOperation(backend, operation string, duration time.Duration) {
	storeOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// RecordS3Operation records an S3 operation.
func RecordS3Operation(operation string, duration time.Duration, success bool) {
	s3OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	status := "success"
	if !success {
		status = "error"
	}
	s3OperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordNotification records a published notification.
func RecordNotification(level string) {
	notificationsTotal.WithLabelValues(level).Inc()
}

// SetNotificationStreamsActive sets the number of connected notification streams.
func SetNotificationStreamsActive(count int) {
	notificationStreamsActive.Set(float64(count))
}
