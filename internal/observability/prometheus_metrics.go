package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal counts side-port HTTP requests (health/metrics) by
	// route, method, and status label. Outbound image fetches made through
	// IntegratedObservableClient are counted here too, labelled by endpoint,
	// operation, and success/error/timeout.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	// HTTPRequestDuration records request durations by route and method.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	// JobsReceivedTotal counts deliveries received off the ingress queue, by
	// partition.
	JobsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_jobs_received_total",
			Help: "Total number of image jobs received",
		},
		[]string{"partition"},
	)
	// JobsProcessing is a gauge of in-flight deliveries by partition.
	JobsProcessing = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "image_jobs_processing",
			Help: "Number of image jobs currently processing",
		},
		[]string{"partition"},
	)
	// JobsCompletedTotal counts successful pipeline runs by partition.
	JobsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_jobs_completed_total",
			Help: "Total number of image jobs completed",
		},
		[]string{"partition"},
	)
	// JobsFailedTotal counts failed deliveries by partition and error code:
	// terminal failures, failed attempts that were scheduled for retry, and
	// deliveries rejected on ingress.
	JobsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_jobs_failed_total",
			Help: "Total number of image jobs failed",
		},
		[]string{"partition", "error_code"},
	)
	// PhaseDuration records per-phase pipeline timings.
	PhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "image_processing_phase_duration_seconds",
			Help:    "Duration of each pipeline phase in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"phase"},
	)
	// RetryScheduledTotal counts republishes scheduled by the backoff scheduler, by partition
	// and the retry count being scheduled into.
	RetryScheduledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_jobs_retry_scheduled_total",
			Help: "Total number of scheduled republishes",
		},
		[]string{"partition", "retry_count"},
	)
	// DLQTotal counts deliveries routed to the dead-letter exchange, by
	// error code.
	DLQTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_jobs_dlq_total",
			Help: "Total number of image jobs routed to the dead-letter exchange",
		},
		[]string{"error_code"},
	)
	// CircuitBreakerStatus tracks circuit breaker state (0=closed,
	// 1=open, 2=half-open) per guarded connection.
	CircuitBreakerStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_status",
			Help: "Circuit breaker status (0=closed, 1=open, 2=half-open)",
		},
		[]string{"connection", "operation"},
	)
)

// InitMetrics registers all Prometheus metrics with the default registry.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(JobsReceivedTotal)
	prometheus.MustRegister(JobsProcessing)
	prometheus.MustRegister(JobsCompletedTotal)
	prometheus.MustRegister(JobsFailedTotal)
	prometheus.MustRegister(PhaseDuration)
	prometheus.MustRegister(RetryScheduledTotal)
	prometheus.MustRegister(DLQTotal)
	prometheus.MustRegister(CircuitBreakerStatus)
}

// HTTPMetricsMiddleware records Prometheus metrics for each side-port request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

// ReceiveJob increments the received counter for a partition.
func ReceiveJob(partition string) {
	JobsReceivedTotal.WithLabelValues(partition).Inc()
}

// StartProcessingJob increments the processing gauge for a partition.
func StartProcessingJob(partition string) {
	JobsProcessing.WithLabelValues(partition).Inc()
}

// CompleteJob marks a job complete: decrements processing, increments completed.
func CompleteJob(partition string) {
	JobsProcessing.WithLabelValues(partition).Dec()
	JobsCompletedTotal.WithLabelValues(partition).Inc()
}

// FailJob marks a job failed: decrements processing, increments failed by error code.
func FailJob(partition, errorCode string) {
	JobsProcessing.WithLabelValues(partition).Dec()
	JobsFailedTotal.WithLabelValues(partition, errorCode).Inc()
}

// RejectJob records a delivery rejected before it ever entered the
// processing gauge (malformed payload, retry budget already exhausted on
// ingress). Unlike FailJob it must not Dec the processing gauge, since
// StartProcessingJob was never called for it.
func RejectJob(partition, errorCode string) {
	JobsFailedTotal.WithLabelValues(partition, errorCode).Inc()
}

// ObservePhaseDuration records a phase's elapsed time.
func ObservePhaseDuration(phase string, d time.Duration) {
	PhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// RecordRetryScheduled records a scheduled republish.
func RecordRetryScheduled(partition string, retryCount int) {
	RetryScheduledTotal.WithLabelValues(partition, strconv.Itoa(retryCount)).Inc()
}

// RecordDLQ records a delivery routed to the dead-letter exchange.
func RecordDLQ(errorCode string) {
	DLQTotal.WithLabelValues(errorCode).Inc()
}

// RecordCircuitBreakerStatus records circuit breaker state.
func RecordCircuitBreakerStatus(connection, operation string, status int) {
	CircuitBreakerStatus.WithLabelValues(connection, operation).Set(float64(status))
}
