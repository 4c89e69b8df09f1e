package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds all Prometheus collectors for the gateway.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Invocation metrics.
	InvocationsTotal *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec
	UpstreamAttempts *prometheus.HistogramVec

	// Rate limiting.
	RateLimitRejectionsTotal *prometheus.CounterVec

	// Token manager.
	TokenRefreshesTotal *prometheus.CounterVec

	// Collector (metering) metrics.
	CollectorBufferSize prometheus.Gauge

	// Auth metrics.
	AuthFailuresTotal  prometheus.Counter
	AuthSuccessesTotal prometheus.Counter

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amztec_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "amztec_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path_pattern"}),

		InvocationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amztec_invocations_total",
			Help: "Total number of tool invocations.",
		}, []string{"tenant", "operation", "outcome"}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "amztec_upstream_duration_seconds",
			Help:    "Upstream call duration in seconds, including retries.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),

		UpstreamAttempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "amztec_upstream_attempts",
			Help:    "Number of upstream attempts per call.",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		}, []string{"operation"}),

		RateLimitRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amztec_ratelimit_rejections_total",
			Help: "Total number of rate limit rejections surfaced to callers.",
		}, []string{"tenant", "operation"}),

		TokenRefreshesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amztec_token_refreshes_total",
			Help: "Total number of access token refreshes.",
		}, []string{"tenant", "status"}),

		CollectorBufferSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "amztec_collector_buffer_size",
			Help: "Current number of buffered usage events.",
		}),

		AuthFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "amztec_auth_failures_total",
			Help: "Total number of failed caller authentications.",
		}),

		AuthSuccessesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "amztec_auth_successes_total",
			Help: "Total number of successful caller authentications.",
		}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "amztec_server_start_time_seconds",
			Help: "Unix timestamp of server start.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.InvocationsTotal,
		m.UpstreamDuration,
		m.UpstreamAttempts,
		m.RateLimitRejectionsTotal,
		m.TokenRefreshesTotal,
		m.CollectorBufferSize,
		m.AuthFailuresTotal,
		m.AuthSuccessesTotal,
		m.ServerStartTime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m.ServerStartTime.Set(float64(time.Now().Unix()))

	return m
}

// IncInvocations implements dispatch.MetricsRecorder.
func (m *Metrics) IncInvocations(tenant, operation, outcome string) {
	m.InvocationsTotal.WithLabelValues(tenant, operation, outcome).Inc()
}

// ObserveUpstream implements dispatch.MetricsRecorder.
func (m *Metrics) ObserveUpstream(operation string, seconds float64, attempts int) {
	m.UpstreamDuration.WithLabelValues(operation).Observe(seconds)
	m.UpstreamAttempts.WithLabelValues(operation).Observe(float64(attempts))
}

// IncRateLimitRejection implements dispatch.MetricsRecorder.
func (m *Metrics) IncRateLimitRejection(tenant, operation string) {
	m.RateLimitRejectionsTotal.WithLabelValues(tenant, operation).Inc()
}

// IncTokenRefresh records a refresh outcome; wired to the token manager.
func (m *Metrics) IncTokenRefresh(tenant string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.TokenRefreshesTotal.WithLabelValues(tenant, status).Inc()
}

// IncAuthSuccess implements auth.MetricsRecorder.
func (m *Metrics) IncAuthSuccess() { m.AuthSuccessesTotal.Inc() }

// IncAuthFailure implements auth.MetricsRecorder.
func (m *Metrics) IncAuthFailure() { m.AuthFailuresTotal.Inc() }

// IncHTTPRequest records one served HTTP request.
func (m *Metrics) IncHTTPRequest(method, pathPattern string, status int, seconds float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(seconds)
}
