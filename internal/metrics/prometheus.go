package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps prometheus collectors for lemonhost metrics.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// Counters
	invocationsTotal    *prometheus.CounterVec
	discoveryRunsTotal  prometheus.Counter
	rateLimitRejections *prometheus.CounterVec
	hostCallTotal       *prometheus.CounterVec

	// Histograms
	invocationDuration *prometheus.HistogramVec
	discoveryDuration  prometheus.Histogram
	hostCallLatency    *prometheus.HistogramVec

	// Gauges
	uptime      prometheus.GaugeFunc
	toolsLoaded prometheus.Gauge
}

// Default histogram buckets for invocation duration (in milliseconds)
var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

var promMetrics *PrometheusMetrics

// InitPrometheus initializes the Prometheus metrics subsystem.
func InitPrometheus(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		invocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_total",
				Help:      "Total number of guest tool invocations",
			},
			[]string{"tool", "status"},
		),

		discoveryRunsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "discovery_runs_total",
				Help:      "Total number of discovery scans performed",
			},
		),

		rateLimitRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_rejections_total",
				Help:      "Total rate-limit rejections by tool and call class",
			},
			[]string{"tool", "class"},
		),

		hostCallTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "host_call_total",
				Help:      "Total host-surface calls by operation and outcome",
			},
			[]string{"operation", "status"},
		),

		invocationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "invocation_duration_milliseconds",
				Help:      "Duration of guest tool invocations in milliseconds",
				Buckets:   buckets,
			},
			[]string{"tool", "status"},
		),

		discoveryDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "discovery_duration_milliseconds",
				Help:      "Duration of discovery scans in milliseconds",
				Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
			},
		),

		hostCallLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "host_call_latency_milliseconds",
				Help:      "Latency of host-surface calls in milliseconds",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
			},
			[]string{"operation"},
		),

		toolsLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tools_loaded",
				Help:      "Number of guest tools currently registered in the engine",
			},
		),
	}

	pm.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Time since the lemonhost daemon started",
		},
		func() float64 {
			return time.Since(StartTime()).Seconds()
		},
	)

	registry.MustRegister(
		pm.invocationsTotal,
		pm.discoveryRunsTotal,
		pm.rateLimitRejections,
		pm.hostCallTotal,
		pm.invocationDuration,
		pm.discoveryDuration,
		pm.hostCallLatency,
		pm.uptime,
		pm.toolsLoaded,
	)

	promMetrics = pm
}

// RecordPrometheusInvocation records an invocation in Prometheus collectors.
func RecordPrometheusInvocation(tool, status string, durationMs int64) {
	if promMetrics == nil {
		return
	}
	promMetrics.invocationsTotal.WithLabelValues(tool, status).Inc()
	promMetrics.invocationDuration.WithLabelValues(tool, status).Observe(float64(durationMs))
}

// RecordPrometheusDiscoveryRun records a discovery scan in Prometheus.
func RecordPrometheusDiscoveryRun(toolsFound int, durationMs int64) {
	if promMetrics == nil {
		return
	}
	promMetrics.discoveryRunsTotal.Inc()
	promMetrics.discoveryDuration.Observe(float64(durationMs))
	promMetrics.toolsLoaded.Set(float64(toolsFound))
}

// RecordPrometheusHostCall records a host-surface call's latency and outcome.
func RecordPrometheusHostCall(operation string, durationMs float64, success bool) {
	if promMetrics == nil {
		return
	}
	status := "ok"
	if !success {
		status = "error"
	}
	promMetrics.hostCallTotal.WithLabelValues(operation, status).Inc()
	promMetrics.hostCallLatency.WithLabelValues(operation).Observe(durationMs)
}

// RecordPrometheusRateLimitRejection records a rate-limit rejection.
func RecordPrometheusRateLimitRejection(tool, class string) {
	if promMetrics == nil {
		return
	}
	promMetrics.rateLimitRejections.WithLabelValues(tool, class).Inc()
}

// SetToolsLoaded sets the current number of registered tools.
func SetToolsLoaded(count int) {
	if promMetrics == nil {
		return
	}
	promMetrics.toolsLoaded.Set(float64(count))
}

// PrometheusHandler returns an HTTP handler for Prometheus metrics scraping.
func PrometheusHandler() http.Handler {
	if promMetrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("prometheus metrics not initialized"))
		})
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}

// PrometheusRegistry returns the prometheus registry (for custom collectors).
func PrometheusRegistry() *prometheus.Registry {
	if promMetrics == nil {
		return nil
	}
	return promMetrics.registry
}
