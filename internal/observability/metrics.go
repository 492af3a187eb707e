package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "domscout"

var (
	metricCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "calls_total",
		Help:      "Resolve-and-act calls by outcome kind.",
	}, []string{"kind"})
	metricCallDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "call_duration_seconds",
		Help:      "Wall time of a resolve-and-act call, lock wait included.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
	})
	metricNavigationRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "navigation_retries_total",
		Help:      "Reloads performed after an aborted navigation.",
	})
	metricSessionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "browser_session_active",
		Help:      "1 while a browser session is open.",
	})
	metricScanCandidates = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "scan_candidates",
		Help:      "Visible candidates collected per scan.",
		Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 200},
	})
)

// ObserveCall records the outcome kind and duration of one call.
// Successful calls use the kind "success".
func ObserveCall(kind string, seconds float64) {
	metricCalls.WithLabelValues(kind).Inc()
	metricCallDuration.Observe(seconds)
}

// ObserveNavigationRetry counts one abort-triggered reload.
func ObserveNavigationRetry() { metricNavigationRetries.Inc() }

// SetSessionActive flips the session gauge.
func SetSessionActive(active bool) {
	if active {
		metricSessionActive.Set(1)
		return
	}
	metricSessionActive.Set(0)
}

// ObserveScanCandidates records how many visible candidates a scan collected.
func ObserveScanCandidates(n int) { metricScanCandidates.Observe(float64(n)) }

// MetricsHandler exposes the default registry.
func MetricsHandler() http.Handler { return promhttp.Handler() }
