// Package metrics exposes Prometheus collectors for the reporting service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	cyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dorank_cycles_total",
			Help: "Total number of reporting cycles, labeled by trigger and status.",
		},
		[]string{"trigger", "status"},
	)

	listingPagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dorank_listing_pages_total",
			Help: "Total number of marketplace listing pages walked.",
		},
	)

	fetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dorank_fetch_duration_seconds",
			Help:    "Histogram of directory fetch latencies, labeled by kind and outcome.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"kind", "outcome"},
	)

	recordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dorank_records_total",
			Help: "Total number of new all-time records, labeled by metric.",
		},
		[]string{"metric"},
	)

	metricValue = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dorank_metric_value",
			Help: "Most recently observed value, labeled by metric.",
		},
		[]string{"metric"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)

	rateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dorank_rate_limit_delays_seconds",
			Help:    "Histogram of rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCycle increments the cycle counter.
func ObserveCycle(trigger, status string) {
	cyclesTotal.WithLabelValues(trigger, status).Inc()
}

// ObserveListingPage counts one walked listing page.
func ObserveListingPage() {
	listingPagesTotal.Inc()
}

// ObserveFetch records the latency of a page or resource fetch.
func ObserveFetch(kind string, err error, duration time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	fetchDurationSeconds.WithLabelValues(kind, outcome).Observe(duration.Seconds())
}

// ObserveMetric records an observed value and whether it set a record.
func ObserveMetric(metric string, value float64, record bool) {
	metricValue.WithLabelValues(metric).Set(value)
	if record {
		recordsTotal.WithLabelValues(metric).Inc()
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// SanitizeSite extracts a lowercase hostname from a URL for use as a label.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
