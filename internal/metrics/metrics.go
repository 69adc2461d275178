// Package metrics exposes Prometheus collectors for the menu scraper.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Target outcome labels.
const (
	OutcomeSuccess        = "success"
	OutcomeFetchFailure   = "fetch_failure"
	OutcomeParseFailure   = "parse_failure"
	OutcomePersistFailure = "persist_failure"
)

var (
	targetsTotal           *prometheus.CounterVec
	rowsExtractedTotal     *prometheus.CounterVec
	itemsDroppedTotal      prometheus.Counter
	extractionNoticesTotal *prometheus.CounterVec
	expansionTimeoutsTotal prometheus.Counter
	politenessDelaySeconds prometheus.Histogram
	targetDurationSeconds  *prometheus.HistogramVec
	robotsFallbackTotal    prometheus.Counter
	rateLimitDelaySeconds  *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		targetsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "menu_targets_total",
				Help: "Total number of targets processed, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		rowsExtractedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "menu_rows_extracted_total",
				Help: "Total number of rows produced by parsers, labeled by site.",
			},
			[]string{"site"},
		)

		itemsDroppedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "menu_items_dropped_total",
				Help: "Items skipped because no title could be resolved.",
			},
		)

		extractionNoticesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "menu_extraction_notices_total",
				Help: "Distinct paragraphs missing a serving field, labeled by field.",
			},
			[]string{"field"},
		)

		expansionTimeoutsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "menu_expansion_timeouts_total",
				Help: "Listing expansions whose readiness check timed out.",
			},
		)

		politenessDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "menu_politeness_delay_seconds",
				Help:    "Histogram of inter-target politeness waits.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		targetDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "menu_target_duration_seconds",
				Help:    "Histogram of fetch/parse/persist durations per target.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"outcome"},
		)

		robotsFallbackTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "menu_robots_fallback_total",
				Help: "robots.txt probes that fell back to allow-all after TLS handshake timeouts.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "menu_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the per-host rate limiter before a fetch.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
			},
			[]string{"site"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
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

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Router serves /metrics and a trivial /healthz for long batch runs.
func Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", Handler())
	return r
}

// ObserveTarget records one finished target.
func ObserveTarget(target, outcome string, duration time.Duration) {
	Init()
	targetsTotal.WithLabelValues(SanitizeSite(target), outcome).Inc()
	targetDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveRows adds rows produced for a target.
func ObserveRows(target string, rows int) {
	Init()
	if rows > 0 {
		rowsExtractedTotal.WithLabelValues(SanitizeSite(target)).Add(float64(rows))
	}
}

// ObserveItemDropped increments the dropped item counter.
func ObserveItemDropped() {
	Init()
	itemsDroppedTotal.Inc()
}

// ObserveExtractionNotice increments the notice counter for a missing field.
func ObserveExtractionNotice(field string) {
	Init()
	extractionNoticesTotal.WithLabelValues(field).Inc()
}

// ObserveExpansionTimeout increments the expansion timeout counter.
func ObserveExpansionTimeout() {
	Init()
	expansionTimeoutsTotal.Inc()
}

// ObservePolitenessDelay records the duration of an inter-target wait.
func ObservePolitenessDelay(duration time.Duration) {
	Init()
	politenessDelaySeconds.Observe(duration.Seconds())
}

// ObserveRobotsFallback increments the robots.txt fallback counter.
func ObserveRobotsFallback() {
	Init()
	robotsFallbackTotal.Inc()
}

// ObserveRateLimitDelay records a wait imposed by the per-host limiter.
func ObserveRateLimitDelay(site string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(site).Observe(duration.Seconds())
}
