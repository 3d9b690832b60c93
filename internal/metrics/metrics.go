// Package metrics exposes Prometheus collectors for the crawler service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerPagesTotal             *prometheus.CounterVec
	crawlerFetchTotal             *prometheus.CounterVec
	crawlerFetchDurationSeconds   *prometheus.HistogramVec
	crawlerFetchRetriesTotal      prometheus.Counter
	crawlerRobotsFailuresTotal    prometheus.Counter
	crawlerCheckpointRecordsTotal *prometheus.CounterVec
	crawlerCheckpointErrorsTotal  prometheus.Counter
	crawlerBrowserSessionsInUse   prometheus.Gauge
	crawlerActiveWorkers          prometheus.Gauge
	crawlerRateLimitDelaysSeconds *prometheus.HistogramVec
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec

	once sync.Once

	sites = newLabelSet(maxSiteLabels)
)

// maxSiteLabels bounds the distinct site label values. Hosts seen after the
// limit is reached are reported as OtherSite.
const maxSiteLabels = 50

// OtherSite is the label value for hosts beyond maxSiteLabels.
const OtherSite = "other"

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of dispatched pages, labeled by site (bounded, overflow is \"other\") and outcome.",
			},
			[]string{"site", "status"},
		)

		crawlerFetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_fetch_total",
				Help: "Total number of fetch attempts, labeled by mode and outcome.",
			},
			[]string{"mode", "outcome"},
		)

		crawlerFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies, labeled by mode.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"mode"},
		)

		crawlerFetchRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_fetch_retries_total",
				Help: "Total number of static fetch retries after 5xx responses.",
			},
		)

		crawlerRobotsFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_robots_failures_total",
				Help: "Total robots.txt lookups that failed open.",
			},
		)

		crawlerCheckpointRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_checkpoint_records_total",
				Help: "Total page records written to checkpoints, labeled by kind.",
			},
			[]string{"kind"},
		)

		crawlerCheckpointErrorsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_checkpoint_errors_total",
				Help: "Total checkpoint writes that failed.",
			},
		)

		crawlerBrowserSessionsInUse = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_browser_sessions_in_use",
				Help: "Number of browser sessions currently checked out.",
			},
		)

		crawlerActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_active_workers",
				Help: "Number of workers currently processing a frontier entry.",
			},
		)

		crawlerRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_rate_limit_delays_seconds",
				Help:    "Histogram of render rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of ops HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of ops HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
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

// labelSet admits the first limit distinct values and folds the rest into
// OtherSite.
type labelSet struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	limit int
}

func newLabelSet(limit int) *labelSet {
	return &labelSet{seen: make(map[string]struct{}), limit: limit}
}

func (s *labelSet) label(value string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[value]; ok {
		return value
	}
	if len(s.seen) >= s.limit {
		return OtherSite
	}
	s.seen[value] = struct{}{}
	return value
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObservePage counts one dispatched page by outcome.
func ObservePage(site, status string) {
	Init()
	crawlerPagesTotal.WithLabelValues(sites.label(SanitizeSite(site)), status).Inc()
}

// ObserveFetch records a fetch attempt and its latency.
func ObserveFetch(mode, outcome string, duration time.Duration) {
	Init()
	crawlerFetchTotal.WithLabelValues(mode, outcome).Inc()
	if duration > 0 {
		crawlerFetchDurationSeconds.WithLabelValues(mode).Observe(duration.Seconds())
	}
}

// ObserveFetchRetry counts one 5xx retry.
func ObserveFetchRetry() {
	Init()
	crawlerFetchRetriesTotal.Inc()
}

// ObserveRobotsFailure counts a robots.txt lookup that failed open.
func ObserveRobotsFailure() {
	Init()
	crawlerRobotsFailuresTotal.Inc()
}

// ObserveCheckpoint records a successful snapshot write.
func ObserveCheckpoint(kind string, records int) {
	Init()
	crawlerCheckpointRecordsTotal.WithLabelValues(kind).Add(float64(records))
}

// ObserveCheckpointError counts a failed snapshot write.
func ObserveCheckpointError() {
	Init()
	crawlerCheckpointErrorsTotal.Inc()
}

// SetBrowserSessionsInUse sets the checked-out session gauge.
func SetBrowserSessionsInUse(n int) {
	Init()
	crawlerBrowserSessionsInUse.Set(float64(n))
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	crawlerActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	crawlerActiveWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	crawlerRateLimitDelaysSeconds.WithLabelValues(sites.label(SanitizeSite(domain))).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
