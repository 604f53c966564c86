// Package metrics exposes Prometheus collectors for the crawler service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepcrawl_pages_processed_total",
			Help: "Total pages handed to the page processor, labeled by result.",
		},
		[]string{"result"},
	)

	rateLimitWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deepcrawl_rate_limit_wait_seconds",
			Help:    "Time workers spent blocked in the rate limiter.",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	activeJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deepcrawl_active_jobs",
			Help: "Crawl jobs currently in a non-terminal state.",
		},
	)

	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepcrawl_jobs_total",
			Help: "Jobs that reached a terminal state, labeled by status.",
		},
		[]string{"status"},
	)

	progressEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deepcrawl_progress_events_dropped_total",
			Help: "Progress events dropped because a subscriber could not keep up.",
		},
	)

	storeInsertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deepcrawl_store_inserts_total",
			Help: "Persistence insert attempts, labeled by kind and result.",
		},
		[]string{"kind", "result"},
	)
)

// ObservePageProcessed records one processor outcome ("ok", "rejected",
// "error").
func ObservePageProcessed(result string) {
	pagesProcessedTotal.WithLabelValues(result).Inc()
}

// ObserveRateLimitWait records time spent waiting for request budget.
func ObserveRateLimitWait(d time.Duration) {
	rateLimitWaitSeconds.Observe(d.Seconds())
}

// JobStarted increments the active job gauge.
func JobStarted() {
	activeJobs.Inc()
}

// JobFinished decrements the gauge and counts the terminal status.
func JobFinished(status string) {
	activeJobs.Dec()
	jobsTotal.WithLabelValues(status).Inc()
}

// ObserveProgressEventDropped counts one event lost to a slow subscriber.
func ObserveProgressEventDropped() {
	progressEventsDropped.Inc()
}

// ObserveStoreInsert records one persistence attempt for a page or document.
func ObserveStoreInsert(kind, result string) {
	storeInsertsTotal.WithLabelValues(kind, result).Inc()
}

// Handler returns the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
