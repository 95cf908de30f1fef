// Package metrics exposes Prometheus instrumentation for the task queues,
// rate limiter, search pipeline, and webhook dispatcher — the
// promauto-package-level-vars-plus-recording-helpers idiom grounded on
// tomtom215-cartographus's internal/metrics package.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TaskQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "danmu_task_queue_depth",
			Help: "Current number of tasks waiting per queue",
		},
		[]string{"queue"},
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "danmu_task_duration_seconds",
			Help:    "Duration of a task from running to a terminal state",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task_type", "outcome"}, // outcome: success, failed, cancelled, paused
	)

	TasksSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "danmu_tasks_submitted_total",
			Help: "Total number of tasks submitted, including rejected duplicates",
		},
		[]string{"task_type", "result"}, // result: accepted, conflict, title_busy, error
	)

	RateLimitChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "danmu_rate_limit_checks_total",
			Help: "Total number of rate-limit checks, by key and outcome",
		},
		[]string{"key", "result"}, // result: allowed, exceeded
	)

	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "danmu_search_duration_seconds",
			Help:    "Duration of a unified_search pipeline run",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"}, // fanout, rank, fallback
	)

	SearchResultsReturned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "danmu_search_results_returned",
			Help:    "Number of ranked candidates a search run returns",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "danmu_webhook_events_total",
			Help: "Total number of webhook_search_and_dispatch invocations",
		},
		[]string{"webhook_source", "result"}, // result: favorited, matched, no_match, conflict, error
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "danmu_cache_hits_total",
			Help: "Total number of in-process/blob cache hits",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "danmu_cache_misses_total",
			Help: "Total number of in-process/blob cache misses",
		},
		[]string{"cache"},
	)
)

// RecordTaskFinished records a completed task's duration and outcome.
func RecordTaskFinished(taskType, outcome string, duration time.Duration) {
	TaskDuration.WithLabelValues(taskType, outcome).Observe(duration.Seconds())
}

// RecordTaskSubmitted records a Submit call's result.
func RecordTaskSubmitted(taskType, result string) {
	TasksSubmitted.WithLabelValues(taskType, result).Inc()
}

// RecordRateLimitCheck records a Check call's result.
func RecordRateLimitCheck(key string, exceeded bool) {
	result := "allowed"
	if exceeded {
		result = "exceeded"
	}
	RateLimitChecks.WithLabelValues(key, result).Inc()
}

// RecordSearch records one pipeline stage's duration.
func RecordSearch(stage string, duration time.Duration) {
	SearchDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordSearchResults records how many candidates a search run returned.
func RecordSearchResults(count int) {
	SearchResultsReturned.Observe(float64(count))
}

// RecordWebhookEvent records one webhook dispatch's outcome.
func RecordWebhookEvent(webhookSource, result string) {
	WebhookEventsTotal.WithLabelValues(webhookSource, result).Inc()
}

// RecordCacheHit and RecordCacheMiss record one cache lookup's outcome.
func RecordCacheHit(cache string)  { CacheHits.WithLabelValues(cache).Inc() }
func RecordCacheMiss(cache string) { CacheMisses.WithLabelValues(cache).Inc() }

// SetQueueDepth sets the current depth gauge for one queue.
func SetQueueDepth(queue string, depth int) {
	TaskQueueDepth.WithLabelValues(queue).Set(float64(depth))
}
