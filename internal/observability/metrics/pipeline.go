package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PipelineMetrics covers the retrieval and review pipeline: cache
// traffic, hybrid search latency, confidence scoring, review queue
// movement and background task execution. It satisfies the observer
// interfaces of the cache manager, the search and analyze use cases
// and the scheduler.
type PipelineMetrics struct {
	registry *prometheus.Registry

	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	cacheEvictions *prometheus.CounterVec

	searchTotal    *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec

	confidenceDuration prometheus.Histogram

	reviewCreated   *prometheus.CounterVec
	reviewEscalated prometheus.Counter
	reviewAbandoned prometheus.Counter

	tasksEnqueued     *prometheus.CounterVec
	tasksCompleted    *prometheus.CounterVec
	taskDuration      *prometheus.HistogramVec
	tasksRetried      *prometheus.CounterVec
	tasksDeadLettered *prometheus.CounterVec
}

func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	cacheHits := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "regulens",
			Subsystem:   "cache",
			Name:        "hits_total",
			Help:        "Cache hits by tier.",
			ConstLabels: constLabels,
		},
		[]string{"tier"},
	)
	cacheMisses := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "regulens",
			Subsystem:   "cache",
			Name:        "misses_total",
			Help:        "Cache misses by tier.",
			ConstLabels: constLabels,
		},
		[]string{"tier"},
	)
	cacheEvictions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "regulens",
			Subsystem:   "cache",
			Name:        "evictions_total",
			Help:        "Cache evictions by tier.",
			ConstLabels: constLabels,
		},
		[]string{"tier"},
	)

	searchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "regulens",
			Subsystem:   "search",
			Name:        "requests_total",
			Help:        "Completed hybrid searches by retrieval mode.",
			ConstLabels: constLabels,
		},
		[]string{"mode"},
	)
	searchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "regulens",
			Subsystem:   "search",
			Name:        "duration_seconds",
			Help:        "Hybrid search duration in seconds by retrieval mode.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		},
		[]string{"mode"},
	)

	confidenceDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   "regulens",
			Subsystem:   "confidence",
			Name:        "score_duration_seconds",
			Help:        "Confidence scoring duration in seconds.",
			Buckets:     []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			ConstLabels: constLabels,
		},
	)

	reviewCreated := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "regulens",
			Subsystem:   "review",
			Name:        "tasks_created_total",
			Help:        "Review tasks created by priority.",
			ConstLabels: constLabels,
		},
		[]string{"priority"},
	)
	reviewEscalated := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "regulens",
			Subsystem:   "review",
			Name:        "escalations_total",
			Help:        "Review tasks escalated after the wait timeout.",
			ConstLabels: constLabels,
		},
	)
	reviewAbandoned := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "regulens",
			Subsystem:   "review",
			Name:        "abandoned_total",
			Help:        "Review tasks abandoned after the maximum window.",
			ConstLabels: constLabels,
		},
	)

	tasksEnqueued := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "regulens",
			Subsystem:   "scheduler",
			Name:        "tasks_enqueued_total",
			Help:        "Background tasks enqueued by kind.",
			ConstLabels: constLabels,
		},
		[]string{"kind"},
	)
	tasksCompleted := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "regulens",
			Subsystem:   "scheduler",
			Name:        "tasks_completed_total",
			Help:        "Background tasks completed by kind.",
			ConstLabels: constLabels,
		},
		[]string{"kind"},
	)
	taskDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "regulens",
			Subsystem:   "scheduler",
			Name:        "task_duration_seconds",
			Help:        "Background task duration in seconds by kind.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		},
		[]string{"kind"},
	)
	tasksRetried := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "regulens",
			Subsystem:   "scheduler",
			Name:        "tasks_retried_total",
			Help:        "Background task retries by kind.",
			ConstLabels: constLabels,
		},
		[]string{"kind"},
	)
	tasksDeadLettered := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "regulens",
			Subsystem:   "scheduler",
			Name:        "tasks_dead_lettered_total",
			Help:        "Background tasks moved to the dead-letter list by kind.",
			ConstLabels: constLabels,
		},
		[]string{"kind"},
	)

	registry.MustRegister(
		cacheHits,
		cacheMisses,
		cacheEvictions,
		searchTotal,
		searchDuration,
		confidenceDuration,
		reviewCreated,
		reviewEscalated,
		reviewAbandoned,
		tasksEnqueued,
		tasksCompleted,
		taskDuration,
		tasksRetried,
		tasksDeadLettered,
	)

	return &PipelineMetrics{
		registry:           registry,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		cacheEvictions:     cacheEvictions,
		searchTotal:        searchTotal,
		searchDuration:     searchDuration,
		confidenceDuration: confidenceDuration,
		reviewCreated:      reviewCreated,
		reviewEscalated:    reviewEscalated,
		reviewAbandoned:    reviewAbandoned,
		tasksEnqueued:      tasksEnqueued,
		tasksCompleted:     tasksCompleted,
		taskDuration:       taskDuration,
		tasksRetried:       tasksRetried,
		tasksDeadLettered:  tasksDeadLettered,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the private registry so the HTTP server can serve
// pipeline and request metrics from one endpoint.
func (m *PipelineMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *PipelineMetrics) CacheHit(tier string)      { m.cacheHits.WithLabelValues(tier).Inc() }
func (m *PipelineMetrics) CacheMiss(tier string)     { m.cacheMisses.WithLabelValues(tier).Inc() }
func (m *PipelineMetrics) CacheEviction(tier string) { m.cacheEvictions.WithLabelValues(tier).Inc() }

func (m *PipelineMetrics) ObserveSearch(mode string, seconds float64) {
	if mode == "" {
		mode = "unknown"
	}
	m.searchTotal.WithLabelValues(mode).Inc()
	m.searchDuration.WithLabelValues(mode).Observe(seconds)
}

func (m *PipelineMetrics) ObserveConfidence(seconds float64) {
	m.confidenceDuration.Observe(seconds)
}

func (m *PipelineMetrics) ReviewCreated(priority string) {
	if priority == "" {
		priority = "unknown"
	}
	m.reviewCreated.WithLabelValues(priority).Inc()
}

func (m *PipelineMetrics) ReviewEscalated() { m.reviewEscalated.Inc() }
func (m *PipelineMetrics) ReviewAbandoned() { m.reviewAbandoned.Inc() }

func (m *PipelineMetrics) TaskEnqueued(kind string) {
	m.tasksEnqueued.WithLabelValues(kind).Inc()
}

func (m *PipelineMetrics) TaskCompleted(kind string, seconds float64) {
	m.tasksCompleted.WithLabelValues(kind).Inc()
	m.taskDuration.WithLabelValues(kind).Observe(seconds)
}

func (m *PipelineMetrics) TaskRetried(kind string) {
	m.tasksRetried.WithLabelValues(kind).Inc()
}

func (m *PipelineMetrics) TaskDeadLettered(kind string) {
	m.tasksDeadLettered.WithLabelValues(kind).Inc()
}
