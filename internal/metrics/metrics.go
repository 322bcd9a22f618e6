package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Research run metrics
	RunsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_runs_started_total",
			Help: "Total number of research runs started",
		},
		[]string{"mode"},
	)

	RunsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_runs_completed_total",
			Help: "Total number of research runs completed",
		},
		[]string{"mode", "status"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scout_run_duration_seconds",
			Help:    "Research run duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	// Task metrics
	TaskExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_task_executions_total",
			Help: "Total number of analysis task executions",
		},
		[]string{"task", "status"},
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scout_task_duration_seconds",
			Help:    "Analysis task duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"task"},
	)

	// Credential rotation metrics
	CredentialAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_credential_attempts_total",
			Help: "Total number of backend invocation attempts per outcome",
		},
		[]string{"status"},
	)

	CredentialExhaustions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scout_credential_exhaustions_total",
			Help: "Total number of calls that exhausted the credential pool",
		},
	)

	// Gathering metrics
	GatherDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_gather_decisions_total",
			Help: "Sufficiency gate decisions (reused vs fetched)",
		},
		[]string{"decision"},
	)

	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_pages_fetched_total",
			Help: "Total number of page fetch attempts by outcome",
		},
		[]string{"status"},
	)

	// Scrape cache metrics
	ScrapeCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scout_scrape_cache_hits_total",
			Help: "Total number of scrape cache hits",
		},
	)

	ScrapeCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scout_scrape_cache_misses_total",
			Help: "Total number of scrape cache misses",
		},
	)

	// Classification metrics
	Classifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_classifications_total",
			Help: "Total number of intent classifications by category and path",
		},
		[]string{"category", "path"},
	)

	// Session metrics
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scout_sessions_created_total",
			Help: "Total number of sessions created",
		},
	)

	SessionCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scout_session_cache_hits_total",
			Help: "Total number of session local-cache hits",
		},
	)

	SessionCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scout_session_cache_misses_total",
			Help: "Total number of session local-cache misses",
		},
	)

	SessionCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scout_session_cache_size",
			Help: "Current number of sessions in the local cache",
		},
	)

	SessionCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scout_session_cache_evictions_total",
			Help: "Total number of sessions evicted from the local cache",
		},
	)

	// Knowledge store metrics
	VectorSearches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_vector_search_total",
			Help: "Total number of vector searches",
		},
		[]string{"collection", "status"},
	)

	VectorSearchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scout_vector_search_latency_seconds",
			Help:    "Vector search latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collection"},
	)

	// Embedding metrics
	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_embedding_requests_total",
			Help: "Total number of embedding requests",
		},
		[]string{"model", "status"},
	)

	EmbeddingLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scout_embedding_latency_seconds",
			Help:    "Embedding generation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)

	// Follow-up resolution metrics
	FollowUps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_followups_total",
			Help: "Total number of follow-up resolutions by source",
		},
		[]string{"source"},
	)
)

// RecordRunMetrics records metrics for a completed research run.
func RecordRunMetrics(mode, status string, durationSeconds float64) {
	RunsCompleted.WithLabelValues(mode, status).Inc()
	RunDuration.WithLabelValues(mode).Observe(durationSeconds)
}

// RecordTaskMetrics records metrics for a single analysis task execution.
func RecordTaskMetrics(task, status string, durationSeconds float64) {
	TaskExecutions.WithLabelValues(task, status).Inc()
	if durationSeconds > 0 {
		TaskDuration.WithLabelValues(task).Observe(durationSeconds)
	}
}

// RecordVectorSearchMetrics records vector search metrics.
func RecordVectorSearchMetrics(collection, status string, durationSeconds float64) {
	VectorSearches.WithLabelValues(collection, status).Inc()
	if durationSeconds > 0 {
		VectorSearchLatency.WithLabelValues(collection).Observe(durationSeconds)
	}
}

// RecordEmbeddingMetrics records embedding metrics.
func RecordEmbeddingMetrics(model, status string, durationSeconds float64) {
	EmbeddingRequests.WithLabelValues(model, status).Inc()
	if durationSeconds > 0 {
		EmbeddingLatency.WithLabelValues(model).Observe(durationSeconds)
	}
}
