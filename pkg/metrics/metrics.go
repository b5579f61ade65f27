package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	IngestMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_messages_total",
			Help: "Total number of messages processed by the ingestion pipeline (count)",
		},
		[]string{"status"},
	)

	IngestProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_processing_duration_ms",
			Help:    "End-to-end ingestion duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"status"},
	)

	ClassificationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classification_total",
			Help: "Classification outcomes by status (count)",
		},
		[]string{"status"},
	)

	ClassificationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "classification_duration_ms",
			Help:    "Rule evaluation duration in milliseconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 25, 50, 100},
		},
		[]string{"status"},
	)

	ExtractionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "extraction_duration_ms",
			Help:    "Entity extraction duration in milliseconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 25, 50, 100},
		},
	)

	EntitiesExtractedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entities_extracted_total",
			Help: "Total number of entities extracted by type (count)",
		},
		[]string{"entity_type"},
	)

	ActiveClassificationRules = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "classification_active_rules",
			Help: "Number of enabled classification rules (count)",
		},
	)

	ActiveEntityPatterns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "extraction_active_patterns",
			Help: "Number of loaded entity patterns (count)",
		},
	)

	SkippedPatternsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skipped_patterns_total",
			Help: "Patterns skipped because they failed to compile or evaluate (count)",
		},
		[]string{"stage"},
	)

	EnrichmentOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "directory_enrichment_outcomes_total",
			Help: "Directory enrichment outcomes per (site, workplace) pair (count)",
		},
		[]string{"outcome"},
	)

	DirectoryLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "directory_lookups_total",
			Help: "Directory lookups by result source (count)",
		},
		[]string{"status"},
	)

	DirectoryCacheHitRate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "directory_cache_hit_rate",
			Help: "Cache hit rate for directory lookups (ratio, 0.0 to 1.0)",
		},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	RateLimitWaitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_rate_limit_waits_total",
			Help: "Times the ingest handler waited on the rate limiter (count)",
		},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures recorded by circuit breaker (count)",
		},
		[]string{"name"},
	)
)

func RegisterPipelineMetrics() {
	prometheus.MustRegister(
		IngestMessagesTotal,
		IngestProcessingDuration,
		ClassificationTotal,
		ClassificationDuration,
		ExtractionDuration,
		EntitiesExtractedTotal,
		ActiveClassificationRules,
		ActiveEntityPatterns,
		SkippedPatternsTotal,
		EnrichmentOutcomesTotal,
		DirectoryLookupsTotal,
		DirectoryCacheHitRate,
		RateLimitWaitsTotal,
	)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(
		RetryAttemptsTotal,
		DLQMessagesTotal,
	)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(
		CircuitBreakerState,
		CircuitBreakerRequests,
		CircuitBreakerFailures,
	)
}

func ObserveIngestDuration(duration time.Duration, status string) {
	IngestProcessingDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func ObserveClassificationDuration(duration time.Duration, status string) {
	ClassificationDuration.WithLabelValues(status).Observe(float64(duration.Microseconds()) / 1000.0)
}

func ObserveExtractionDuration(duration time.Duration) {
	ExtractionDuration.Observe(float64(duration.Microseconds()) / 1000.0)
}

func SetActiveClassificationRules(count int) {
	ActiveClassificationRules.Set(float64(count))
}

func SetActiveEntityPatterns(count int) {
	ActiveEntityPatterns.Set(float64(count))
}

func SetDirectoryCacheHitRate(rate float64) {
	DirectoryCacheHitRate.Set(rate)
}
