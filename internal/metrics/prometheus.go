package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DocumentsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factrag_documents_ingested_total",
			Help: "Documents ingested, by outcome",
		},
		[]string{"status"},
	)

	IngestionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "factrag_ingestion_duration_seconds",
			Help:    "End-to-end ingestion duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	FactsExtracted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "factrag_facts_extracted_total",
			Help: "Facts returned by the extraction model",
		},
	)

	FactExtractionFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "factrag_fact_extraction_failures_total",
			Help: "Text segments that produced no facts after all retries",
		},
	)

	EmbeddingFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "factrag_embedding_failures_total",
			Help: "Facts skipped during ingestion because their embedding failed",
		},
	)

	RetrievalDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "factrag_retrieval_duration_seconds",
			Help:    "Query embedding plus nearest-neighbour search duration",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	RetrievalFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factrag_retrieval_failures_total",
			Help: "Retrievals that degraded to zero references",
		},
		[]string{"reason"},
	)

	ChatTurns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factrag_chat_turns_total",
			Help: "Chat turns, by outcome",
		},
		[]string{"status"},
	)

	LLMCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factrag_llm_calls_total",
			Help: "Model provider calls, by operation and outcome",
		},
		[]string{"operation", "status"},
	)

	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "factrag_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factrag_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factrag_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)
)

var registerOnce sync.Once

// Init registers the collectors with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			DocumentsIngested,
			IngestionDuration,
			FactsExtracted,
			FactExtractionFailures,
			EmbeddingFailures,
			RetrievalDuration,
			RetrievalFailures,
			ChatTurns,
			LLMCalls,
			BreakerState,
			CacheHits,
			CacheMisses,
		)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
