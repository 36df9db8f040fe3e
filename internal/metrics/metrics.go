package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Analysis pipeline metrics
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "athena_analyses_total",
			Help: "Total number of analysis requests processed",
		},
		[]string{"intent", "status"},
	)

	AnalysisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "athena_analysis_duration_seconds",
			Help:    "Duration of full analysis runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"intent"},
	)

	AgentFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "athena_agent_failures_total",
			Help: "Total number of individual agent failures",
		},
		[]string{"agent"},
	)

	// Cache metrics
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "athena_cache_hits_total",
			Help: "Total number of analysis cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "athena_cache_misses_total",
			Help: "Total number of analysis cache misses",
		},
	)

	// LLM metrics
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "athena_llm_requests_total",
			Help: "Total number of LLM generation requests",
		},
		[]string{"model", "status"},
	)

	LLMDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "athena_llm_duration_seconds",
			Help:    "Duration of LLM generation calls in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	// Retrieval metrics
	RetrievedDocuments = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "athena_retrieved_documents",
			Help:    "Number of documents returned per retrieval after relevance filtering",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	// Loki client metrics
	LokiQueryErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "athena_loki_query_errors_total",
			Help: "Total number of failed log store queries",
		},
	)

	// Rate limiting metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "athena_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"client"},
	)
)
