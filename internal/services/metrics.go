package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RAG pipeline metrics. Registered on the default registry, which the
// fiberprometheus middleware exposes on /metrics.
var (
	memoriesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cybersync_memories_created_total",
		Help: "Memories created, by type (text or file).",
	}, []string{"type"})

	memoryChunksStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cybersync_memory_chunks_stored_total",
		Help: "Individual memory chunks written to the store.",
	})

	retrievalDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cybersync_retrieval_duration_seconds",
		Help:    "Duration of one retrieval lookup.",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})

	retrievalFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cybersync_retrieval_failures_total",
		Help: "Retrieval lookups that failed or timed out.",
	}, []string{"source"})

	contextItemsUsed = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cybersync_context_items_used",
		Help:    "Context items surviving the score threshold per chat turn.",
		Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
	})

	chatTurns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cybersync_chat_turns_total",
		Help: "Completed chat turns, by mode (batch or stream) and outcome.",
	}, []string{"mode", "outcome"})

	embedCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cybersync_embed_cache_total",
		Help: "Embedding cache lookups, by result (hit or miss).",
	}, []string{"result"})
)
