package rag

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/athena-ops/athena-stack/internal/cache"
	"github.com/athena-ops/athena-stack/internal/models"
	"github.com/athena-ops/athena-stack/internal/timewindow"
)

// RetrievalSummary describes one combined retrieval pass.
type RetrievalSummary struct {
	LogDocuments    int     `json:"log_documents"`
	MetricDocuments int     `json:"metric_documents"`
	AvgRelevance    float64 `json:"avg_relevance"`
}

// CombinedContext is the merged output of the log and metric retrievers.
type CombinedContext struct {
	Documents []models.Document `json:"documents"`
	Summary   RetrievalSummary  `json:"summary"`
}

// ContextProcessor runs log and metric retrieval together and caches the
// combined result. Metric retrieval gets half the document budget.
type ContextProcessor struct {
	logs    Retriever
	metrics Retriever
	cache   *cache.Memory
}

// NewContextProcessor combines two retrievers, either of which may be nil.
// cacheSize of zero disables caching.
func NewContextProcessor(logs, metrics Retriever, cacheSize int, ttl time.Duration) *ContextProcessor {
	p := &ContextProcessor{logs: logs, metrics: metrics}
	if cacheSize > 0 {
		p.cache = cache.NewMemory(cacheSize, ttl)
	}
	return p
}

// Combine retrieves log and metric documents for the query, merges them
// sorted by relevance, and summarizes the pass. A retriever failure fails
// the whole pass.
func (p *ContextProcessor) Combine(ctx context.Context, query string, w timewindow.Window, k int) (*CombinedContext, error) {
	if k < 1 {
		k = 5
	}
	key := fmt.Sprintf("%s|%d|%d|%d", query, w.Start.Unix(), w.End.Unix(), k)
	if p.cache != nil {
		if v, ok := p.cache.Get(key); ok {
			if combined, ok := v.(*CombinedContext); ok {
				return combined, nil
			}
		}
	}

	combined := &CombinedContext{}

	if p.logs != nil {
		docs, err := p.logs.Retrieve(ctx, query, w, k)
		if err != nil {
			return nil, fmt.Errorf("retrieving log documents: %w", err)
		}
		combined.Summary.LogDocuments = len(docs)
		combined.Documents = append(combined.Documents, docs...)
	}

	if p.metrics != nil {
		budget := k / 2
		if budget < 1 {
			budget = 1
		}
		docs, err := p.metrics.Retrieve(ctx, query, w, budget)
		if err != nil {
			return nil, fmt.Errorf("retrieving metric documents: %w", err)
		}
		combined.Summary.MetricDocuments = len(docs)
		combined.Documents = append(combined.Documents, docs...)
	}

	sort.SliceStable(combined.Documents, func(i, j int) bool {
		return combined.Documents[i].Relevance > combined.Documents[j].Relevance
	})

	var total float64
	for _, d := range combined.Documents {
		total += d.Relevance
	}
	if len(combined.Documents) > 0 {
		combined.Summary.AvgRelevance = total / float64(len(combined.Documents))
	}

	if p.cache != nil {
		p.cache.Set(key, combined)
	}
	return combined, nil
}

// CacheStats exposes the retrieval cache counters.
func (p *ContextProcessor) CacheStats() cache.Stats {
	if p.cache == nil {
		return cache.Stats{}
	}
	return p.cache.Stats()
}
