// Package rag implements retrieval-augmented context building: fetching
// relevant documents from the vector store and shaping them into prompts.
package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/athena-ops/athena-stack/internal/embedding"
	"github.com/athena-ops/athena-stack/internal/metrics"
	"github.com/athena-ops/athena-stack/internal/models"
	"github.com/athena-ops/athena-stack/internal/timewindow"
	"github.com/athena-ops/athena-stack/internal/vectorstore"
)

// overfetchCap bounds how many candidates we pull from the store before
// relevance filtering.
const overfetchCap = 20

// Retriever finds documents relevant to a query within a time window.
type Retriever interface {
	Retrieve(ctx context.Context, query string, w timewindow.Window, k int) ([]models.Document, error)
}

// Relevance converts a vector distance into a [0,1] relevance score.
// Distances above 2 clamp to 0.
func Relevance(distance float64) float64 {
	r := 1 - distance/2
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

// LogRetriever retrieves indexed log documents.
type LogRetriever struct {
	store        vectorstore.Store
	embedder     embedding.Embedder
	minRelevance float64
}

// NewLogRetriever creates a retriever over indexed logs. Documents scoring
// below minRelevance are dropped.
func NewLogRetriever(store vectorstore.Store, embedder embedding.Embedder, minRelevance float64) *LogRetriever {
	return &LogRetriever{
		store:        store,
		embedder:     embedder,
		minRelevance: minRelevance,
	}
}

// Retrieve returns up to k log documents relevant to query. It overfetches
// from the store so relevance filtering still leaves enough candidates.
func (r *LogRetriever) Retrieve(ctx context.Context, query string, w timewindow.Window, k int) ([]models.Document, error) {
	if k < 1 {
		k = 1
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	fetch := k * 2
	if fetch > overfetchCap {
		fetch = overfetchCap
	}

	results, err := r.store.Query(ctx, vec, fetch, w.Start.Unix())
	if err != nil {
		return nil, fmt.Errorf("vector store query failed: %w", err)
	}

	docs := filterByRelevance(results, r.minRelevance, k)
	metrics.RetrievedDocuments.Observe(float64(len(docs)))
	return docs, nil
}

// MetricRetriever retrieves indexed metric snapshot documents. Snapshots
// are stored as JSON and parsed back into samples on request.
type MetricRetriever struct {
	store        vectorstore.Store
	embedder     embedding.Embedder
	minRelevance float64
}

// NewMetricRetriever creates a retriever over indexed metric snapshots.
func NewMetricRetriever(store vectorstore.Store, embedder embedding.Embedder, minRelevance float64) *MetricRetriever {
	return &MetricRetriever{
		store:        store,
		embedder:     embedder,
		minRelevance: minRelevance,
	}
}

// Retrieve returns up to k metric documents relevant to query. Callers
// that mix log and metric context choose the per-source split themselves.
func (r *MetricRetriever) Retrieve(ctx context.Context, query string, w timewindow.Window, k int) ([]models.Document, error) {
	if k < 1 {
		k = 1
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	fetch := k * 2
	if fetch > overfetchCap {
		fetch = overfetchCap
	}

	results, err := r.store.Query(ctx, vec, fetch, w.Start.Unix())
	if err != nil {
		return nil, fmt.Errorf("vector store query failed: %w", err)
	}

	docs := filterByRelevance(results, r.minRelevance, k)
	metrics.RetrievedDocuments.Observe(float64(len(docs)))
	return docs, nil
}

// metricSnapshot is the JSON shape of an indexed metric document.
type metricSnapshot struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
}

// ParseMetricDocument decodes a metric snapshot document back into a
// metric sample.
func ParseMetricDocument(doc models.Document) (models.Metric, error) {
	var snap metricSnapshot
	if err := json.Unmarshal([]byte(doc.Content), &snap); err != nil {
		return models.Metric{}, fmt.Errorf("malformed metric document %s: %w", doc.ID, err)
	}

	return models.Metric{
		Name:      snap.Name,
		Value:     snap.Value,
		Timestamp: time.Unix(snap.Timestamp, 0).UTC(),
		Labels:    doc.Metadata,
	}, nil
}

func filterByRelevance(results []vectorstore.QueryResult, min float64, k int) []models.Document {
	docs := make([]models.Document, 0, len(results))
	for _, res := range results {
		rel := Relevance(res.Distance)
		if rel < min {
			continue
		}
		docs = append(docs, models.Document{
			ID:        res.ID,
			Content:   res.Content,
			Metadata:  metadataStrings(res.Metadata),
			Relevance: rel,
		})
		if len(docs) == k {
			break
		}
	}
	return docs
}

// metadataStrings flattens store metadata into the string map documents
// carry. Chroma returns JSON numbers as float64.
func metadataStrings(md map[string]any) map[string]string {
	if len(md) == 0 {
		return nil
	}
	out := make(map[string]string, len(md))
	for key, val := range md {
		switch v := val.(type) {
		case string:
			out[key] = v
		case float64:
			out[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case int64:
			out[key] = strconv.FormatInt(v, 10)
		case int:
			out[key] = strconv.Itoa(v)
		case bool:
			out[key] = strconv.FormatBool(v)
		default:
			out[key] = fmt.Sprint(v)
		}
	}
	return out
}
