// Package vectorstore is a client for a Chroma vector database over its
// REST API.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// QueryResult is a single matched document with its raw distance. Metadata
// values keep their stored types: Chroma compares filters by type, so a
// numeric field written as a string would never match a numeric filter.
type QueryResult struct {
	ID       string
	Content  string
	Metadata map[string]any
	Distance float64
}

// Store is the subset of vector store operations the retrieval layer needs.
type Store interface {
	EnsureCollection(ctx context.Context, name string) error
	Add(ctx context.Context, ids []string, embeddings [][]float64, contents []string, metadatas []map[string]any) error
	Query(ctx context.Context, embedding []float64, k int, sinceEpoch int64) ([]QueryResult, error)
}

// ChromaStore talks to a Chroma instance. All calls target one collection,
// resolved to its internal ID by EnsureCollection.
type ChromaStore struct {
	baseURL        string
	token          string
	collection     string
	collectionID   string
	collectionMeta map[string]any
	httpClient     *http.Client
}

// NewChromaStore creates a store client for the named collection. Call
// EnsureCollection before Add or Query.
func NewChromaStore(baseURL, token, collection string, timeout time.Duration) *ChromaStore {
	return &ChromaStore{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		collection: collection,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (s *ChromaStore) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chroma request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("chroma returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode chroma response: %w", err)
		}
	}
	return nil
}

type collectionResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata"`
}

// EnsureCollection creates the collection if it does not exist and caches
// its internal ID for subsequent calls.
func (s *ChromaStore) EnsureCollection(ctx context.Context, name string) error {
	if name != "" {
		s.collection = name
	}

	payload := map[string]any{
		"name":          s.collection,
		"get_or_create": true,
		"metadata":      map[string]any{"hnsw:space": "cosine"},
	}

	var cr collectionResponse
	if err := s.do(ctx, http.MethodPost, "/api/v1/collections", payload, &cr); err != nil {
		return fmt.Errorf("failed to ensure collection %q: %w", s.collection, err)
	}

	s.collectionID = cr.ID
	s.collectionMeta = cr.Metadata
	return nil
}

// CollectionMetadata returns the metadata Chroma reported for the
// collection on the last EnsureCollection call.
func (s *ChromaStore) CollectionMetadata() map[string]any {
	return s.collectionMeta
}

// Count returns the number of documents in the collection.
func (s *ChromaStore) Count(ctx context.Context) (int, error) {
	if s.collectionID == "" {
		return 0, fmt.Errorf("collection not initialized")
	}

	var n int
	path := fmt.Sprintf("/api/v1/collections/%s/count", s.collectionID)
	if err := s.do(ctx, http.MethodGet, path, nil, &n); err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	return n, nil
}

// Add upserts documents with their embeddings and metadata.
func (s *ChromaStore) Add(ctx context.Context, ids []string, embeddings [][]float64, contents []string, metadatas []map[string]any) error {
	if s.collectionID == "" {
		return fmt.Errorf("collection not initialized")
	}
	if len(ids) == 0 {
		return nil
	}

	payload := map[string]any{
		"ids":        ids,
		"embeddings": embeddings,
		"documents":  contents,
		"metadatas":  metadatas,
	}

	path := fmt.Sprintf("/api/v1/collections/%s/upsert", s.collectionID)
	if err := s.do(ctx, http.MethodPost, path, payload, nil); err != nil {
		return fmt.Errorf("failed to add %d documents: %w", len(ids), err)
	}
	return nil
}

type queryResponse struct {
	IDs       [][]string         `json:"ids"`
	Documents [][]string         `json:"documents"`
	Metadatas [][]map[string]any `json:"metadatas"`
	Distances [][]float64        `json:"distances"`
}

// Query returns the k nearest documents to embedding. A positive sinceEpoch
// restricts results to documents whose timestamp_epoch metadata is at or
// after that time.
func (s *ChromaStore) Query(ctx context.Context, embedding []float64, k int, sinceEpoch int64) ([]QueryResult, error) {
	if s.collectionID == "" {
		return nil, fmt.Errorf("collection not initialized")
	}
	if k < 1 {
		k = 1
	}

	payload := map[string]any{
		"query_embeddings": [][]float64{embedding},
		"n_results":        k,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	if sinceEpoch > 0 {
		payload["where"] = map[string]any{
			"timestamp_epoch": map[string]any{"$gte": sinceEpoch},
		}
	}

	var qr queryResponse
	path := fmt.Sprintf("/api/v1/collections/%s/query", s.collectionID)
	if err := s.do(ctx, http.MethodPost, path, payload, &qr); err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	if len(qr.IDs) == 0 {
		return nil, nil
	}

	// Chroma nests results per query embedding; we only ever send one.
	results := make([]QueryResult, 0, len(qr.IDs[0]))
	for i, id := range qr.IDs[0] {
		r := QueryResult{ID: id}
		if len(qr.Documents) > 0 && i < len(qr.Documents[0]) {
			r.Content = qr.Documents[0][i]
		}
		if len(qr.Metadatas) > 0 && i < len(qr.Metadatas[0]) {
			r.Metadata = qr.Metadatas[0][i]
		}
		if len(qr.Distances) > 0 && i < len(qr.Distances[0]) {
			r.Distance = qr.Distances[0][i]
		}
		results = append(results, r)
	}
	return results, nil
}
