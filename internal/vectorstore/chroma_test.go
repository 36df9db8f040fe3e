package vectorstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, handler http.HandlerFunc) *ChromaStore {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewChromaStore(srv.URL, "test-token", "athena_logs", 5*time.Second)
}

func TestEnsureCollection(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/collections", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "athena_logs", payload["name"])
		assert.Equal(t, true, payload["get_or_create"])
		assert.Equal(t, map[string]any{"hnsw:space": "cosine"}, payload["metadata"])

		json.NewEncoder(w).Encode(collectionResponse{
			ID:       "col-123",
			Name:     "athena_logs",
			Metadata: map[string]any{"hnsw:space": "cosine"},
		})
	})

	require.NoError(t, s.EnsureCollection(context.Background(), ""))
	assert.Equal(t, "col-123", s.collectionID)
	assert.Equal(t, "cosine", s.CollectionMetadata()["hnsw:space"])
}

func TestQueryWithTimeFilter(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/collections" {
			json.NewEncoder(w).Encode(collectionResponse{ID: "col-123"})
			return
		}

		assert.Equal(t, "/api/v1/collections/col-123/query", r.URL.Path)

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, float64(3), payload["n_results"])

		where, ok := payload["where"].(map[string]any)
		require.True(t, ok, "expected where filter")
		gte := where["timestamp_epoch"].(map[string]any)["$gte"]
		assert.Equal(t, float64(1717243200), gte)

		json.NewEncoder(w).Encode(queryResponse{
			IDs:       [][]string{{"a", "b"}},
			Documents: [][]string{{"ERROR disk full", "WARN slow query"}},
			Metadatas: [][]map[string]any{{
				{"source": "api", "timestamp_epoch": 1717243500},
				{"source": "db"},
			}},
			Distances: [][]float64{{0.2, 0.9}},
		})
	})

	ctx := context.Background()
	require.NoError(t, s.EnsureCollection(ctx, ""))

	results, err := s.Query(ctx, []float64{0.1, 0.2}, 3, 1717243200)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "ERROR disk full", results[0].Content)
	assert.Equal(t, "api", results[0].Metadata["source"])
	// Numeric metadata decodes as a number, not a string.
	assert.Equal(t, float64(1717243500), results[0].Metadata["timestamp_epoch"])
	assert.Equal(t, 0.2, results[0].Distance)
	assert.Equal(t, 0.9, results[1].Distance)
}

func TestQueryWithoutCollection(t *testing.T) {
	s := NewChromaStore("http://localhost:8000", "", "athena_logs", time.Second)
	_, err := s.Query(context.Background(), []float64{0.1}, 5, 0)
	assert.Error(t, err)
}

func TestAdd(t *testing.T) {
	var gotUpsert bool
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/collections" {
			json.NewEncoder(w).Encode(collectionResponse{ID: "col-123"})
			return
		}

		assert.Equal(t, "/api/v1/collections/col-123/upsert", r.URL.Path)
		gotUpsert = true

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Len(t, payload["ids"], 2)

		// The epoch must go over the wire as a number so numeric $gte
		// filters can match it.
		metadatas := payload["metadatas"].([]any)
		first := metadatas[0].(map[string]any)
		assert.Equal(t, float64(1717243200), first["timestamp_epoch"])

		w.WriteHeader(http.StatusCreated)
	})

	ctx := context.Background()
	require.NoError(t, s.EnsureCollection(ctx, ""))

	err := s.Add(ctx,
		[]string{"a", "b"},
		[][]float64{{0.1}, {0.2}},
		[]string{"doc a", "doc b"},
		[]map[string]any{
			{"source": "api", "timestamp_epoch": int64(1717243200)},
			{"source": "db", "timestamp_epoch": int64(1717243260)},
		},
	)
	require.NoError(t, err)
	assert.True(t, gotUpsert)
}

func TestCount(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/collections" {
			json.NewEncoder(w).Encode(collectionResponse{ID: "col-123"})
			return
		}
		assert.Equal(t, "/api/v1/collections/col-123/count", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		w.Write([]byte("42"))
	})

	ctx := context.Background()
	require.NoError(t, s.EnsureCollection(ctx, ""))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	uninit := NewChromaStore("http://localhost:8000", "", "athena_logs", time.Second)
	_, err = uninit.Count(ctx)
	assert.Error(t, err)
}

func TestAddEmptyBatch(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/collections" {
			json.NewEncoder(w).Encode(collectionResponse{ID: "col-123"})
			return
		}
		t.Fatal("no request expected for empty batch")
	})

	ctx := context.Background()
	require.NoError(t, s.EnsureCollection(ctx, ""))
	assert.NoError(t, s.Add(ctx, nil, nil, nil, nil))
}
