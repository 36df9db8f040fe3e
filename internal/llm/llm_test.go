package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "mistral", req.Model)
		assert.False(t, req.Stream)

		json.NewEncoder(w).Encode(generateResponse{Response: "  CPU usage is elevated.  ", Done: true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "mistral", 5*time.Second, 2)
	out, err := c.Generate(context.Background(), "summarize")
	require.NoError(t, err)
	assert.Equal(t, "CPU usage is elevated.", out)
}

func TestGenerateRetriesOnFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(generateResponse{Response: "ok", Done: true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "mistral", 5*time.Second, 2)
	out, err := c.Generate(context.Background(), "summarize")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGenerateExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "mistral", time.Second, 1)
	_, err := c.Generate(context.Background(), "summarize")
	assert.ErrorIs(t, err, ErrGenerationFailed)
}

func TestGenerateModelMissingFailsFast(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model 'mistral' not found, try pulling it first"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "mistral", time.Second, 3)
	_, err := c.Generate(context.Background(), "summarize")
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.ErrorIs(t, err, ErrModelMissing)
	// A missing model will not appear between retries.
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerateContextLengthFailsFast(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"prompt is longer than the model context length"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "mistral", time.Second, 3)
	_, err := c.Generate(context.Background(), "very long prompt")
	assert.ErrorIs(t, err, ErrContextLength)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerateEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{Response: "   ", Done: true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "mistral", time.Second, 0)
	_, err := c.Generate(context.Background(), "summarize")
	assert.ErrorIs(t, err, ErrGenerationFailed)
}

type scriptedGenerator struct {
	responses map[string]string
}

func (s *scriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	if out, ok := s.responses[prompt]; ok {
		return out, nil
	}
	return "", errors.New("scripted failure")
}

func TestGenerateWithFallback(t *testing.T) {
	t.Run("primary succeeds", func(t *testing.T) {
		g := &scriptedGenerator{responses: map[string]string{"full": "detailed summary"}}
		assert.Equal(t, "detailed summary", GenerateWithFallback(context.Background(), g, "full", "short"))
	})

	t.Run("falls back to short prompt", func(t *testing.T) {
		g := &scriptedGenerator{responses: map[string]string{"short": "brief summary"}}
		assert.Equal(t, "brief summary", GenerateWithFallback(context.Background(), g, "full", "short"))
	})

	t.Run("all attempts fail", func(t *testing.T) {
		g := &scriptedGenerator{}
		assert.Equal(t, FallbackResponse, GenerateWithFallback(context.Background(), g, "full", "short"))
	})
}
