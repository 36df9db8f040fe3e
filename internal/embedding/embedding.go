// Package embedding generates text embeddings via an Ollama endpoint.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

// MinDimensions is the smallest embedding size we accept from a model.
// Anything smaller indicates a misconfigured or truncating backend.
const MinDimensions = 384

var ErrTooFewDimensions = errors.New("embedding has too few dimensions")

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// OllamaEmbedder calls Ollama's /api/embeddings endpoint.
type OllamaEmbedder struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllamaEmbedder creates an embedder backed by the given Ollama instance.
func NewOllamaEmbedder(baseURL, model string, timeout time.Duration) *OllamaEmbedder {
	return &OllamaEmbedder{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed returns the L2-normalized embedding for text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(embedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding backend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var er embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}

	if len(er.Embedding) < MinDimensions {
		return nil, fmt.Errorf("%w: got %d, want at least %d", ErrTooFewDimensions, len(er.Embedding), MinDimensions)
	}

	return Normalize(er.Embedding), nil
}

// Normalize returns the L2-normalized copy of v. A zero vector is returned
// unchanged.
func Normalize(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return v
	}

	norm := math.Sqrt(sum)
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

// Dot returns the dot product of a and b. For normalized vectors this is
// the cosine similarity. Mismatched lengths return 0.
func Dot(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Mean returns the element-wise mean of the given vectors, normalized.
// Returns nil for empty input.
func Mean(vecs [][]float64) []float64 {
	if len(vecs) == 0 {
		return nil
	}

	out := make([]float64, len(vecs[0]))
	for _, v := range vecs {
		if len(v) != len(out) {
			continue
		}
		for i, x := range v {
			out[i] += x
		}
	}
	for i := range out {
		out[i] /= float64(len(vecs))
	}
	return Normalize(out)
}
