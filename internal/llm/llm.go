// Package llm wraps an Ollama text generation endpoint with retry and
// fallback behavior suited to long-running analysis prompts.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/athena-ops/athena-stack/internal/metrics"
)

// FallbackResponse is returned when every generation attempt fails. Callers
// can still produce a useful report from the structured agent output alone.
const FallbackResponse = "Analysis summary is unavailable because the language model did not respond. Review the structured findings below."

var (
	ErrGenerationFailed = errors.New("llm generation failed")

	// ErrModelMissing means the configured model is not pulled on the
	// backend. Retrying cannot fix that.
	ErrModelMissing = errors.New("llm model not available")

	// ErrContextLength means the prompt exceeds the model's context
	// window; callers should shorten the prompt instead of retrying.
	ErrContextLength = errors.New("prompt exceeds model context length")
)

// Generator produces text completions.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Client calls Ollama's /api/generate endpoint. Timeouts double on each
// retry so slow models get progressively more room before we give up.
type Client struct {
	baseURL    string
	model      string
	timeout    time.Duration
	maxRetries int
	httpClient *http.Client
}

// NewClient creates an LLM client for the given Ollama instance.
func NewClient(baseURL, model string, timeout time.Duration, maxRetries int) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		timeout:    timeout,
		maxRetries: maxRetries,
		// Per-attempt deadlines come from the context, not the client.
		httpClient: &http.Client{},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate returns a completion for prompt. Each retry doubles the attempt
// timeout. When all attempts fail the error wraps ErrGenerationFailed.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	defer func() {
		metrics.LLMDuration.Observe(time.Since(start).Seconds())
	}()

	timeout := c.timeout
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		out, err := c.generateOnce(ctx, prompt, timeout)
		if err == nil {
			metrics.LLMRequests.WithLabelValues(c.model, "ok").Inc()
			return out, nil
		}

		lastErr = err
		if ctx.Err() != nil || errors.Is(err, ErrModelMissing) || errors.Is(err, ErrContextLength) {
			break
		}
		timeout *= 2
	}

	metrics.LLMRequests.WithLabelValues(c.model, "error").Inc()
	return "", fmt.Errorf("%w: %w", ErrGenerationFailed, lastErr)
}

func (c *Client) generateOnce(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(generateRequest{Model: c.model, Prompt: prompt})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", classifyBackendError(resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", fmt.Errorf("failed to decode llm response: %w", err)
	}

	out := strings.TrimSpace(gr.Response)
	if out == "" {
		return "", errors.New("llm returned empty response")
	}
	return out, nil
}

// classifyBackendError maps Ollama error responses onto sentinel errors
// so callers can tell permanent failures from transient ones.
func classifyBackendError(status int, body string) error {
	lower := strings.ToLower(body)
	switch {
	case status == http.StatusNotFound || strings.Contains(lower, "not found"):
		return fmt.Errorf("%w: backend returned %d: %s", ErrModelMissing, status, body)
	case strings.Contains(lower, "context length") || strings.Contains(lower, "context window"):
		return fmt.Errorf("%w: backend returned %d: %s", ErrContextLength, status, body)
	}
	return fmt.Errorf("llm backend returned %d: %s", status, body)
}

// GenerateWithFallback tries the full prompt first, then a shortened
// fallback prompt, and finally returns FallbackResponse. It never returns
// an error: summaries degrade instead of failing the analysis.
func GenerateWithFallback(ctx context.Context, g Generator, prompt, fallbackPrompt string) string {
	if out, err := g.Generate(ctx, prompt); err == nil {
		return out
	}

	if fallbackPrompt != "" && fallbackPrompt != prompt {
		if out, err := g.Generate(ctx, fallbackPrompt); err == nil {
			return out
		}
	}

	return FallbackResponse
}
