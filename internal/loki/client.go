// Package loki is a minimal client for Grafana Loki's query_range API.
package loki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/athena-ops/athena-stack/internal/metrics"
	"github.com/athena-ops/athena-stack/internal/models"
	"github.com/athena-ops/athena-stack/internal/timewindow"
)

// Client queries a Loki instance for log entries.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	maxEntries int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxRetries sets how many times a failed query is retried.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithMaxEntries caps the number of entries requested per query.
func WithMaxEntries(n int) Option {
	return func(c *Client) { c.maxEntries = n }
}

// NewClient creates a Loki client for the given base URL.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: 3,
		maxEntries: 5000,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// errPermanent marks responses that will not improve on retry, such as a
// malformed LogQL query.
var errPermanent = errors.New("permanent loki error")

// StreamStats summarizes one query_range response.
type StreamStats struct {
	Streams    int      `json:"streams"`
	Entries    int      `json:"entries"`
	LabelNames []string `json:"label_names,omitempty"`
}

// queryRangeResponse mirrors the subset of Loki's response we consume.
type queryRangeResponse struct {
	Status string `json:"status"`
	Data   struct {
		ResultType string `json:"resultType"`
		Result     []struct {
			Stream map[string]string `json:"stream"`
			Values [][2]string       `json:"values"`
		} `json:"result"`
	} `json:"data"`
}

// QueryRange fetches log entries matching the LogQL query within the window.
// Transient failures are retried with exponential backoff; a 429 response
// honors the Retry-After header when present.
func (c *Client) QueryRange(ctx context.Context, query string, w timewindow.Window) ([]models.LogEntry, error) {
	entries, _, err := c.QueryRangeWithStats(ctx, query, w)
	return entries, err
}

// QueryRangeWithStats is QueryRange plus stream-level statistics about
// what the query matched.
func (c *Client) QueryRangeWithStats(ctx context.Context, query string, w timewindow.Window) ([]models.LogEntry, StreamStats, error) {
	if err := w.Validate(); err != nil {
		return nil, StreamStats{}, fmt.Errorf("invalid time window: %w", err)
	}

	start, end := w.LokiFormat()
	params := url.Values{}
	params.Set("query", query)
	params.Set("start", start)
	params.Set("end", end)
	params.Set("limit", strconv.Itoa(c.maxEntries))
	params.Set("direction", "backward")

	endpoint := c.baseURL + "/loki/api/v1/query_range?" + params.Encode()

	var lastErr error
	backoff := 500 * time.Millisecond

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, StreamStats{}, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		entries, stats, retryAfter, err := c.doQuery(ctx, endpoint)
		if err == nil {
			return entries, stats, nil
		}
		lastErr = err

		if errors.Is(err, errPermanent) {
			break
		}
		if retryAfter > 0 {
			backoff = retryAfter
		}
	}

	metrics.LokiQueryErrors.Inc()
	return nil, StreamStats{}, fmt.Errorf("loki query failed: %w", lastErr)
}

func (c *Client) doQuery(ctx context.Context, endpoint string) ([]models.LogEntry, StreamStats, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, StreamStats{}, 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, StreamStats{}, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Duration(0)
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return nil, StreamStats{}, retryAfter, fmt.Errorf("loki rate limited (429)")
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("loki returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		// Other 4xx responses mean the query itself is bad and retrying
		// would just repeat the failure.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			err = fmt.Errorf("%w: %w", errPermanent, err)
		}
		return nil, StreamStats{}, 0, err
	}

	var qr queryRangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return nil, StreamStats{}, 0, fmt.Errorf("failed to decode loki response: %w", err)
	}

	entries, stats := flattenStreams(qr)
	return entries, stats, 0, nil
}

// flattenStreams merges all streams into a single slice ordered by time
// and summarizes what the query matched.
func flattenStreams(qr queryRangeResponse) ([]models.LogEntry, StreamStats) {
	var entries []models.LogEntry
	labels := make(map[string]struct{})
	for _, result := range qr.Data.Result {
		for name := range result.Stream {
			labels[name] = struct{}{}
		}
		for _, v := range result.Values {
			ns, err := strconv.ParseInt(v[0], 10, 64)
			if err != nil {
				continue
			}
			entry := models.LogEntry{
				Timestamp: time.Unix(0, ns).UTC(),
				Message:   v[1],
				Labels:    result.Stream,
			}
			if lvl, ok := result.Stream["level"]; ok {
				entry.Level = lvl
			}
			parseJSONMessage(&entry)
			entries = append(entries, entry)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})

	stats := StreamStats{Streams: len(qr.Data.Result), Entries: len(entries)}
	for name := range labels {
		stats.LabelNames = append(stats.LabelNames, name)
	}
	sort.Strings(stats.LabelNames)
	return entries, stats
}

// parseJSONMessage unwraps entries whose message is a JSON object, lifting
// the embedded message text and level so downstream analysis sees the real
// content instead of the envelope.
func parseJSONMessage(entry *models.LogEntry) {
	msg := strings.TrimSpace(entry.Message)
	if !strings.HasPrefix(msg, "{") {
		return
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(msg), &payload); err != nil {
		return
	}

	for _, key := range []string{"message", "msg"} {
		if text, ok := payload[key].(string); ok && text != "" {
			entry.Message = text
			break
		}
	}
	if entry.Level == "" {
		for _, key := range []string{"level", "severity"} {
			if lvl, ok := payload[key].(string); ok && lvl != "" {
				entry.Level = strings.ToLower(lvl)
				break
			}
		}
	}
}
