package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/athena-ops/athena-stack/internal/metrics"
	"github.com/athena-ops/athena-stack/internal/models"
)

// AnalysisCache stores completed analysis results in Redis keyed by a hash
// of the normalized query and its parameters.
type AnalysisCache struct {
	redis   *redis.Client
	ttl     time.Duration
	enabled bool
}

// NewAnalysisCache creates a Redis-backed analysis cache.
func NewAnalysisCache(redisClient *redis.Client, ttl time.Duration, enabled bool) *AnalysisCache {
	return &AnalysisCache{
		redis:   redisClient,
		ttl:     ttl,
		enabled: enabled,
	}
}

// IsEnabled returns whether the cache is usable.
func (c *AnalysisCache) IsEnabled() bool {
	return c.enabled && c.redis != nil
}

// Get retrieves a cached result for the request. A miss returns (nil, nil).
func (c *AnalysisCache) Get(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error) {
	if !c.IsEnabled() {
		return nil, nil
	}

	data, err := c.redis.Get(ctx, c.key(req)).Result()
	if errors.Is(err, redis.Nil) {
		metrics.CacheMisses.Inc()
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached analysis: %w", err)
	}

	var result models.AnalysisResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached analysis: %w", err)
	}

	metrics.CacheHits.Inc()
	result.Cached = true
	return &result, nil
}

// Set stores a result under the request's cache key.
func (c *AnalysisCache) Set(ctx context.Context, req models.AnalysisRequest, result *models.AnalysisResult) error {
	if !c.IsEnabled() {
		return nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}

	if err := c.redis.Set(ctx, c.key(req), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache analysis: %w", err)
	}
	return nil
}

// Invalidate removes the cached result for the request, if any.
func (c *AnalysisCache) Invalidate(ctx context.Context, req models.AnalysisRequest) error {
	if !c.IsEnabled() {
		return nil
	}
	return c.redis.Del(ctx, c.key(req)).Err()
}

// key builds a deterministic cache key. Queries are normalized so casing
// and surrounding whitespace do not fragment the cache.
func (c *AnalysisCache) key(req models.AnalysisRequest) string {
	normalized := strings.ToLower(strings.TrimSpace(req.Query))
	payload := fmt.Sprintf("%s|%d|%s", normalized, req.TimeWindowHours, strings.Join(req.AnalysisTypes, ","))
	hash := sha256.Sum256([]byte(payload))
	return fmt.Sprintf("analysis:%x", hash[:8])
}
