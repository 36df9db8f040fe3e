package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athena-ops/athena-stack/internal/models"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestAnalysisCache_RoundTrip(t *testing.T) {
	_, client := setupTestRedis(t)
	c := NewAnalysisCache(client, 5*time.Minute, true)
	ctx := context.Background()

	req := models.AnalysisRequest{Query: "why is cpu high", TimeWindowHours: 6}
	result := &models.AnalysisResult{
		ID:        "abc-123",
		Query:     req.Query,
		Intent:    "metrics_analysis",
		RiskLevel: models.RiskMedium,
		Summary:   "CPU is elevated on two hosts",
	}

	// Miss before set.
	got, err := c.Get(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, c.Set(ctx, req, result))

	got, err = c.Get(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "abc-123", got.ID)
	assert.Equal(t, models.RiskMedium, got.RiskLevel)
	assert.True(t, got.Cached)
}

func TestAnalysisCache_KeyNormalization(t *testing.T) {
	_, client := setupTestRedis(t)
	c := NewAnalysisCache(client, 5*time.Minute, true)
	ctx := context.Background()

	req := models.AnalysisRequest{Query: "Why is CPU high", TimeWindowHours: 6}
	require.NoError(t, c.Set(ctx, req, &models.AnalysisResult{ID: "abc"}))

	// Same query with different casing and whitespace hits the same entry.
	got, err := c.Get(ctx, models.AnalysisRequest{Query: "  why is cpu HIGH  ", TimeWindowHours: 6})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "abc", got.ID)

	// Different window is a different entry.
	got, err = c.Get(ctx, models.AnalysisRequest{Query: "why is cpu high", TimeWindowHours: 12})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAnalysisCache_TTLExpiry(t *testing.T) {
	mr, client := setupTestRedis(t)
	c := NewAnalysisCache(client, time.Minute, true)
	ctx := context.Background()

	req := models.AnalysisRequest{Query: "disk errors"}
	require.NoError(t, c.Set(ctx, req, &models.AnalysisResult{ID: "abc"}))

	// Fast forward time in miniredis past the TTL.
	mr.FastForward(2 * time.Minute)

	got, err := c.Get(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAnalysisCache_Disabled(t *testing.T) {
	c := NewAnalysisCache(nil, time.Minute, false)
	ctx := context.Background()

	req := models.AnalysisRequest{Query: "anything"}
	got, err := c.Get(ctx, req)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.NoError(t, c.Set(ctx, req, &models.AnalysisResult{ID: "abc"}))
	assert.NoError(t, c.Invalidate(ctx, req))
}
