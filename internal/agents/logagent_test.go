package agents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athena-ops/athena-stack/internal/models"
	"github.com/athena-ops/athena-stack/internal/timewindow"
)

func logInput(messages ...string) Input {
	now := time.Now().UTC()
	logs := make([]models.LogEntry, len(messages))
	for i, msg := range messages {
		logs[i] = models.LogEntry{Timestamp: now, Message: msg}
	}
	return Input{Query: "what is failing?", Window: timewindow.LastHours(1), Logs: logs}
}

func TestLogAgentEmptyInput(t *testing.T) {
	a := NewLogAgent()
	result, err := a.Analyze(context.Background(), Input{Window: timewindow.LastHours(1)})
	require.NoError(t, err)
	assert.Equal(t, models.RiskLow, result.RiskLevel)
	assert.Contains(t, result.Summary, "No log entries")
}

func TestLogAgentClassifiesPatterns(t *testing.T) {
	a := NewLogAgent()
	result, err := a.Analyze(context.Background(), logInput(
		"ERROR connection refused to upstream",
		"ERROR database query error on orders table",
		"INFO request served in 12ms",
		"WARN disk volume error on /var/lib",
	))
	require.NoError(t, err)

	counts := result.Details["pattern_counts"].(map[string]int)
	assert.Equal(t, 1, counts["connection"])
	assert.Equal(t, 1, counts["database"])
	assert.Equal(t, 1, counts["disk"])
	assert.NotContains(t, counts, "memory")
}

func TestLogAgentRiskLevels(t *testing.T) {
	tests := []struct {
		name     string
		messages []string
		want     models.RiskLevel
	}{
		{
			name:     "clean logs stay low",
			messages: []string{"INFO ok", "INFO ok", "INFO ok"},
			want:     models.RiskLow,
		},
		{
			// One database error scores 2 (critical category x2).
			name:     "single critical category is medium",
			messages: []string{"database error during commit", "INFO ok", "INFO ok", "INFO ok", "INFO ok", "INFO ok", "INFO ok", "INFO ok", "INFO ok", "INFO ok", "INFO ok", "INFO ok", "INFO ok", "INFO ok", "INFO ok", "INFO ok", "INFO ok", "INFO ok", "INFO ok", "INFO ok", "INFO ok"},
			want:     models.RiskMedium,
		},
		{
			// Two critical matches (4) plus error rate above 30% (+3) = 7.
			name: "many critical failures reach critical",
			messages: []string{
				"ERROR memory overflow in worker",
				"ERROR disk space error on data volume",
				"INFO ok",
			},
			want: models.RiskCritical,
		},
	}

	a := NewLogAgent()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := a.Analyze(context.Background(), logInput(tt.messages...))
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.RiskLevel, "summary: %s", result.Summary)
		})
	}
}

func TestLogAgentErrorRate(t *testing.T) {
	now := time.Now().UTC()
	logs := []models.LogEntry{
		{Timestamp: now, Level: "error", Message: "something broke"},
		{Timestamp: now, Level: "info", Message: "fine"},
		{Timestamp: now, Message: "ERROR inline level"},
		{Timestamp: now, Message: "all good"},
	}

	rate := computeErrorRate(logs)
	assert.InDelta(t, 0.5, rate, 1e-9)
}

func TestLogAgentRecommendations(t *testing.T) {
	a := NewLogAgent()
	result, err := a.Analyze(context.Background(), logInput(
		"ERROR database error: too many connections",
		"ERROR connection timeout to cache",
	))
	require.NoError(t, err)

	require.NotEmpty(t, result.Recommendations)
	var actions []string
	for _, rec := range result.Recommendations {
		actions = append(actions, rec.Action)
	}
	assert.Contains(t, actions[0]+actions[1], "database")
}

func TestLogAgentTrends(t *testing.T) {
	base := time.Date(2026, 8, 30, 9, 15, 0, 0, time.UTC)
	logs := []models.LogEntry{
		{Timestamp: base, Level: "info", Message: "started", Labels: map[string]string{"component": "api"}},
		{Timestamp: base.Add(20 * time.Minute), Level: "error", Message: "boom", Labels: map[string]string{"component": "api"}},
		{Timestamp: base.Add(time.Hour), Level: "info", Message: "ok", Labels: map[string]string{"service": "worker"}},
		{Timestamp: base.Add(2 * time.Hour), Message: "no labels here"},
	}

	a := NewLogAgent()
	result, err := a.Analyze(context.Background(), Input{Query: "activity", Window: timewindow.LastHours(3), Logs: logs})
	require.NoError(t, err)

	trends := result.Details["trends"].(LogTrends)
	assert.Equal(t, 2, trends.HourlyDistribution[9])
	assert.Equal(t, 1, trends.HourlyDistribution[10])
	assert.Equal(t, 2, trends.ComponentDistribution["api"])
	// A service label stands in when component is absent.
	assert.Equal(t, 1, trends.ComponentDistribution["worker"])
	assert.Equal(t, 1, trends.ComponentDistribution["unknown"])
	assert.Equal(t, 3, trends.UniqueComponents)
	assert.Equal(t, 2*time.Hour, trends.TimeSpan)
	assert.Equal(t, 1, trends.SeverityDistribution["error"])

	counts := result.Details["severity_counts"].(map[string]int)
	assert.Equal(t, 2, counts["info"])
	assert.InDelta(t, 25.0, result.Details["error_rate_percent"].(float64), 1e-9)
}

func TestLogAgentCachesResults(t *testing.T) {
	a := NewLogAgent()
	in := logInput("ERROR connection refused", "INFO ok")

	first, err := a.Analyze(context.Background(), in)
	require.NoError(t, err)
	second, err := a.Analyze(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), a.CacheStats().Hits)

	// Same shape, different content misses.
	_, err = a.Analyze(context.Background(), logInput("ERROR memory overflow", "INFO ok"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.CacheStats().Hits)
}

func TestLogAgentContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := NewLogAgent()
	_, err := a.Analyze(ctx, logInput("INFO ok"))
	assert.ErrorIs(t, err, context.Canceled)
}
