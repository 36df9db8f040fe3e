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

func metricInput(name string, values ...float64) Input {
	now := time.Now().UTC()
	samples := make([]models.Metric, len(values))
	for i, v := range values {
		samples[i] = models.Metric{
			Name:      name,
			Value:     v,
			Timestamp: now.Add(time.Duration(i) * time.Minute),
		}
	}
	return Input{Query: "resource usage", Window: timewindow.LastHours(1), Metrics: samples}
}

func TestMetricsAgentEmptyInput(t *testing.T) {
	a := NewMetricsAgent(nil)
	result, err := a.Analyze(context.Background(), Input{Window: timewindow.LastHours(1)})
	require.NoError(t, err)
	assert.Equal(t, models.RiskLow, result.RiskLevel)
	assert.Contains(t, result.Summary, "No metric samples")
}

func TestMetricsAgentStats(t *testing.T) {
	a := NewMetricsAgent(nil)
	result, err := a.Analyze(context.Background(), metricInput("cpu_usage", 10, 20, 30, 40, 50))
	require.NoError(t, err)

	stats := result.Details["stats"].(map[string]SeriesStats)
	st := stats["cpu_usage"]
	assert.Equal(t, 5, st.Count)
	assert.InDelta(t, 30, st.Mean, 1e-9)
	assert.InDelta(t, 10, st.Min, 1e-9)
	assert.InDelta(t, 50, st.Max, 1e-9)
	assert.InDelta(t, 50, st.Last, 1e-9)
}

func TestMetricsAgentTrend(t *testing.T) {
	a := NewMetricsAgent(nil)
	result, err := a.Analyze(context.Background(), metricInput("cpu_usage", 10, 20, 30, 40, 50))
	require.NoError(t, err)

	trends := result.Details["trends"].(map[string]Trend)
	tr := trends["cpu_usage"]
	assert.Equal(t, "increasing", tr.Direction)
	assert.InDelta(t, 10, tr.Slope, 1e-9)
	assert.InDelta(t, 1.0, tr.Confidence, 1e-9)
	assert.InDelta(t, 400, tr.ChangePercent, 1e-9)

	// Forecast extrapolates the fitted line.
	require.Len(t, tr.Forecast, minTrendPoints)
	assert.InDelta(t, 60, tr.Forecast[0], 1e-9)
	assert.InDelta(t, 100, tr.Forecast[4], 1e-9)
}

func TestMetricsAgentStableTrend(t *testing.T) {
	a := NewMetricsAgent(nil)
	result, err := a.Analyze(context.Background(), metricInput("queue_depth", 5, 5.1, 4.9, 5, 5.05, 4.95))
	require.NoError(t, err)

	trends := result.Details["trends"].(map[string]Trend)
	assert.Equal(t, "stable", trends["queue_depth"].Direction)
}

func TestMetricsAgentShortSeriesSkipsTrend(t *testing.T) {
	a := NewMetricsAgent(nil)
	result, err := a.Analyze(context.Background(), metricInput("cpu_usage", 10, 20))
	require.NoError(t, err)

	trends := result.Details["trends"].(map[string]Trend)
	tr := trends["cpu_usage"]
	assert.Equal(t, "stable", tr.Direction)
	assert.Zero(t, tr.Slope)
	assert.Empty(t, tr.Forecast)
}

func TestMetricsAgentAnomalies(t *testing.T) {
	// Tight baseline with one extreme outlier.
	values := []float64{10, 10.1, 9.9, 10, 10.05, 9.95, 10, 10.1, 9.9, 10, 50}
	a := NewMetricsAgent(nil)
	result, err := a.Analyze(context.Background(), metricInput("latency_ms", values...))
	require.NoError(t, err)

	require.NotEmpty(t, result.Anomalies)
	an := result.Anomalies[0]
	assert.Equal(t, "latency_ms", an.MetricName)
	assert.Equal(t, 50.0, an.Value)
	assert.Greater(t, an.ZScore, 3.0)
	// Against the tight rolling baseline the spike is far past 5 sigma.
	assert.Equal(t, models.RiskCritical, an.Severity)
	assert.Equal(t, models.RiskCritical, result.RiskLevel)
}

func TestMetricsAgentRollingBaselineCatchesSpikeInTrend(t *testing.T) {
	// A steady rise keeps the rolling deviation small, so the spike at
	// the end still stands out. A whole-series baseline would fold the
	// trend into the deviation and miss it.
	values := []float64{10, 12, 14, 16, 18, 20, 22, 24, 26, 28, 30, 32, 34, 120}
	a := NewMetricsAgent(nil)
	result, err := a.Analyze(context.Background(), metricInput("request_rate", values...))
	require.NoError(t, err)

	require.Len(t, result.Anomalies, 1)
	assert.Equal(t, 120.0, result.Anomalies[0].Value)
}

func TestMetricsAgentCustomThresholds(t *testing.T) {
	a := NewMetricsAgent(map[string]Threshold{
		"cpu":     {Warning: 40, Critical: 60},
		"default": {Warning: 75, Critical: 90},
	})

	result, err := a.Analyze(context.Background(), metricInput("cpu_usage", 65))
	require.NoError(t, err)
	assert.Equal(t, models.RiskCritical, result.RiskLevel)

	// An unnamed usage metric falls back to the default band.
	result, err = a.Analyze(context.Background(), metricInput("gpu_usage", 80))
	require.NoError(t, err)
	assert.Equal(t, models.RiskMedium, result.RiskLevel)

	// Non-usage metrics carry no band at all.
	result, err = a.Analyze(context.Background(), metricInput("request_latency_ms", 500))
	require.NoError(t, err)
	assert.Equal(t, models.RiskLow, result.RiskLevel)
}

func TestMetricsAgentPercentSuffix(t *testing.T) {
	a := NewMetricsAgent(nil)
	result, err := a.Analyze(context.Background(), metricInput("memory_percent", 92))
	require.NoError(t, err)
	assert.Equal(t, models.RiskCritical, result.RiskLevel)
}

func TestMetricsAgentThresholds(t *testing.T) {
	tests := []struct {
		name   string
		metric string
		value  float64
		want   models.RiskLevel
	}{
		{"cpu below warning", "cpu_usage", 60, models.RiskLow},
		{"cpu warning", "cpu_usage", 75, models.RiskMedium},
		{"cpu critical", "cpu_usage", 90, models.RiskCritical},
		{"memory warning", "memory_usage", 82, models.RiskMedium},
		{"disk critical", "disk_usage", 96, models.RiskCritical},
	}

	a := NewMetricsAgent(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := a.Analyze(context.Background(), metricInput(tt.metric, tt.value))
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.RiskLevel)

			if tt.want != models.RiskLow {
				require.NotEmpty(t, result.Recommendations)
			}
		})
	}
}

func TestLinearRegression(t *testing.T) {
	slope, intercept, r := linearRegression([]float64{2, 4, 6, 8})
	assert.InDelta(t, 2, slope, 1e-9)
	assert.InDelta(t, 2, intercept, 1e-9)
	assert.InDelta(t, 1, r, 1e-9)

	// Flat series has zero slope and no correlation direction.
	slope, _, r = linearRegression([]float64{3, 3, 3, 3})
	assert.InDelta(t, 0, slope, 1e-9)
	assert.InDelta(t, 0, r, 1e-9)
}
