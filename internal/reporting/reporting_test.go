package reporting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athena-ops/athena-stack/internal/models"
	"github.com/athena-ops/athena-stack/internal/timewindow"
)

func securityResult() models.AgentResult {
	return models.AgentResult{
		Agent:     "security",
		RiskLevel: models.RiskCritical,
		Issues: []models.SecurityIssue{
			{Type: "injection", Severity: models.RiskCritical, Count: 2},
			{Type: "brute_force", Severity: models.RiskHigh, Count: 4},
			{Type: "auth_failure", Severity: models.RiskMedium, Count: 9},
		},
		Recommendations: []models.Recommendation{
			{Action: "Review application input validation", Priority: models.RiskCritical},
		},
	}
}

func metricsResult() models.AgentResult {
	return models.AgentResult{
		Agent:     "metrics",
		RiskLevel: models.RiskHigh,
		Anomalies: []models.Anomaly{
			{MetricName: "cpu_usage", Value: 97, ZScore: 4.2, Severity: models.RiskHigh},
			{MetricName: "request_rate", Value: 12, ZScore: 3.1, Severity: models.RiskMedium},
		},
		Recommendations: []models.Recommendation{
			{Action: "Investigate CPU-intensive processes", Priority: models.RiskHigh},
			{Action: "Review application input validation", Priority: models.RiskMedium},
		},
	}
}

func TestGenerateInsights(t *testing.T) {
	b := NewBuilder(5)
	insights := b.GenerateInsights([]models.AgentResult{securityResult(), metricsResult()})

	require.NotEmpty(t, insights)
	assert.Equal(t, "security", insights[0].Category)
	assert.Equal(t, 5, insights[0].Importance)
	assert.Equal(t, "Critical security issues detected: 2", insights[0].Summary)

	for i := 1; i < len(insights); i++ {
		assert.GreaterOrEqual(t, insights[i-1].Importance, insights[i].Importance)
	}
}

func TestGenerateInsightsCapsAndDedupes(t *testing.T) {
	b := NewBuilder(2)
	results := []models.AgentResult{securityResult(), securityResult(), metricsResult()}

	insights := b.GenerateInsights(results)
	assert.Len(t, insights, 2)

	seen := make(map[string]bool)
	for _, in := range insights {
		assert.False(t, seen[in.Summary])
		seen[in.Summary] = true
	}
}

func TestGenerateInsightsAgentFailure(t *testing.T) {
	b := NewBuilder(5)
	insights := b.GenerateInsights([]models.AgentResult{
		{Agent: "logs", Err: "context deadline exceeded"},
	})

	require.Len(t, insights, 1)
	assert.Equal(t, "availability", insights[0].Category)
	assert.Equal(t, 3, insights[0].Importance)
	assert.Contains(t, insights[0].Summary, "logs")
}

func TestKeyFindings(t *testing.T) {
	insights := []models.Insight{
		{Summary: "critical one", Importance: 5},
		{Summary: "high one", Importance: 4},
		{Summary: "medium one", Importance: 3},
		{Summary: "minor one", Importance: 2},
	}

	findings := KeyFindings(insights)
	require.Len(t, findings, 3)
	assert.Equal(t, "[CRITICAL] critical one", findings[0])
	assert.Equal(t, "[HIGH] high one", findings[1])
	assert.Equal(t, "[MEDIUM] medium one", findings[2])
}

func TestKeyFindingsCapped(t *testing.T) {
	var insights []models.Insight
	for i := 0; i < 8; i++ {
		insights = append(insights, models.Insight{Summary: "finding", Importance: 4})
	}
	assert.Len(t, KeyFindings(insights), maxKeyFindings)
}

func TestOverview(t *testing.T) {
	results := []models.AgentResult{metricsResult()}
	insights := []models.Insight{
		{Importance: 5},
		{Importance: 3},
	}

	overview := Overview(results, insights, models.RiskHigh)
	assert.Equal(t,
		"Analysis detected 2 anomalies and generated 2 insights, with 1 critical findings. Overall risk level: HIGH.",
		overview)
}

func TestAggregateRecommendations(t *testing.T) {
	recs := AggregateRecommendations([]models.AgentResult{securityResult(), metricsResult()})

	require.Len(t, recs, 2)
	assert.Equal(t, "Review application input validation", recs[0].Action)
	assert.Equal(t, models.RiskCritical, recs[0].Priority)
	assert.Equal(t, "Investigate CPU-intensive processes", recs[1].Action)
}

func TestBuildReport(t *testing.T) {
	b := NewBuilder(5)
	b.nowFunc = func() time.Time { return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC) }

	report := b.Build([]models.AgentResult{securityResult(), metricsResult()}, models.RiskCritical, timewindow.LastHours(24))

	assert.Contains(t, report.Title, "CRITICAL Risk Level")
	assert.Contains(t, report.Title, "Critical Issues")
	assert.Equal(t, models.RiskCritical, report.RiskLevel)
	assert.Equal(t, "last 24 hours", report.TimePeriod)
	assert.NotEmpty(t, report.KeyFindings)
	assert.NotEmpty(t, report.Recommendations)
	assert.Equal(t, models.RiskCritical, report.CategoryRisks["security"])
	assert.Equal(t, time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC), report.GeneratedAt)
}

func TestBuildReportQuietSystem(t *testing.T) {
	b := NewBuilder(5)
	report := b.Build(nil, models.RiskLow, timewindow.LastHours(1))

	assert.Contains(t, report.Title, "Normal Operations")
	assert.Empty(t, report.Insights)
	assert.Empty(t, report.KeyFindings)
	assert.Nil(t, report.CategoryRisks)
}
