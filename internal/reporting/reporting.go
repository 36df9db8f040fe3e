// Package reporting turns raw agent findings into insights, key findings,
// and a human-readable report.
package reporting

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/athena-ops/athena-stack/internal/models"
	"github.com/athena-ops/athena-stack/internal/timewindow"
)

const maxKeyFindings = 5

// Report is the assembled outcome of one analysis run.
type Report struct {
	Title           string                      `json:"title"`
	Overview        string                      `json:"overview"`
	KeyFindings     []string                    `json:"key_findings,omitempty"`
	RiskLevel       models.RiskLevel            `json:"risk_level"`
	CategoryRisks   map[string]models.RiskLevel `json:"category_risks,omitempty"`
	Insights        []models.Insight            `json:"insights,omitempty"`
	Recommendations []models.Recommendation     `json:"recommendations,omitempty"`
	TimePeriod      string                      `json:"time_period"`
	GeneratedAt     time.Time                   `json:"generated_at"`
}

// Builder derives reports from agent results.
type Builder struct {
	maxInsights int
	nowFunc     func() time.Time
}

// NewBuilder returns a Builder keeping at most maxInsights insights per
// report. Values below 1 default to 5.
func NewBuilder(maxInsights int) *Builder {
	if maxInsights < 1 {
		maxInsights = 5
	}
	return &Builder{maxInsights: maxInsights, nowFunc: time.Now}
}

// Build assembles a full report from agent results and the overall risk
// level an orchestrator synthesized for them.
func (b *Builder) Build(results []models.AgentResult, overall models.RiskLevel, w timewindow.Window) Report {
	insights := b.GenerateInsights(results)
	return Report{
		Title:           title(overall, insights),
		Overview:        Overview(results, insights, overall),
		KeyFindings:     KeyFindings(insights),
		RiskLevel:       overall,
		CategoryRisks:   categoryRisks(insights),
		Insights:        insights,
		Recommendations: AggregateRecommendations(results),
		TimePeriod:      w.HumanReadable(),
		GeneratedAt:     b.nowFunc(),
	}
}

// GenerateInsights distills agent findings into deduplicated insights,
// ordered by importance and capped at the builder's limit.
func (b *Builder) GenerateInsights(results []models.AgentResult) []models.Insight {
	var insights []models.Insight
	for _, result := range results {
		if result.Err != "" {
			insights = append(insights, models.Insight{
				Category:   "availability",
				Summary:    fmt.Sprintf("Agent %s did not complete", result.Agent),
				Detail:     result.Err,
				Importance: 3,
			})
			continue
		}
		insights = append(insights, securityInsights(result)...)
		insights = append(insights, anomalyInsights(result)...)
	}

	insights = dedupeInsights(insights)
	sort.SliceStable(insights, func(i, j int) bool { return insights[i].Importance > insights[j].Importance })
	if len(insights) > b.maxInsights {
		insights = insights[:b.maxInsights]
	}
	return insights
}

func securityInsights(result models.AgentResult) []models.Insight {
	var critical, high int
	var criticalTypes []string
	for _, issue := range result.Issues {
		switch issue.Severity {
		case models.RiskCritical:
			critical += issue.Count
			criticalTypes = append(criticalTypes, issue.Type)
		case models.RiskHigh:
			high += issue.Count
		}
	}

	var insights []models.Insight
	if critical > 0 {
		insights = append(insights, models.Insight{
			Category:   "security",
			Summary:    fmt.Sprintf("Critical security issues detected: %d", critical),
			Detail:     strings.Join(criticalTypes, ", "),
			Importance: 5,
		})
	}
	if high > 0 {
		insights = append(insights, models.Insight{
			Category:   "security",
			Summary:    fmt.Sprintf("High severity security issues detected: %d", high),
			Importance: 4,
		})
	}
	return insights
}

func anomalyInsights(result models.AgentResult) []models.Insight {
	var insights []models.Insight
	for _, a := range result.Anomalies {
		importance := 3
		switch a.Severity {
		case models.RiskCritical:
			importance = 5
		case models.RiskHigh:
			importance = 4
		}
		insights = append(insights, models.Insight{
			Category:   resourceCategory(a.MetricName),
			Summary:    fmt.Sprintf("Anomaly in %s: %.1f (z-score %.1f)", a.MetricName, a.Value, a.ZScore),
			Detail:     a.Description,
			Importance: importance,
		})
	}
	return insights
}

func resourceCategory(metricName string) string {
	name := strings.ToLower(metricName)
	switch {
	case strings.Contains(name, "cpu"):
		return "performance"
	case strings.Contains(name, "mem"):
		return "resource"
	case strings.Contains(name, "disk"), strings.Contains(name, "storage"):
		return "resource"
	case strings.Contains(name, "network"):
		return "resource"
	}
	return "trend"
}

func dedupeInsights(insights []models.Insight) []models.Insight {
	seen := make(map[string]bool)
	var out []models.Insight
	for _, in := range insights {
		key := strings.Join(strings.Fields(strings.ToLower(in.Summary)), " ")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, in)
	}
	return out
}

// KeyFindings formats the most important insights as tagged one-liners.
func KeyFindings(insights []models.Insight) []string {
	var important []models.Insight
	for _, in := range insights {
		if in.Importance >= 3 {
			important = append(important, in)
		}
	}
	sort.SliceStable(important, func(i, j int) bool { return important[i].Importance > important[j].Importance })

	var findings []string
	for _, in := range important {
		if len(findings) == maxKeyFindings {
			break
		}
		findings = append(findings, fmt.Sprintf("[%s] %s", importanceMarker(in.Importance), in.Summary))
	}
	return findings
}

func importanceMarker(importance int) string {
	switch {
	case importance >= 5:
		return "CRITICAL"
	case importance == 4:
		return "HIGH"
	}
	return "MEDIUM"
}

// Overview produces a one-paragraph summary of what the analysis found.
func Overview(results []models.AgentResult, insights []models.Insight, overall models.RiskLevel) string {
	var anomalies, critical int
	for _, result := range results {
		anomalies += len(result.Anomalies)
	}
	for _, in := range insights {
		if in.Importance >= 4 {
			critical++
		}
	}
	return fmt.Sprintf(
		"Analysis detected %d anomalies and generated %d insights, with %d critical findings. Overall risk level: %s.",
		anomalies, len(insights), critical, strings.ToUpper(string(overall)),
	)
}

// AggregateRecommendations merges agent recommendations, dropping
// duplicates and ordering by priority.
func AggregateRecommendations(results []models.AgentResult) []models.Recommendation {
	seen := make(map[string]bool)
	var recs []models.Recommendation
	for _, result := range results {
		for _, rec := range result.Recommendations {
			if seen[rec.Action] {
				continue
			}
			seen[rec.Action] = true
			recs = append(recs, rec)
		}
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return priorityRank(recs[i].Priority) > priorityRank(recs[j].Priority)
	})
	return recs
}

func priorityRank(r models.RiskLevel) int {
	switch r {
	case models.RiskCritical:
		return 4
	case models.RiskHigh:
		return 3
	case models.RiskMedium:
		return 2
	case models.RiskLow:
		return 1
	}
	return 0
}

func categoryRisks(insights []models.Insight) map[string]models.RiskLevel {
	if len(insights) == 0 {
		return nil
	}

	sums := make(map[string]int)
	counts := make(map[string]int)
	for _, in := range insights {
		sums[in.Category] += in.Importance
		counts[in.Category]++
	}

	risks := make(map[string]models.RiskLevel, len(sums))
	for category, sum := range sums {
		avg := float64(sum) / float64(counts[category])
		switch {
		case avg >= 4.5:
			risks[category] = models.RiskCritical
		case avg >= 3.5:
			risks[category] = models.RiskHigh
		case avg >= 2.5:
			risks[category] = models.RiskMedium
		default:
			risks[category] = models.RiskLow
		}
	}
	return risks
}

func title(overall models.RiskLevel, insights []models.Insight) string {
	level := strings.ToUpper(string(overall))
	var critical int
	for _, in := range insights {
		if in.Importance >= 4 {
			critical++
		}
	}

	switch {
	case critical > 0:
		return fmt.Sprintf("System Analysis Report - %s Risk Level (%d Critical Issues)", level, critical)
	case overall == models.RiskHigh || overall == models.RiskCritical:
		return fmt.Sprintf("System Analysis Report - %s Risk Level", level)
	}
	return fmt.Sprintf("System Analysis Report - %s Risk Level - Normal Operations", level)
}
