package agents

import (
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/athena-ops/athena-stack/internal/cache"
	"github.com/athena-ops/athena-stack/internal/models"
)

// errorPatterns classifies log messages into known failure categories.
var errorPatterns = map[string]*regexp.Regexp{
	"connection": regexp.MustCompile(`(?i)(connection|timeout|refused|unreachable)`),
	"database":   regexp.MustCompile(`(?i)(database|db|sql|query).*error`),
	"memory":     regexp.MustCompile(`(?i)(memory|heap|stack|overflow)`),
	"disk":       regexp.MustCompile(`(?i)(disk|storage|space|volume).*(full|error)`),
	"api":        regexp.MustCompile(`(?i)(api|http|request).*(error|failed|timeout)`),
	"config":     regexp.MustCompile(`(?i)(config|configuration|setting).*(invalid|missing|error)`),
}

// criticalCategories weigh double in the risk score: failures here tend to
// cascade into everything else.
var criticalCategories = []string{"database", "memory", "disk"}

var errorLevelRe = regexp.MustCompile(`(?i)\b(error|fatal|panic|critical)\b`)

// LogTrends describes where and when log activity concentrated in the
// analysis window.
type LogTrends struct {
	HourlyDistribution    map[int]int    `json:"hourly_distribution"`
	ComponentDistribution map[string]int `json:"component_distribution"`
	SeverityDistribution  map[string]int `json:"severity_distribution"`
	UniqueComponents      int            `json:"unique_components"`
	TimeSpan              time.Duration  `json:"time_span"`
}

// LogAgent finds failure patterns in log messages and rates their risk.
// Results are cached per query and window.
type LogAgent struct {
	results *cache.Memory
}

// NewLogAgent creates a log analysis agent.
func NewLogAgent() *LogAgent {
	return &LogAgent{results: cache.NewMemory(64, 5*time.Minute)}
}

func (a *LogAgent) Name() string { return "logs" }

// CacheStats exposes the result cache counters.
func (a *LogAgent) CacheStats() cache.Stats { return a.results.Stats() }

// Analyze classifies log entries into failure categories, scores the
// overall risk from category counts and the error rate, and summarizes
// activity trends across components and time.
func (a *LogAgent) Analyze(ctx context.Context, in Input) (models.AgentResult, error) {
	if err := ctx.Err(); err != nil {
		return models.AgentResult{}, err
	}

	key := logCacheKey(in)
	if v, ok := a.results.Get(key); ok {
		if cached, ok := v.(models.AgentResult); ok {
			return cached, nil
		}
	}

	result := models.AgentResult{Agent: a.Name(), RiskLevel: models.RiskLow}

	if len(in.Logs) == 0 {
		result.Summary = "No log entries found in the analysis window."
		return result, nil
	}

	patterns := classifyLogs(in.Logs)
	errorRate := computeErrorRate(in.Logs)
	score := logRiskScore(patterns, errorRate)
	result.RiskLevel = logRiskLevel(score)

	result.Details = map[string]any{
		"total_entries":      len(in.Logs),
		"error_rate":         errorRate,
		"error_rate_percent": errorRate * 100,
		"severity_counts":    severityCounts(in.Logs),
		"pattern_counts":     patternCounts(patterns),
		"risk_score":         score,
		"trends":             analyzeLogTrends(in.Logs),
	}

	result.Summary = summarizePatterns(patterns, errorRate, len(in.Logs))
	result.Recommendations = logRecommendations(patterns, errorRate)

	a.results.Set(key, result)
	return result, nil
}

// logCacheKey fingerprints the query, window, and entry contents so two
// inputs of equal size but different logs never share a cache slot.
func logCacheKey(in Input) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d|%d|%d", in.Query, in.Window.Start.Unix(), in.Window.End.Unix(), len(in.Logs))
	for _, entry := range in.Logs {
		io.WriteString(h, entry.Message)
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

// analyzeLogTrends aggregates entry volume by hour, component, and
// severity over the sampled span.
func analyzeLogTrends(logs []models.LogEntry) LogTrends {
	trends := LogTrends{
		HourlyDistribution:    make(map[int]int),
		ComponentDistribution: make(map[string]int),
		SeverityDistribution:  make(map[string]int),
	}

	earliest, latest := logs[0].Timestamp, logs[0].Timestamp
	for _, entry := range logs {
		trends.HourlyDistribution[entry.Timestamp.UTC().Hour()]++
		trends.ComponentDistribution[componentOf(entry)]++
		trends.SeverityDistribution[severityOf(entry)]++

		if entry.Timestamp.Before(earliest) {
			earliest = entry.Timestamp
		}
		if entry.Timestamp.After(latest) {
			latest = entry.Timestamp
		}
	}
	trends.UniqueComponents = len(trends.ComponentDistribution)
	trends.TimeSpan = latest.Sub(earliest)
	return trends
}

func componentOf(entry models.LogEntry) string {
	if c := entry.Labels["component"]; c != "" {
		return c
	}
	if s := entry.Labels["service"]; s != "" {
		return s
	}
	return "unknown"
}

func severityOf(entry models.LogEntry) string {
	if entry.Level != "" {
		return strings.ToLower(entry.Level)
	}
	if errorLevelRe.MatchString(entry.Message) {
		return "error"
	}
	return "unknown"
}

func severityCounts(logs []models.LogEntry) map[string]int {
	counts := make(map[string]int)
	for _, entry := range logs {
		counts[severityOf(entry)]++
	}
	return counts
}

// classifyLogs returns matched messages grouped by category.
func classifyLogs(logs []models.LogEntry) map[string][]string {
	patterns := make(map[string][]string)
	for _, entry := range logs {
		for name, re := range errorPatterns {
			if re.MatchString(entry.Message) {
				patterns[name] = append(patterns[name], entry.Message)
			}
		}
	}
	return patterns
}

// computeErrorRate returns the fraction of entries at error severity.
// The level field wins when set; otherwise the message itself is scanned.
func computeErrorRate(logs []models.LogEntry) float64 {
	if len(logs) == 0 {
		return 0
	}

	errors := 0
	for _, entry := range logs {
		if entry.Level != "" {
			if errorLevelRe.MatchString(entry.Level) {
				errors++
			}
			continue
		}
		if errorLevelRe.MatchString(entry.Message) {
			errors++
		}
	}
	return float64(errors) / float64(len(logs))
}

// logRiskScore combines critical category matches with error-rate bands.
func logRiskScore(patterns map[string][]string, errorRate float64) int {
	score := 0
	for _, cat := range criticalCategories {
		score += len(patterns[cat]) * 2
	}

	switch {
	case errorRate > 0.30:
		score += 3
	case errorRate > 0.15:
		score += 2
	case errorRate > 0.05:
		score += 1
	}
	return score
}

func logRiskLevel(score int) models.RiskLevel {
	switch {
	case score >= 7:
		return models.RiskCritical
	case score >= 4:
		return models.RiskHigh
	case score >= 2:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

func patternCounts(patterns map[string][]string) map[string]int {
	counts := make(map[string]int, len(patterns))
	for name, matches := range patterns {
		counts[name] = len(matches)
	}
	return counts
}

func summarizePatterns(patterns map[string][]string, errorRate float64, total int) string {
	if len(patterns) == 0 {
		return fmt.Sprintf("Scanned %d log entries; no known failure patterns detected (error rate %.1f%%).", total, errorRate*100)
	}

	names := make([]string, 0, len(patterns))
	for name := range patterns {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(patterns[names[i]]) != len(patterns[names[j]]) {
			return len(patterns[names[i]]) > len(patterns[names[j]])
		}
		return names[i] < names[j]
	})

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s (%d)", name, len(patterns[name])))
	}

	return fmt.Sprintf("Scanned %d log entries; failure patterns: %s; error rate %.1f%%.",
		total, strings.Join(parts, ", "), errorRate*100)
}

func logRecommendations(patterns map[string][]string, errorRate float64) []models.Recommendation {
	var recs []models.Recommendation

	if len(patterns["connection"]) > 0 {
		recs = append(recs, models.Recommendation{
			Action:   "Check network routes and downstream service health",
			Reason:   fmt.Sprintf("%d connection failures detected", len(patterns["connection"])),
			Priority: models.RiskMedium,
		})
	}
	if len(patterns["database"]) > 0 {
		recs = append(recs, models.Recommendation{
			Action:   "Inspect database connection pool and slow query log",
			Reason:   fmt.Sprintf("%d database errors detected", len(patterns["database"])),
			Priority: models.RiskHigh,
		})
	}
	if len(patterns["memory"]) > 0 {
		recs = append(recs, models.Recommendation{
			Action:   "Profile memory usage of affected services",
			Reason:   fmt.Sprintf("%d memory-related errors detected", len(patterns["memory"])),
			Priority: models.RiskHigh,
		})
	}
	if len(patterns["disk"]) > 0 {
		recs = append(recs, models.Recommendation{
			Action:   "Free disk space or expand volumes on affected hosts",
			Reason:   fmt.Sprintf("%d disk errors detected", len(patterns["disk"])),
			Priority: models.RiskHigh,
		})
	}
	if errorRate > 0.30 {
		recs = append(recs, models.Recommendation{
			Action:   "Treat as an active incident: over 30% of entries are errors",
			Reason:   fmt.Sprintf("error rate %.1f%%", errorRate*100),
			Priority: models.RiskCritical,
		})
	}
	return recs
}
