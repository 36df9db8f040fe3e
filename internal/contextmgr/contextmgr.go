// Package contextmgr gathers logs, metrics, and operational events for an
// analysis window and derives cross-source correlations from them.
package contextmgr

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/athena-ops/athena-stack/internal/cache"
	"github.com/athena-ops/athena-stack/internal/logging"
	"github.com/athena-ops/athena-stack/internal/models"
	"github.com/athena-ops/athena-stack/internal/timewindow"
)

const (
	defaultMaxLogs    = 1000
	defaultMaxMetrics = 500

	defaultLogSelector    = `{job="vector"}`
	defaultMetricSelector = `{job="vector", stream="metrics"}`

	// Metric pairs correlate when |r| exceeds this.
	minCorrelation = 0.7

	// Events and metric samples within this distance of each other are
	// considered temporally linked.
	defaultCorrelationWindow = 30 * time.Minute

	defaultCacheSize = 128
	defaultCacheTTL  = 5 * time.Minute
)

// LogSource fetches raw log entries for a LogQL query and time window.
type LogSource interface {
	QueryRange(ctx context.Context, query string, w timewindow.Window) ([]models.LogEntry, error)
}

// Config controls what the manager fetches and how it correlates.
// CacheSize below zero disables result caching.
type Config struct {
	LogSelector       string
	MetricSelector    string
	MaxLogs           int
	MaxMetrics        int
	CorrelationWindow time.Duration
	CacheSize         int
	CacheTTL          time.Duration
}

func (c *Config) applyDefaults() {
	if c.LogSelector == "" {
		c.LogSelector = defaultLogSelector
	}
	if c.MetricSelector == "" {
		c.MetricSelector = defaultMetricSelector
	}
	if c.MaxLogs <= 0 {
		c.MaxLogs = defaultMaxLogs
	}
	if c.MaxMetrics <= 0 {
		c.MaxMetrics = defaultMaxMetrics
	}
	if c.CorrelationWindow <= 0 {
		c.CorrelationWindow = defaultCorrelationWindow
	}
	if c.CacheSize == 0 {
		c.CacheSize = defaultCacheSize
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = defaultCacheTTL
	}
}

// Context is everything gathered for one analysis.
type Context struct {
	Query        string                   `json:"query"`
	Window       timewindow.Window        `json:"window"`
	Types        []string                 `json:"types"`
	Logs         []models.LogEntry        `json:"logs"`
	Metrics      []models.Metric          `json:"metrics"`
	Events       []models.Event           `json:"events"`
	MetricStats  map[string]MetricSummary `json:"metric_stats,omitempty"`
	EventStats   EventStats               `json:"event_stats"`
	Correlations *Correlations            `json:"correlations,omitempty"`
}

// MetricSummary aggregates one metric series.
type MetricSummary struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
}

// EventStats counts events along several axes.
type EventStats struct {
	Total      int            `json:"total"`
	ByType     map[string]int `json:"by_type,omitempty"`
	BySeverity map[string]int `json:"by_severity,omitempty"`
	BySource   map[string]int `json:"by_source,omitempty"`
	Timeline   map[string]int `json:"timeline,omitempty"`
}

// MetricCorrelation is the Pearson correlation between two metric series
// over their shared sample points.
type MetricCorrelation struct {
	Coefficient float64   `json:"coefficient"`
	SampleSize  int       `json:"sample_size"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// ComponentStats counts log volume and error share for one component label.
type ComponentStats struct {
	Count    int `json:"count"`
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
}

// EventMetricLink records a metric sample that landed close in time to an event.
type EventMetricLink struct {
	EventType   string        `json:"event_type"`
	MetricName  string        `json:"metric_name"`
	TimeDiff    time.Duration `json:"time_diff"`
	MetricValue float64       `json:"metric_value"`
}

// EventSequence is a run of three event types that recurs in the window.
type EventSequence struct {
	Sequence    []string  `json:"sequence"`
	Occurrences int       `json:"occurrences"`
	FirstSeen   time.Time `json:"first_seen"`
}

// EventCluster groups events sharing a type and source.
type EventCluster struct {
	Count          int            `json:"count"`
	FirstSeen      time.Time      `json:"first_seen"`
	LastSeen       time.Time      `json:"last_seen"`
	SeverityCounts map[string]int `json:"severity_counts"`
	Sample         models.Event   `json:"sample"`
}

// Correlations holds everything derived by relating the gathered sources.
type Correlations struct {
	MetricPairs       map[string]MetricCorrelation `json:"metric_pairs,omitempty"`
	ErrorCategories   map[string]int               `json:"error_categories,omitempty"`
	HourlyActivity    map[int]int                  `json:"hourly_activity,omitempty"`
	ComponentActivity map[string]ComponentStats    `json:"component_activity,omitempty"`
	EventMetricLinks  []EventMetricLink            `json:"event_metric_links,omitempty"`
	EventSequences    []EventSequence              `json:"event_sequences,omitempty"`
	EventClusters     map[string]EventCluster      `json:"event_clusters,omitempty"`
}

// Manager fetches analysis context from a log source. Gathered contexts
// are cached by query, window, and requested types.
type Manager struct {
	source LogSource
	cfg    Config
	logger *logging.Logger
	cache  *cache.Memory
}

// New creates a Manager reading from source. A nil logger falls back to the
// process default.
func New(source LogSource, cfg Config, logger *logging.Logger) *Manager {
	cfg.applyDefaults()
	if logger == nil {
		logger = logging.Default()
	}
	m := &Manager{source: source, cfg: cfg, logger: logger}
	if cfg.CacheSize > 0 {
		m.cache = cache.NewMemory(cfg.CacheSize, cfg.CacheTTL)
	}
	return m
}

// CacheStats exposes the gather cache counters.
func (m *Manager) CacheStats() cache.Stats {
	if m.cache == nil {
		return cache.Stats{}
	}
	return m.cache.Stats()
}

// Gather fetches the requested context types in parallel and correlates
// them. A failing source leaves its slice empty rather than failing the
// whole gather; types defaults to logs, metrics, and events.
func (m *Manager) Gather(ctx context.Context, query string, w timewindow.Window, types []string) (*Context, error) {
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("invalid time window: %w", err)
	}
	if len(types) == 0 {
		types = []string{"logs", "metrics", "events"}
	}

	key := gatherKey(query, w, types)
	if m.cache != nil {
		if v, ok := m.cache.Get(key); ok {
			if cached, ok := v.(*Context); ok {
				return cached, nil
			}
		}
	}

	out := &Context{Query: query, Window: w, Types: types}

	var wg sync.WaitGroup
	for _, t := range types {
		switch t {
		case "logs":
			wg.Add(1)
			go func() {
				defer wg.Done()
				entries, err := m.source.QueryRange(ctx, m.cfg.LogSelector, w)
				if err != nil {
					m.logger.WarnContext(ctx, "log context unavailable", "error", err)
					return
				}
				out.Logs = truncate(entries, m.cfg.MaxLogs)
			}()
		case "metrics":
			wg.Add(1)
			go func() {
				defer wg.Done()
				entries, err := m.source.QueryRange(ctx, m.cfg.MetricSelector, w)
				if err != nil {
					m.logger.WarnContext(ctx, "metric context unavailable", "error", err)
					return
				}
				out.Metrics = truncate(parseMetrics(entries), m.cfg.MaxMetrics)
			}()
		case "events":
			wg.Add(1)
			go func() {
				defer wg.Done()
				entries, err := m.source.QueryRange(ctx, buildEventQuery(m.cfg.LogSelector, query), w)
				if err != nil {
					m.logger.WarnContext(ctx, "event context unavailable", "error", err)
					return
				}
				out.Events = parseEvents(entries)
			}()
		}
	}
	wg.Wait()

	out.MetricStats = summarizeMetrics(out.Metrics)
	out.EventStats = summarizeEvents(out.Events)
	out.Correlations = m.correlate(out)

	if m.cache != nil {
		m.cache.Set(key, out)
	}
	return out, nil
}

func gatherKey(query string, w timewindow.Window, types []string) string {
	sorted := make([]string, len(types))
	copy(sorted, types)
	sort.Strings(sorted)
	return fmt.Sprintf("%s|%d|%d|%s", query, w.Start.Unix(), w.End.Unix(), strings.Join(sorted, ","))
}

// buildEventQuery narrows the base selector to operational events, adding a
// filter for meaningful terms of the user's query.
func buildEventQuery(selector, query string) string {
	q := selector + ` |~ "(?i)(error|warning|critical|failed|started|stopped)"`

	var terms []string
	for _, term := range strings.Fields(query) {
		if len(term) > 3 {
			terms = append(terms, term)
		}
	}
	if len(terms) > 0 {
		q += fmt.Sprintf(` |~ "(?i)(%s)"`, strings.Join(terms, "|"))
	}
	return q
}

func truncate[T any](s []T, max int) []T {
	if len(s) > max {
		return s[:max]
	}
	return s
}

// parseMetrics extracts structured samples from log entries whose message
// is a JSON object carrying a numeric value. Entries that do not parse are
// skipped.
func parseMetrics(entries []models.LogEntry) []models.Metric {
	var metrics []models.Metric
	for _, entry := range entries {
		var payload struct {
			Name  string   `json:"name"`
			Value *float64 `json:"value"`
		}
		if err := json.Unmarshal([]byte(entry.Message), &payload); err != nil || payload.Value == nil {
			continue
		}

		name := payload.Name
		if name == "" {
			name = entry.Labels["metric_name"]
		}
		if name == "" {
			name = "unknown"
		}
		metrics = append(metrics, models.Metric{
			Name:      name,
			Value:     *payload.Value,
			Timestamp: entry.Timestamp,
			Labels:    entry.Labels,
		})
	}
	return metrics
}

func parseEvents(entries []models.LogEntry) []models.Event {
	events := make([]models.Event, 0, len(entries))
	for _, entry := range entries {
		source := entry.Labels["source"]
		if source == "" {
			source = "unknown"
		}
		events = append(events, models.Event{
			Type:      eventType(entry.Message),
			Source:    source,
			Message:   entry.Message,
			Severity:  eventSeverity(entry),
			Timestamp: entry.Timestamp,
		})
	}
	return events
}

func eventType(message string) string {
	msg := strings.ToLower(message)
	switch {
	case strings.Contains(msg, "error"):
		return "error"
	case strings.Contains(msg, "warning"):
		return "warning"
	case strings.Contains(msg, "started"):
		return "startup"
	case strings.Contains(msg, "stopped"):
		return "shutdown"
	case strings.Contains(msg, "modified"):
		return "change"
	}
	return "info"
}

func eventSeverity(entry models.LogEntry) string {
	if entry.Level != "" {
		return strings.ToLower(entry.Level)
	}

	msg := strings.ToLower(entry.Message)
	switch {
	case strings.Contains(msg, "critical"), strings.Contains(msg, "fatal"):
		return "critical"
	case strings.Contains(msg, "error"):
		return "error"
	case strings.Contains(msg, "warning"):
		return "warning"
	case strings.Contains(msg, "info"):
		return "info"
	}
	return "unknown"
}

func summarizeMetrics(metrics []models.Metric) map[string]MetricSummary {
	if len(metrics) == 0 {
		return nil
	}

	stats := make(map[string]MetricSummary)
	for _, m := range metrics {
		s, ok := stats[m.Name]
		if !ok {
			s = MetricSummary{Min: m.Value, Max: m.Value}
		}
		s.Count++
		s.Min = math.Min(s.Min, m.Value)
		s.Max = math.Max(s.Max, m.Value)
		s.Avg += m.Value
		stats[m.Name] = s
	}
	for name, s := range stats {
		s.Avg /= float64(s.Count)
		stats[name] = s
	}
	return stats
}

func summarizeEvents(events []models.Event) EventStats {
	stats := EventStats{Total: len(events)}
	if len(events) == 0 {
		return stats
	}

	stats.ByType = make(map[string]int)
	stats.BySeverity = make(map[string]int)
	stats.BySource = make(map[string]int)
	stats.Timeline = make(map[string]int)
	for _, e := range events {
		stats.ByType[e.Type]++
		stats.BySeverity[e.Severity]++
		stats.BySource[e.Source]++
		stats.Timeline[e.Timestamp.UTC().Format("2006-01-02T15")]++
	}
	return stats
}

func (m *Manager) correlate(cx *Context) *Correlations {
	c := &Correlations{}
	if len(cx.Metrics) > 0 {
		c.MetricPairs = correlateMetrics(cx.Metrics)
	}
	if len(cx.Logs) > 0 {
		c.ErrorCategories = categorizeErrors(cx.Logs)
		c.HourlyActivity = hourlyActivity(cx.Logs)
		c.ComponentActivity = componentActivity(cx.Logs)
	}
	if len(cx.Events) > 0 {
		c.EventMetricLinks = linkEventsToMetrics(cx.Events, cx.Metrics, m.cfg.CorrelationWindow)
		c.EventSequences = findEventSequences(cx.Events)
		c.EventClusters = clusterEvents(cx.Events)
	}
	return c
}

// correlateMetrics computes pairwise Pearson correlations between metric
// series, aligned on shared sample timestamps. Only strongly correlated
// pairs are kept.
func correlateMetrics(metrics []models.Metric) map[string]MetricCorrelation {
	series := make(map[string]map[int64]float64)
	for _, m := range metrics {
		if series[m.Name] == nil {
			series[m.Name] = make(map[int64]float64)
		}
		series[m.Name][m.Timestamp.Unix()] = m.Value
	}

	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make(map[string]MetricCorrelation)
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			var shared []int64
			for ts := range series[names[i]] {
				if _, ok := series[names[j]][ts]; ok {
					shared = append(shared, ts)
				}
			}
			if len(shared) < 2 {
				continue
			}
			sort.Slice(shared, func(a, b int) bool { return shared[a] < shared[b] })

			xs := make([]float64, len(shared))
			ys := make([]float64, len(shared))
			for k, ts := range shared {
				xs[k] = series[names[i]][ts]
				ys[k] = series[names[j]][ts]
			}

			r := pearson(xs, ys)
			if math.Abs(r) <= minCorrelation {
				continue
			}
			pairs[names[i]+"_vs_"+names[j]] = MetricCorrelation{
				Coefficient: r,
				SampleSize:  len(shared),
				Start:       time.Unix(shared[0], 0).UTC(),
				End:         time.Unix(shared[len(shared)-1], 0).UTC(),
			}
		}
	}
	if len(pairs) == 0 {
		return nil
	}
	return pairs
}

func pearson(xs, ys []float64) float64 {
	n := float64(len(xs))
	var sumX, sumY, sumXY, sumXX, sumYY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
		sumYY += ys[i] * ys[i]
	}

	denom := math.Sqrt(n*sumXX-sumX*sumX) * math.Sqrt(n*sumYY-sumY*sumY)
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

func categorizeErrors(logs []models.LogEntry) map[string]int {
	categories := make(map[string]int)
	for _, entry := range logs {
		msg := strings.ToLower(entry.Message)
		if !strings.Contains(msg, "error") {
			continue
		}
		categories[errorCategory(msg)]++
	}
	if len(categories) == 0 {
		return nil
	}
	return categories
}

func errorCategory(msg string) string {
	switch {
	case strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "connection"):
		return "connection"
	case strings.Contains(msg, "permission"):
		return "permission"
	case strings.Contains(msg, "memory"):
		return "memory"
	case strings.Contains(msg, "disk"):
		return "disk"
	}
	return "other"
}

func hourlyActivity(logs []models.LogEntry) map[int]int {
	hours := make(map[int]int)
	for _, entry := range logs {
		hours[entry.Timestamp.UTC().Hour()]++
	}
	return hours
}

func componentActivity(logs []models.LogEntry) map[string]ComponentStats {
	components := make(map[string]ComponentStats)
	for _, entry := range logs {
		component := entry.Labels["component"]
		if component == "" {
			component = "unknown"
		}

		stats := components[component]
		stats.Count++
		msg := strings.ToLower(entry.Message)
		if strings.Contains(msg, "error") {
			stats.Errors++
		} else if strings.Contains(msg, "warning") {
			stats.Warnings++
		}
		components[component] = stats
	}
	return components
}

func linkEventsToMetrics(events []models.Event, metrics []models.Metric, window time.Duration) []EventMetricLink {
	var links []EventMetricLink
	for _, m := range metrics {
		for _, e := range events {
			diff := m.Timestamp.Sub(e.Timestamp)
			if diff < 0 {
				diff = -diff
			}
			if diff <= window {
				links = append(links, EventMetricLink{
					EventType:   e.Type,
					MetricName:  m.Name,
					TimeDiff:    diff,
					MetricValue: m.Value,
				})
			}
		}
	}
	return links
}

// findEventSequences looks for runs of three event types that occur more
// than once in the window, ordered by how often they recur.
func findEventSequences(events []models.Event) []EventSequence {
	if len(events) < 3 {
		return nil
	}

	sorted := make([]models.Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	type occurrence struct {
		count     int
		firstSeen time.Time
	}
	seen := make(map[string]occurrence)
	var order []string
	for i := 0; i+2 < len(sorted); i++ {
		key := sorted[i].Type + ">" + sorted[i+1].Type + ">" + sorted[i+2].Type
		occ, ok := seen[key]
		if !ok {
			occ.firstSeen = sorted[i].Timestamp
			order = append(order, key)
		}
		occ.count++
		seen[key] = occ
	}

	var sequences []EventSequence
	for _, key := range order {
		occ := seen[key]
		if occ.count < 2 {
			continue
		}
		sequences = append(sequences, EventSequence{
			Sequence:    strings.Split(key, ">"),
			Occurrences: occ.count,
			FirstSeen:   occ.firstSeen,
		})
	}
	sort.SliceStable(sequences, func(i, j int) bool { return sequences[i].Occurrences > sequences[j].Occurrences })
	return sequences
}

func clusterEvents(events []models.Event) map[string]EventCluster {
	clusters := make(map[string]EventCluster)
	for _, e := range events {
		key := e.Type + "_" + e.Source
		cluster, ok := clusters[key]
		if !ok {
			cluster = EventCluster{
				FirstSeen:      e.Timestamp,
				LastSeen:       e.Timestamp,
				SeverityCounts: make(map[string]int),
				Sample:         e,
			}
		}
		cluster.Count++
		if e.Timestamp.Before(cluster.FirstSeen) {
			cluster.FirstSeen = e.Timestamp
		}
		if e.Timestamp.After(cluster.LastSeen) {
			cluster.LastSeen = e.Timestamp
		}
		cluster.SeverityCounts[e.Severity]++
		clusters[key] = cluster
	}
	return clusters
}
