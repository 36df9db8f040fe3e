package models

import "time"

// RiskLevel classifies the overall severity of an analysis outcome.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// rank orders risk levels for comparison. Unknown levels rank lowest.
func (r RiskLevel) rank() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	case RiskCritical:
		return 4
	default:
		return 0
	}
}

// Max returns the more severe of two risk levels.
func (r RiskLevel) Max(other RiskLevel) RiskLevel {
	if other.rank() > r.rank() {
		return other
	}
	return r
}

// Valid reports whether r is one of the defined risk levels.
func (r RiskLevel) Valid() bool {
	return r.rank() > 0
}

// LogEntry is a single log line fetched from the log store.
type LogEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Message   string            `json:"message"`
	Level     string            `json:"level,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// Metric is a single metric sample.
type Metric struct {
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Timestamp time.Time         `json:"timestamp"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// Event is a discrete occurrence observed in the environment, such as a
// deployment, restart, or alert firing.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// SecurityIssue is a single detected security concern.
type SecurityIssue struct {
	Type        string    `json:"type"`
	Severity    RiskLevel `json:"severity"`
	Description string    `json:"description"`
	Evidence    string    `json:"evidence,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
	Count       int       `json:"count"`
}

// Anomaly is a statistically unusual observation in a metric series.
type Anomaly struct {
	MetricName  string    `json:"metric_name"`
	Value       float64   `json:"value"`
	ZScore      float64   `json:"z_score"`
	Severity    RiskLevel `json:"severity"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
}

// Insight is a distilled observation produced by the reporting layer.
// Importance ranges 1 (informational) to 5 (urgent).
type Insight struct {
	Category   string `json:"category"`
	Summary    string `json:"summary"`
	Detail     string `json:"detail,omitempty"`
	Importance int    `json:"importance"`
}

// Recommendation is an actionable suggestion derived from analysis results.
type Recommendation struct {
	Action   string    `json:"action"`
	Reason   string    `json:"reason"`
	Priority RiskLevel `json:"priority"`
}

// Document is a retrievable unit of text with metadata, as stored in the
// vector store.
type Document struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Relevance float64           `json:"relevance"`
}

// AnalysisRequest is a user query to analyze, optionally scoped to a time
// window and restricted to specific analysis types.
type AnalysisRequest struct {
	Query           string   `json:"query"`
	TimeWindowHours int      `json:"time_window_hours,omitempty"`
	AnalysisTypes   []string `json:"analysis_types,omitempty"`
}

// AgentResult is the output of a single agent run.
type AgentResult struct {
	Agent           string           `json:"agent"`
	Summary         string           `json:"summary"`
	RiskLevel       RiskLevel        `json:"risk_level"`
	Issues          []SecurityIssue  `json:"issues,omitempty"`
	Anomalies       []Anomaly        `json:"anomalies,omitempty"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
	Details         map[string]any   `json:"details,omitempty"`
	Err             string           `json:"error,omitempty"`
}

// AnalysisResult is the synthesized outcome of a full analysis run.
type AnalysisResult struct {
	ID              string           `json:"id"`
	Query           string           `json:"query"`
	Intent          string           `json:"intent"`
	RiskLevel       RiskLevel        `json:"risk_level"`
	Summary         string           `json:"summary"`
	AgentResults    []AgentResult    `json:"agent_results"`
	Insights        []Insight        `json:"insights,omitempty"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
	DurationMS      int64            `json:"duration_ms"`
	CreatedAt       time.Time        `json:"created_at"`
	Cached          bool             `json:"cached,omitempty"`
}
