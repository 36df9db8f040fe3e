// Package service coordinates the full analysis pipeline: cache lookup,
// intent classification, context gathering, retrieval, agent orchestration,
// summary generation, and persistence.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/athena-ops/athena-stack/internal/agents"
	"github.com/athena-ops/athena-stack/internal/cache"
	"github.com/athena-ops/athena-stack/internal/contextmgr"
	"github.com/athena-ops/athena-stack/internal/llm"
	"github.com/athena-ops/athena-stack/internal/logging"
	"github.com/athena-ops/athena-stack/internal/messaging"
	"github.com/athena-ops/athena-stack/internal/metrics"
	"github.com/athena-ops/athena-stack/internal/models"
	"github.com/athena-ops/athena-stack/internal/nlu"
	"github.com/athena-ops/athena-stack/internal/orchestrator"
	"github.com/athena-ops/athena-stack/internal/rag"
	"github.com/athena-ops/athena-stack/internal/reporting"
	"github.com/athena-ops/athena-stack/internal/repository"
	"github.com/athena-ops/athena-stack/internal/timewindow"
)

var ErrEmptyQuery = errors.New("query must not be empty")

const (
	defaultWindowHours = 24

	retrievalCacheSize = 256
	retrievalCacheTTL  = 5 * time.Minute
)

// combinedAgents is the agent set the combined analysis endpoint runs when
// the request does not name any.
var combinedAgents = []string{"logs", "security", "performance"}

// IntentEngine classifies a free-form query.
type IntentEngine interface {
	Understand(ctx context.Context, query string) nlu.Intent
	Intents() map[string][]string
}

// ContextGatherer fetches logs, metrics, and events for a window.
type ContextGatherer interface {
	Gather(ctx context.Context, query string, w timewindow.Window, types []string) (*contextmgr.Context, error)
}

// Deps carries the coordinator's collaborators. Retrievers, repository,
// cache, and events may be nil; the pipeline degrades instead of failing.
type Deps struct {
	NLU             IntentEngine
	Contexts        ContextGatherer
	LogRetriever    rag.Retriever
	MetricRetriever rag.Retriever
	Orchestrator    *orchestrator.Orchestrator
	Generator       llm.Generator
	Prompts         *rag.PromptBuilder
	Reports         *reporting.Builder
	Repository      repository.Repository
	Cache           *cache.AnalysisCache
	Events          messaging.Publisher
	Logger          *logging.Logger
	RetrievalK      int
}

// Coordinator runs analyses end to end.
type Coordinator struct {
	deps      Deps
	retrieval *rag.ContextProcessor
	nowFunc   func() time.Time
}

// NewCoordinator wires the pipeline together.
func NewCoordinator(deps Deps) *Coordinator {
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.Prompts == nil {
		deps.Prompts = rag.NewPromptBuilder()
	}
	if deps.Reports == nil {
		deps.Reports = reporting.NewBuilder(5)
	}
	if deps.Events == nil {
		deps.Events = messaging.NopPublisher{}
	}
	if deps.RetrievalK < 1 {
		deps.RetrievalK = 5
	}

	c := &Coordinator{deps: deps, nowFunc: time.Now}
	if deps.LogRetriever != nil || deps.MetricRetriever != nil {
		c.retrieval = rag.NewContextProcessor(deps.LogRetriever, deps.MetricRetriever, retrievalCacheSize, retrievalCacheTTL)
	}
	return c
}

// Analyze runs the full pipeline for one request.
func (c *Coordinator) Analyze(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return nil, ErrEmptyQuery
	}

	if c.deps.Cache != nil {
		if cached, err := c.deps.Cache.Get(ctx, req); err != nil {
			c.deps.Logger.WarnContext(ctx, "cache lookup failed", "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	started := c.nowFunc()
	intent := c.deps.NLU.Understand(ctx, req.Query)
	window := c.resolveWindow(req, intent)

	cx, err := c.deps.Contexts.Gather(ctx, req.Query, window, nil)
	if err != nil {
		metrics.AnalysesTotal.WithLabelValues(intent.Category, "error").Inc()
		return nil, fmt.Errorf("gathering context: %w", err)
	}

	docs := c.retrieve(ctx, req.Query, window)

	in := agents.Input{
		Query:     req.Query,
		Window:    window,
		Logs:      cx.Logs,
		Metrics:   cx.Metrics,
		Documents: docs,
	}

	var results []models.AgentResult
	if len(req.AnalysisTypes) > 0 {
		results, err = c.deps.Orchestrator.RunAgents(ctx, req.AnalysisTypes, in)
	} else {
		results, err = c.deps.Orchestrator.Run(ctx, intent, in)
	}
	if err != nil {
		metrics.AnalysesTotal.WithLabelValues(intent.Category, "error").Inc()
		c.publish(ctx, messaging.SubjectAnalysisFailed, map[string]string{
			"query":  req.Query,
			"intent": intent.Category,
			"error":  err.Error(),
		})
		return nil, fmt.Errorf("running agents: %w", err)
	}

	risk, findings := orchestrator.Synthesize(results)
	summary := c.summarize(ctx, req.Query, window, docs, findings)
	report := c.deps.Reports.Build(results, risk, window)

	result := &models.AnalysisResult{
		ID:              uuid.NewString(),
		Query:           req.Query,
		Intent:          intent.Category,
		RiskLevel:       risk,
		Summary:         summary,
		AgentResults:    results,
		Insights:        report.Insights,
		Recommendations: report.Recommendations,
		DurationMS:      c.nowFunc().Sub(started).Milliseconds(),
		CreatedAt:       started.UTC(),
	}

	c.persist(ctx, result)
	c.publish(ctx, messaging.SubjectAnalysisCompleted, map[string]any{
		"id":         result.ID,
		"intent":     result.Intent,
		"risk_level": result.RiskLevel,
	})
	if c.deps.Cache != nil {
		if err := c.deps.Cache.Set(ctx, req, result); err != nil {
			c.deps.Logger.WarnContext(ctx, "cache store failed", "error", err)
		}
	}

	metrics.AnalysesTotal.WithLabelValues(intent.Category, "success").Inc()
	metrics.AnalysisDuration.WithLabelValues(intent.Category).Observe(float64(result.DurationMS) / 1000)
	return result, nil
}

// resolveWindow picks the analysis window. An explicit hour count in the
// request wins; otherwise a time period extracted from the query ("24h",
// "7d") is honored, falling back to the default window.
func (c *Coordinator) resolveWindow(req models.AnalysisRequest, intent nlu.Intent) timewindow.Window {
	if req.TimeWindowHours >= 1 {
		return timewindow.LastHours(req.TimeWindowHours)
	}
	if period, ok := intent.Entities["time_period"]; ok {
		if w, err := timewindow.Range(period, time.Time{}, time.Time{}); err == nil {
			return w
		}
	}
	return timewindow.LastHours(defaultWindowHours)
}

// AnalyzeCombined runs a fixed multi-agent sweep. Requests that do not name
// analysis types get the log, security, and performance agents.
func (c *Coordinator) AnalyzeCombined(ctx context.Context, req models.AnalysisRequest) (*models.AnalysisResult, error) {
	if len(req.AnalysisTypes) == 0 {
		req.AnalysisTypes = combinedAgents
	}
	return c.Analyze(ctx, req)
}

// Recommendations runs an analysis and returns only its recommendations.
func (c *Coordinator) Recommendations(ctx context.Context, req models.AnalysisRequest) ([]models.Recommendation, error) {
	result, err := c.Analyze(ctx, req)
	if err != nil {
		return nil, err
	}
	return result.Recommendations, nil
}

// Intents exposes the intent corpus for the API.
func (c *Coordinator) Intents() map[string][]string {
	return c.deps.NLU.Intents()
}

// Components reports which optional pipeline components are wired, for the
// health endpoint.
func (c *Coordinator) Components() map[string]string {
	status := func(ok bool) string {
		if ok {
			return "configured"
		}
		return "disabled"
	}
	_, nopEvents := c.deps.Events.(messaging.NopPublisher)
	return map[string]string{
		"repository":       status(c.deps.Repository != nil),
		"cache":            status(c.deps.Cache != nil),
		"events":           status(!nopEvents),
		"generator":        status(c.deps.Generator != nil),
		"log_retriever":    status(c.deps.LogRetriever != nil),
		"metric_retriever": status(c.deps.MetricRetriever != nil),
	}
}

// RecentAnalyses lists the newest stored analyses.
func (c *Coordinator) RecentAnalyses(ctx context.Context, limit int) ([]*models.AnalysisResult, error) {
	if c.deps.Repository == nil {
		return nil, nil
	}
	return c.deps.Repository.GetRecentAnalyses(ctx, limit)
}

// AnalysisByID fetches one stored analysis.
func (c *Coordinator) AnalysisByID(ctx context.Context, id string) (*models.AnalysisResult, error) {
	if c.deps.Repository == nil {
		return nil, repository.ErrAnalysisNotFound
	}
	return c.deps.Repository.GetAnalysisByID(ctx, id)
}

// RiskTrends aggregates stored analyses by day.
func (c *Coordinator) RiskTrends(ctx context.Context, days int) ([]repository.TrendPoint, error) {
	if c.deps.Repository == nil {
		return nil, nil
	}
	return c.deps.Repository.RiskTrends(ctx, days)
}

func (c *Coordinator) retrieve(ctx context.Context, query string, w timewindow.Window) []models.Document {
	if c.retrieval == nil {
		return nil
	}
	combined, err := c.retrieval.Combine(ctx, query, w, c.deps.RetrievalK)
	if err != nil {
		c.deps.Logger.WarnContext(ctx, "retrieval failed", "error", err)
		return nil
	}
	return combined.Documents
}

// summarize asks the LLM for a narrative answer, folding the structured
// agent findings into the prompt context. It never fails; the findings text
// stands in when generation is unavailable.
func (c *Coordinator) summarize(ctx context.Context, query string, w timewindow.Window, docs []models.Document, findings string) string {
	if c.deps.Generator == nil {
		return findings
	}

	promptDocs := docs
	if findings != "" {
		promptDocs = append([]models.Document{{Content: "Agent findings: " + findings, Relevance: 1}}, docs...)
	}

	prompt := c.deps.Prompts.Build(query, w, promptDocs)
	fallback := c.deps.Prompts.BuildFallback(query, promptDocs)
	summary := llm.GenerateWithFallback(ctx, c.deps.Generator, prompt, fallback)
	if summary == llm.FallbackResponse && findings != "" {
		return findings
	}
	return summary
}

func (c *Coordinator) persist(ctx context.Context, result *models.AnalysisResult) {
	if c.deps.Repository == nil {
		return
	}
	if err := c.deps.Repository.SaveAnalysis(ctx, result); err != nil {
		c.deps.Logger.ErrorContext(ctx, "failed to persist analysis", "id", result.ID, "error", err)
	}
}

func (c *Coordinator) publish(ctx context.Context, subject string, payload any) {
	if err := c.deps.Events.PublishJSON(ctx, subject, payload); err != nil {
		c.deps.Logger.WarnContext(ctx, "event publish failed", "subject", subject, "error", err)
	}
}
