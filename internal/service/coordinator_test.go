package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athena-ops/athena-stack/internal/agents"
	"github.com/athena-ops/athena-stack/internal/contextmgr"
	"github.com/athena-ops/athena-stack/internal/models"
	"github.com/athena-ops/athena-stack/internal/nlu"
	"github.com/athena-ops/athena-stack/internal/orchestrator"
	"github.com/athena-ops/athena-stack/internal/repository"
	"github.com/athena-ops/athena-stack/internal/timewindow"
)

type stubNLU struct {
	intent nlu.Intent
}

func (s *stubNLU) Understand(context.Context, string) nlu.Intent { return s.intent }
func (s *stubNLU) Intents() map[string][]string {
	return map[string][]string{"log_analysis": {"show me errors"}}
}

type stubGatherer struct {
	cx  *contextmgr.Context
	err error
}

func (s *stubGatherer) Gather(_ context.Context, query string, w timewindow.Window, _ []string) (*contextmgr.Context, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.cx != nil {
		return s.cx, nil
	}
	return &contextmgr.Context{Query: query, Window: w}, nil
}

type stubAgent struct {
	name   string
	result models.AgentResult
	err    error
}

func (s *stubAgent) Name() string { return s.name }
func (s *stubAgent) Analyze(context.Context, agents.Input) (models.AgentResult, error) {
	if s.err != nil {
		return models.AgentResult{}, s.err
	}
	return s.result, nil
}

type stubGenerator struct {
	output string
	err    error
}

func (s *stubGenerator) Generate(context.Context, string) (string, error) {
	return s.output, s.err
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (r *recordingPublisher) Publish(context.Context, string, []byte) error { return nil }
func (r *recordingPublisher) PublishJSON(_ context.Context, subject string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjects = append(r.subjects, subject)
	return nil
}
func (r *recordingPublisher) Close() error { return nil }

func testCoordinator(t *testing.T, agentNames ...string) (*Coordinator, *repository.MemoryRepository, *recordingPublisher) {
	t.Helper()

	if len(agentNames) == 0 {
		agentNames = []string{"logs", "metrics"}
	}
	orch := orchestrator.New(time.Second, nil)
	for _, name := range agentNames {
		orch.Register(name, &stubAgent{
			name: name,
			result: models.AgentResult{
				Summary:   name + " findings",
				RiskLevel: models.RiskMedium,
				Recommendations: []models.Recommendation{
					{Action: "check " + name, Priority: models.RiskMedium},
				},
			},
		})
	}

	repo := repository.NewMemoryRepository()
	events := &recordingPublisher{}
	c := NewCoordinator(Deps{
		NLU:          &stubNLU{intent: nlu.Intent{Category: "log_analysis"}},
		Contexts:     &stubGatherer{},
		Orchestrator: orch,
		Generator:    &stubGenerator{output: "Narrative answer."},
		Repository:   repo,
		Events:       events,
	})
	return c, repo, events
}

func TestAnalyzePipeline(t *testing.T) {
	c, repo, events := testCoordinator(t)

	result, err := c.Analyze(context.Background(), models.AnalysisRequest{Query: "why are there errors"})
	require.NoError(t, err)

	assert.NotEmpty(t, result.ID)
	assert.Equal(t, "log_analysis", result.Intent)
	assert.Equal(t, models.RiskMedium, result.RiskLevel)
	assert.Equal(t, "Narrative answer.", result.Summary)
	require.Len(t, result.AgentResults, 1)
	assert.Equal(t, "logs", result.AgentResults[0].Agent)
	assert.NotEmpty(t, result.Recommendations)

	stored, err := repo.GetAnalysisByID(context.Background(), result.ID)
	require.NoError(t, err)
	assert.Equal(t, result.Query, stored.Query)

	require.Len(t, events.subjects, 1)
	assert.Equal(t, "athena.analysis.completed", events.subjects[0])
}

func TestResolveWindow(t *testing.T) {
	c, _, _ := testCoordinator(t)

	t.Run("explicit hours win", func(t *testing.T) {
		w := c.resolveWindow(
			models.AnalysisRequest{Query: "errors", TimeWindowHours: 6},
			nlu.Intent{Entities: map[string]string{"time_period": "7d"}},
		)
		assert.Equal(t, 6*time.Hour, w.End.Sub(w.Start))
	})

	t.Run("time period entity", func(t *testing.T) {
		w := c.resolveWindow(
			models.AnalysisRequest{Query: "errors last week"},
			nlu.Intent{Entities: map[string]string{"time_period": "7d"}},
		)
		assert.Equal(t, 7*24*time.Hour, w.End.Sub(w.Start))
	})

	t.Run("unparseable period falls back", func(t *testing.T) {
		w := c.resolveWindow(
			models.AnalysisRequest{Query: "errors"},
			nlu.Intent{Entities: map[string]string{"time_period": "fortnight"}},
		)
		assert.Equal(t, 24*time.Hour, w.End.Sub(w.Start))
	})

	t.Run("default window", func(t *testing.T) {
		w := c.resolveWindow(models.AnalysisRequest{Query: "errors"}, nlu.Intent{})
		assert.Equal(t, 24*time.Hour, w.End.Sub(w.Start))
	})
}

func TestAnalyzeEmptyQuery(t *testing.T) {
	c, _, _ := testCoordinator(t)

	_, err := c.Analyze(context.Background(), models.AnalysisRequest{Query: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestAnalyzeExplicitTypes(t *testing.T) {
	c, _, _ := testCoordinator(t, "logs", "metrics", "security")

	result, err := c.Analyze(context.Background(), models.AnalysisRequest{
		Query:         "full sweep",
		AnalysisTypes: []string{"security"},
	})
	require.NoError(t, err)
	require.Len(t, result.AgentResults, 1)
	assert.Equal(t, "security", result.AgentResults[0].Agent)
}

func TestAnalyzeCombinedDefaults(t *testing.T) {
	c, _, _ := testCoordinator(t, "logs", "security", "performance", "metrics")

	result, err := c.AnalyzeCombined(context.Background(), models.AnalysisRequest{Query: "overnight sweep"})
	require.NoError(t, err)
	require.Len(t, result.AgentResults, 3)

	var names []string
	for _, r := range result.AgentResults {
		names = append(names, r.Agent)
	}
	assert.ElementsMatch(t, []string{"logs", "security", "performance"}, names)
}

func TestAnalyzeNoRegisteredAgents(t *testing.T) {
	c, _, events := testCoordinator(t, "metrics")

	_, err := c.Analyze(context.Background(), models.AnalysisRequest{
		Query:         "sweep",
		AnalysisTypes: []string{"nonexistent"},
	})
	require.Error(t, err)
	require.Len(t, events.subjects, 1)
	assert.Equal(t, "athena.analysis.failed", events.subjects[0])
}

func TestAnalyzeGatherFailure(t *testing.T) {
	c, _, _ := testCoordinator(t)
	c.deps.Contexts = &stubGatherer{err: errors.New("loki down")}

	_, err := c.Analyze(context.Background(), models.AnalysisRequest{Query: "q"})
	assert.ErrorContains(t, err, "gathering context")
}

func TestSummaryFallsBackToFindings(t *testing.T) {
	c, _, _ := testCoordinator(t)
	c.deps.Generator = &stubGenerator{err: errors.New("model offline")}

	result, err := c.Analyze(context.Background(), models.AnalysisRequest{Query: "why errors"})
	require.NoError(t, err)
	assert.Equal(t, "[logs] logs findings", result.Summary)
}

func TestRecommendations(t *testing.T) {
	c, _, _ := testCoordinator(t)

	recs, err := c.Recommendations(context.Background(), models.AnalysisRequest{Query: "what should I fix"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "check logs", recs[0].Action)
}

func TestAnalysisByIDWithoutRepository(t *testing.T) {
	c, _, _ := testCoordinator(t)
	c.deps.Repository = nil

	_, err := c.AnalysisByID(context.Background(), "abc")
	assert.ErrorIs(t, err, repository.ErrAnalysisNotFound)
}

func TestIntents(t *testing.T) {
	c, _, _ := testCoordinator(t)
	intents := c.Intents()
	assert.Contains(t, intents, "log_analysis")
}
