// Package orchestrator routes an interpreted query to the right agents,
// runs them concurrently, and synthesizes their findings.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/athena-ops/athena-stack/internal/agents"
	"github.com/athena-ops/athena-stack/internal/logging"
	"github.com/athena-ops/athena-stack/internal/metrics"
	"github.com/athena-ops/athena-stack/internal/models"
	"github.com/athena-ops/athena-stack/internal/nlu"
)

// intentRouting maps each intent to the agents that should handle it.
// Unknown intents fall back to defaultAgents.
var intentRouting = map[string][]string{
	"metrics_analysis":     {"metrics"},
	"resource_analysis":    {"metrics"},
	"security_analysis":    {"security"},
	"log_analysis":         {"logs"},
	"performance_analysis": {"performance", "metrics"},
	"correlation_analysis": {"metrics", "logs", "security"},
	"anomaly_detection":    {"metrics", "security"},
}

var defaultAgents = []string{"logs", "metrics"}

// Orchestrator fans analysis work out to registered agents.
type Orchestrator struct {
	registry     map[string]agents.Agent
	agentTimeout time.Duration
	logger       *logging.Logger
}

// New creates an orchestrator. agentTimeout bounds each individual agent
// run; zero means no per-agent bound beyond the caller's context.
func New(agentTimeout time.Duration, logger *logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Orchestrator{
		registry:     make(map[string]agents.Agent),
		agentTimeout: agentTimeout,
		logger:       logger,
	}
}

// Register makes an agent routable under the given name. Registering the
// same agent under several names creates an alias.
func (o *Orchestrator) Register(name string, agent agents.Agent) {
	o.registry[name] = agent
}

// SelectAgents resolves the agent names for an intent. Queries mentioning a
// specific resource always include the metrics agent.
func (o *Orchestrator) SelectAgents(intent nlu.Intent) []string {
	names, ok := intentRouting[intent.Category]
	if !ok {
		names = defaultAgents
	}

	selected := append([]string(nil), names...)
	if _, ok := intent.Entities["resource_type"]; ok {
		selected = append(selected, "metrics")
	}

	// Dedupe while keeping only registered agents.
	seen := make(map[string]bool)
	out := selected[:0]
	for _, name := range selected {
		if seen[name] {
			continue
		}
		seen[name] = true
		if _, ok := o.registry[name]; ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Run executes the agents selected for the intent concurrently and returns
// their combined results. A failing agent contributes an error result
// instead of failing the run; only an empty registry or canceled context
// produce an error.
func (o *Orchestrator) Run(ctx context.Context, intent nlu.Intent, in agents.Input) ([]models.AgentResult, error) {
	names := o.SelectAgents(intent)
	if len(names) == 0 {
		return nil, fmt.Errorf("no agents available for intent %q", intent.Category)
	}
	return o.RunAgents(ctx, names, in)
}

// RunAgents executes an explicit set of agents, skipping names that are not
// registered.
func (o *Orchestrator) RunAgents(ctx context.Context, names []string, in agents.Input) ([]models.AgentResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	selected := make([]string, 0, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		if _, ok := o.registry[name]; ok {
			selected = append(selected, name)
		}
	}
	sort.Strings(selected)

	names = selected
	if len(names) == 0 {
		return nil, errors.New("none of the requested agents are registered")
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make([]models.AgentResult, 0, len(names))
	)

	for _, name := range names {
		agent := o.registry[name]
		wg.Add(1)
		go func(name string, agent agents.Agent) {
			defer wg.Done()

			runCtx := ctx
			if o.agentTimeout > 0 {
				var cancel context.CancelFunc
				runCtx, cancel = context.WithTimeout(ctx, o.agentTimeout)
				defer cancel()
			}

			result, err := agent.Analyze(runCtx, in)
			if err != nil {
				o.logger.ErrorContext(ctx, "agent failed",
					"agent", name,
					"error", err,
				)
				metrics.AgentFailures.WithLabelValues(name).Inc()
				result = models.AgentResult{
					Agent:     name,
					RiskLevel: models.RiskLow,
					Summary:   fmt.Sprintf("Agent %s did not complete.", name),
					Err:       err.Error(),
				}
			}
			result.Agent = name

			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		}(name, agent)
	}

	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Agent < results[j].Agent })
	return results, nil
}

// Synthesize merges agent results into one outcome: summaries concatenate
// and the overall risk is the maximum across agents.
func Synthesize(results []models.AgentResult) (models.RiskLevel, string) {
	risk := models.RiskLow
	var parts []string

	for _, r := range results {
		if r.Err != "" {
			continue
		}
		risk = risk.Max(r.RiskLevel)
		if r.Summary != "" {
			parts = append(parts, fmt.Sprintf("[%s] %s", r.Agent, r.Summary))
		}
	}

	if len(parts) == 0 {
		return models.RiskLow, "No agent produced findings for this query."
	}
	return risk, strings.Join(parts, " ")
}
