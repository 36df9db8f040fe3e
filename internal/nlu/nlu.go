// Package nlu classifies analysis queries into intents using embedding
// similarity against a corpus of example phrasings.
package nlu

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/athena-ops/athena-stack/internal/cache"
	"github.com/athena-ops/athena-stack/internal/embedding"
)

// secondaryIntentFloor is the minimum similarity for an intent to be
// reported alongside the winner.
const secondaryIntentFloor = 0.3

// Intent is the interpreted meaning of a user query.
type Intent struct {
	Category   string            `json:"category"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities,omitempty"`
	Context    IntentContext     `json:"context"`
}

// IntentContext carries secondary signals about how the query should be
// answered.
type IntentContext struct {
	QueryType     string   `json:"query_type"`
	AnalysisScope string   `json:"analysis_scope"`
	OtherIntents  []string `json:"other_intents,omitempty"`
}

// defaultCorpus maps each intent to example queries. A YAML corpus file can
// replace these via LoadCorpus.
var defaultCorpus = map[string][]string{
	"resource_analysis": {
		"which processes use the most cpu",
		"show me memory utilization",
		"what is consuming system resources",
		"the system is slow, what is eating resources",
		"analyze resource consumption",
		"is anything leaking memory",
	},
	"security_analysis": {
		"were there any intrusion attempts",
		"show me the security logs",
		"detect suspicious activity",
		"are there abnormal connections",
		"check for unauthorized access",
		"analyze the authentication logs",
	},
	"performance_analysis": {
		"how is the system performing",
		"are there latency problems",
		"analyze response times",
		"is the system responding normally",
		"check api performance",
		"are there any bottlenecks",
	},
	"log_analysis": {
		"what do the logs say",
		"are there errors in the logs",
		"show me recent logs",
		"analyze the error messages",
		"are there important warnings",
		"find critical errors",
	},
}

// Engine classifies queries by comparing their embedding to the mean
// embedding of each intent's examples.
type Engine struct {
	embedder embedding.Embedder
	corpus   map[string][]string
	results  *cache.Memory

	mu      sync.Mutex
	centers map[string][]float64
}

// NewEngine creates a classifier with the built-in corpus.
func NewEngine(embedder embedding.Embedder) *Engine {
	return &Engine{
		embedder: embedder,
		corpus:   defaultCorpus,
		results:  cache.NewMemory(256, 10*time.Minute),
	}
}

// corpusFile is the YAML shape of an external intent corpus.
type corpusFile struct {
	Intents map[string][]string `yaml:"intents"`
}

// LoadCorpus replaces the intent examples with those from a YAML file.
func (e *Engine) LoadCorpus(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read intent corpus: %w", err)
	}

	var cf corpusFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("failed to parse intent corpus: %w", err)
	}
	if len(cf.Intents) == 0 {
		return fmt.Errorf("intent corpus %s defines no intents", path)
	}

	e.mu.Lock()
	e.corpus = cf.Intents
	e.centers = nil
	// Cached classifications belong to the old corpus.
	e.results = cache.NewMemory(256, 10*time.Minute)
	e.mu.Unlock()
	return nil
}

func (e *Engine) resultCache() *cache.Memory {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.results
}

// CacheStats exposes the classification cache counters.
func (e *Engine) CacheStats() cache.Stats {
	return e.resultCache().Stats()
}

// Intents returns the known intent names with their example queries.
func (e *Engine) Intents() map[string][]string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string][]string, len(e.corpus))
	for intent, examples := range e.corpus {
		out[intent] = append([]string(nil), examples...)
	}
	return out
}

// Understand classifies the query. Classification failures fall back to an
// "unknown" intent with zero confidence rather than erroring: the
// orchestrator still runs its default agents. Successful classifications
// are cached per query text.
func (e *Engine) Understand(ctx context.Context, query string) Intent {
	results := e.resultCache()
	if v, ok := results.Get(query); ok {
		if intent, ok := v.(Intent); ok {
			return intent
		}
	}

	entities := ExtractEntities(query)
	fallback := Intent{
		Category: "unknown",
		Entities: entities,
		Context:  buildContext(query, entities, nil),
	}

	if err := e.ensureCenters(ctx); err != nil {
		return fallback
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return fallback
	}

	sims := make(map[string]float64)
	best := Intent{Category: "unknown", Entities: entities}
	e.mu.Lock()
	for intent, center := range e.centers {
		sim := embedding.Dot(vec, center)
		sims[intent] = sim
		if sim > best.Confidence {
			best.Category = intent
			best.Confidence = sim
		}
	}
	e.mu.Unlock()

	best.Context = buildContext(query, entities, secondaryIntents(sims, best.Category))
	if best.Category != "unknown" {
		results.Set(query, best)
	}
	return best
}

// secondaryIntents lists the non-winning intents whose similarity cleared
// the floor, strongest first.
func secondaryIntents(sims map[string]float64, winner string) []string {
	var others []string
	for intent, sim := range sims {
		if intent != winner && sim >= secondaryIntentFloor {
			others = append(others, intent)
		}
	}
	sort.Slice(others, func(i, j int) bool {
		if sims[others[i]] != sims[others[j]] {
			return sims[others[i]] > sims[others[j]]
		}
		return others[i] < others[j]
	})
	return others
}

// buildContext derives the query type and analysis scope from the query
// text and extracted entities.
func buildContext(query string, entities map[string]string, others []string) IntentContext {
	cx := IntentContext{
		QueryType:     "analysis",
		AnalysisScope: "system",
		OtherIntents:  others,
	}

	q := strings.ToLower(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(q, "why") || strings.HasPrefix(q, "how"):
		cx.QueryType = "diagnostic"
	case containsAny(q, "show", "list", "display"):
		cx.QueryType = "display"
	case strings.HasPrefix(q, "is ") || strings.HasPrefix(q, "are ") ||
		strings.HasPrefix(q, "were ") || strings.HasPrefix(q, "did "):
		cx.QueryType = "verification"
	}

	if scope, ok := entities["resource_type"]; ok {
		cx.AnalysisScope = scope
	}
	return cx
}

// ensureCenters lazily embeds the corpus examples and caches the mean
// vector per intent.
func (e *Engine) ensureCenters(ctx context.Context) error {
	e.mu.Lock()
	if e.centers != nil {
		e.mu.Unlock()
		return nil
	}
	corpus := e.corpus
	e.mu.Unlock()

	centers := make(map[string][]float64, len(corpus))

	intents := make([]string, 0, len(corpus))
	for intent := range corpus {
		intents = append(intents, intent)
	}
	sort.Strings(intents)

	for _, intent := range intents {
		vecs := make([][]float64, 0, len(corpus[intent]))
		for _, example := range corpus[intent] {
			vec, err := e.embedder.Embed(ctx, example)
			if err != nil {
				return fmt.Errorf("failed to embed example for %s: %w", intent, err)
			}
			vecs = append(vecs, vec)
		}
		if center := embedding.Mean(vecs); center != nil {
			centers[intent] = center
		}
	}

	e.mu.Lock()
	e.centers = centers
	e.mu.Unlock()
	return nil
}

// ExtractEntities pulls structured hints out of the query text.
func ExtractEntities(query string) map[string]string {
	q := strings.ToLower(query)
	entities := make(map[string]string)

	switch {
	case containsAny(q, "cpu", "processor", "load"):
		entities["resource_type"] = "cpu"
	case containsAny(q, "ram", "memory", "heap"):
		entities["resource_type"] = "memory"
	case containsAny(q, "disk", "storage", "space", "volume"):
		entities["resource_type"] = "disk"
	case containsAny(q, "network", "connection", "bandwidth"):
		entities["resource_type"] = "network"
	}

	switch {
	case containsAny(q, "urgent", "critical", "important", "severe"):
		entities["priority"] = "high"
	case containsAny(q, "watch", "monitor", "verify", "check"):
		entities["priority"] = "medium"
	}

	switch {
	case containsAny(q, "last hour", "past hour"):
		entities["time_period"] = "1h"
	case containsAny(q, "today", "last 24", "past day"):
		entities["time_period"] = "24h"
	case containsAny(q, "week", "last 7"):
		entities["time_period"] = "7d"
	}

	if len(entities) == 0 {
		return nil
	}
	return entities
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
