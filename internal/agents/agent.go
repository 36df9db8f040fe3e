// Package agents contains the specialized analyzers that each examine one
// aspect of the gathered context: logs, security signals, or metrics.
package agents

import (
	"context"

	"github.com/athena-ops/athena-stack/internal/models"
	"github.com/athena-ops/athena-stack/internal/timewindow"
)

// Input is the shared context handed to every agent for one analysis run.
type Input struct {
	Query     string
	Window    timewindow.Window
	Logs      []models.LogEntry
	Metrics   []models.Metric
	Documents []models.Document
}

// Agent analyzes one aspect of the input and reports its findings. Agents
// must not mutate the input; runs may share it concurrently.
type Agent interface {
	Name() string
	Analyze(ctx context.Context, in Input) (models.AgentResult, error)
}
