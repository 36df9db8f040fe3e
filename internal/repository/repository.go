// Package repository persists analysis results and metric samples.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/athena-ops/athena-stack/internal/models"
	"github.com/athena-ops/athena-stack/internal/timewindow"
)

var ErrAnalysisNotFound = errors.New("analysis not found")

// TrendPoint aggregates one day of analysis history.
type TrendPoint struct {
	Day           time.Time `json:"day"`
	Total         int       `json:"total"`
	HighRisk      int       `json:"high_risk"`
	AvgDurationMS float64   `json:"avg_duration_ms"`
}

// Repository defines the interface for analysis persistence.
type Repository interface {
	SaveAnalysis(ctx context.Context, result *models.AnalysisResult) error
	GetAnalysisByID(ctx context.Context, id string) (*models.AnalysisResult, error)
	GetRecentAnalyses(ctx context.Context, limit int) ([]*models.AnalysisResult, error)
	RiskTrends(ctx context.Context, days int) ([]TrendPoint, error)

	SaveMetricSamples(ctx context.Context, samples []models.Metric) error
	RecentSamples(ctx context.Context, name string, w timewindow.Window) ([]models.Metric, error)

	Close() error
}
