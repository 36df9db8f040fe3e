package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/athena-ops/athena-stack/internal/models"
	"github.com/athena-ops/athena-stack/internal/timewindow"
)

// MemoryRepository is an in-process Repository for tests and for running
// without a database.
type MemoryRepository struct {
	mu       sync.RWMutex
	analyses []*models.AnalysisResult
	samples  []models.Metric
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) SaveAnalysis(_ context.Context, result *models.AnalysisResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *result
	r.analyses = append(r.analyses, &stored)
	return nil
}

func (r *MemoryRepository) GetAnalysisByID(_ context.Context, id string) (*models.AnalysisResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.analyses {
		if a.ID == id {
			out := *a
			return &out, nil
		}
	}
	return nil, ErrAnalysisNotFound
}

func (r *MemoryRepository) GetRecentAnalyses(_ context.Context, limit int) ([]*models.AnalysisResult, error) {
	if limit < 1 {
		limit = 10
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	sorted := make([]*models.AnalysisResult, len(r.analyses))
	copy(sorted, r.analyses)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.After(sorted[j].CreatedAt) })

	if len(sorted) > limit {
		sorted = sorted[:limit]
	}

	out := make([]*models.AnalysisResult, len(sorted))
	for i, a := range sorted {
		copied := *a
		out[i] = &copied
	}
	return out, nil
}

func (r *MemoryRepository) RiskTrends(_ context.Context, days int) ([]TrendPoint, error) {
	if days < 1 {
		days = 7
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	r.mu.RLock()
	defer r.mu.RUnlock()

	type bucket struct {
		total    int
		highRisk int
		duration int64
	}
	buckets := make(map[time.Time]*bucket)
	for _, a := range r.analyses {
		if a.CreatedAt.Before(cutoff) {
			continue
		}
		day := a.CreatedAt.UTC().Truncate(24 * time.Hour)
		b, ok := buckets[day]
		if !ok {
			b = &bucket{}
			buckets[day] = b
		}
		b.total++
		if a.RiskLevel == models.RiskHigh || a.RiskLevel == models.RiskCritical {
			b.highRisk++
		}
		b.duration += a.DurationMS
	}

	points := make([]TrendPoint, 0, len(buckets))
	for day, b := range buckets {
		points = append(points, TrendPoint{
			Day:           day,
			Total:         b.total,
			HighRisk:      b.highRisk,
			AvgDurationMS: float64(b.duration) / float64(b.total),
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Day.Before(points[j].Day) })
	return points, nil
}

func (r *MemoryRepository) SaveMetricSamples(_ context.Context, samples []models.Metric) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.samples = append(r.samples, samples...)
	return nil
}

func (r *MemoryRepository) RecentSamples(_ context.Context, name string, w timewindow.Window) ([]models.Metric, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := []models.Metric{}
	for _, s := range r.samples {
		if s.Name != name {
			continue
		}
		if s.Timestamp.Before(w.Start) || !s.Timestamp.Before(w.End) {
			continue
		}
		matched = append(matched, s)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Timestamp.Before(matched[j].Timestamp) })
	return matched, nil
}

func (r *MemoryRepository) Close() error {
	return nil
}
