package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/athena-ops/athena-stack/internal/models"
	"github.com/athena-ops/athena-stack/internal/timewindow"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	// Connection pool configuration
	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// SaveAnalysis stores a completed analysis. The full result is kept as
// JSONB next to the columns used for listing and aggregation.
func (r *PostgresRepository) SaveAnalysis(ctx context.Context, result *models.AnalysisResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode analysis: %w", err)
	}

	query := `
		INSERT INTO analyses (id, query, intent, risk_level, result, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.pool.Exec(ctx, query,
		result.ID, result.Query, result.Intent, string(result.RiskLevel),
		payload, result.DurationMS, result.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}

	return nil
}

// GetAnalysisByID retrieves a single analysis by ID
func (r *PostgresRepository) GetAnalysisByID(ctx context.Context, id string) (*models.AnalysisResult, error) {
	var payload []byte
	err := r.pool.QueryRow(ctx, `SELECT result FROM analyses WHERE id = $1`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAnalysisNotFound
		}
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}

	result := &models.AnalysisResult{}
	if err := json.Unmarshal(payload, result); err != nil {
		return nil, fmt.Errorf("failed to decode analysis: %w", err)
	}

	return result, nil
}

// GetRecentAnalyses retrieves the most recent analyses, newest first
func (r *PostgresRepository) GetRecentAnalyses(ctx context.Context, limit int) ([]*models.AnalysisResult, error) {
	if limit < 1 {
		limit = 10
	}

	rows, err := r.pool.Query(ctx, `
		SELECT result
		FROM analyses
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	results := []*models.AnalysisResult{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}

		result := &models.AnalysisResult{}
		if err := json.Unmarshal(payload, result); err != nil {
			return nil, fmt.Errorf("failed to decode analysis: %w", err)
		}
		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return results, nil
}

// RiskTrends aggregates daily analysis volume and risk over the last days
func (r *PostgresRepository) RiskTrends(ctx context.Context, days int) ([]TrendPoint, error) {
	if days < 1 {
		days = 7
	}

	rows, err := r.pool.Query(ctx, `
		SELECT
			date_trunc('day', created_at) AS day,
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE risk_level IN ('high', 'critical')) AS high_risk,
			COALESCE(AVG(duration_ms), 0) AS avg_duration_ms
		FROM analyses
		WHERE created_at >= now() - make_interval(days => $1)
		GROUP BY day
		ORDER BY day
	`, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query trends: %w", err)
	}
	defer rows.Close()

	points := []TrendPoint{}
	for rows.Next() {
		var p TrendPoint
		if err := rows.Scan(&p.Day, &p.Total, &p.HighRisk, &p.AvgDurationMS); err != nil {
			return nil, fmt.Errorf("failed to scan trend point: %w", err)
		}
		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return points, nil
}

// SaveMetricSamples batch-inserts metric samples
func (r *PostgresRepository) SaveMetricSamples(ctx context.Context, samples []models.Metric) error {
	if len(samples) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, s := range samples {
		labels, err := json.Marshal(s.Labels)
		if err != nil {
			return fmt.Errorf("failed to encode labels: %w", err)
		}
		batch.Queue(`
			INSERT INTO metric_samples (name, value, labels, recorded_at)
			VALUES ($1, $2, $3, $4)
		`, s.Name, s.Value, labels, s.Timestamp)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range samples {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to save metric sample: %w", err)
		}
	}

	return nil
}

// RecentSamples returns samples for one metric within the window, oldest
// first.
func (r *PostgresRepository) RecentSamples(ctx context.Context, name string, w timewindow.Window) ([]models.Metric, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT name, value, labels, recorded_at
		FROM metric_samples
		WHERE name = $1 AND recorded_at >= $2 AND recorded_at < $3
		ORDER BY recorded_at
	`, name, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("failed to query metric samples: %w", err)
	}
	defer rows.Close()

	samples := []models.Metric{}
	for rows.Next() {
		var (
			m      models.Metric
			labels []byte
		)
		if err := rows.Scan(&m.Name, &m.Value, &labels, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan metric sample: %w", err)
		}
		if len(labels) > 0 {
			if err := json.Unmarshal(labels, &m.Labels); err != nil {
				return nil, fmt.Errorf("failed to decode labels: %w", err)
			}
		}
		samples = append(samples, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return samples, nil
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}
