// Package seeder generates demo log and metric data so a fresh install has
// something to analyze. Logs are embedded and indexed into the vector
// store; metric samples go to the repository.
package seeder

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"github.com/athena-ops/athena-stack/internal/embedding"
	"github.com/athena-ops/athena-stack/internal/logging"
	"github.com/athena-ops/athena-stack/internal/messaging"
	"github.com/athena-ops/athena-stack/internal/models"
	"github.com/athena-ops/athena-stack/internal/repository"
	"github.com/athena-ops/athena-stack/internal/vectorstore"
)

// Config controls how much data the seeder generates and how it is spread
// over time.
type Config struct {
	LogCount    int
	MetricCount int
	BatchSize   int
	TimeSpread  time.Duration
	Services    []string
}

func (c *Config) applyDefaults() {
	if c.LogCount < 1 {
		c.LogCount = 500
	}
	if c.MetricCount < 1 {
		c.MetricCount = 200
	}
	if c.BatchSize < 1 {
		c.BatchSize = 50
	}
	if c.TimeSpread <= 0 {
		c.TimeSpread = 24 * time.Hour
	}
	if len(c.Services) == 0 {
		c.Services = []string{"api-gateway", "auth-service", "billing", "worker", "postgres"}
	}
}

// spreadTime places event index of total within the spread ending now.
// Events are evenly spaced with random jitter of up to 40% of the base
// interval in either direction.
func spreadTime(now time.Time, index, total int, spread time.Duration) time.Time {
	if spread <= 0 || total < 1 {
		return now
	}
	baseInterval := float64(spread) / float64(total)
	offset := time.Duration(float64(index) * baseInterval)

	jitterRange := baseInterval * 0.4
	jitter := time.Duration((rand.Float64()*2.0 - 1.0) * jitterRange)

	offset += jitter
	if offset < 0 {
		offset = 0
	}
	if offset > spread {
		offset = spread
	}
	return now.Add(-(spread - offset))
}

// GenerateLogEntry creates one fake log line attributed to a random service.
// Roughly 25% of entries are warnings or worse.
func GenerateLogEntry(now time.Time, index, total int, spread time.Duration, services []string) models.LogEntry {
	service := services[rand.Intn(len(services))]

	var level, message string
	switch roll := rand.Float32(); {
	case roll < 0.05:
		level = "critical"
		message = criticalMessage()
	case roll < 0.15:
		level = "error"
		message = errorMessage()
	case roll < 0.30:
		level = "warning"
		message = warningMessage()
	default:
		level = "info"
		message = infoMessage()
	}

	return models.LogEntry{
		Timestamp: spreadTime(now, index, total, spread),
		Message:   message,
		Level:     level,
		Labels: map[string]string{
			"service": service,
			"host":    gofakeit.DomainName(),
		},
	}
}

func infoMessage() string {
	switch rand.Intn(4) {
	case 0:
		return fmt.Sprintf("handled %s %s in %dms", gofakeit.HTTPMethod(), requestPath(), rand.Intn(480)+20)
	case 1:
		return fmt.Sprintf("user %s logged in from %s", gofakeit.Username(), gofakeit.IPv4Address())
	case 2:
		return fmt.Sprintf("background job %s completed, %d items processed", gofakeit.UUID(), rand.Intn(5000))
	default:
		return fmt.Sprintf("health check passed, uptime %dh", rand.Intn(720)+1)
	}
}

func warningMessage() string {
	switch rand.Intn(3) {
	case 0:
		return fmt.Sprintf("slow query took %dms: SELECT from %s", rand.Intn(4000)+1000, gofakeit.NounAbstract())
	case 1:
		return fmt.Sprintf("retrying request to %s, attempt %d", gofakeit.DomainName(), rand.Intn(4)+2)
	default:
		return fmt.Sprintf("queue depth %d exceeds soft limit", rand.Intn(9000)+1000)
	}
}

func errorMessage() string {
	switch rand.Intn(4) {
	case 0:
		return fmt.Sprintf("connection to %s timed out after 30s", gofakeit.DomainName())
	case 1:
		return fmt.Sprintf("failed to write to %s: permission denied", requestPath())
	case 2:
		return fmt.Sprintf("request %s failed with status 502", gofakeit.UUID())
	default:
		return fmt.Sprintf("authentication failed for user %s from %s", gofakeit.Username(), gofakeit.IPv4Address())
	}
}

func criticalMessage() string {
	switch rand.Intn(3) {
	case 0:
		return "out of memory: killed worker process"
	case 1:
		return fmt.Sprintf("disk usage at %d%% on /var/lib/data", rand.Intn(8)+92)
	default:
		return fmt.Sprintf("database connection pool exhausted, %d waiters", rand.Intn(200)+50)
	}
}

func requestPath() string {
	parts := []string{"users", "orders", "invoices", "sessions", "reports"}
	return "/api/" + parts[rand.Intn(len(parts))] + "/" + gofakeit.UUID()
}

var metricBaselines = map[string]float64{
	"cpu_usage_percent":    35,
	"memory_usage_percent": 55,
	"disk_usage_percent":   60,
	"request_latency_ms":   120,
	"error_rate":           0.5,
}

// GenerateMetric creates one fake metric sample around a fixed baseline
// with gaussian noise. About 3% of samples spike well above baseline.
func GenerateMetric(now time.Time, index, total int, spread time.Duration, services []string) models.Metric {
	names := make([]string, 0, len(metricBaselines))
	for name := range metricBaselines {
		names = append(names, name)
	}
	name := names[rand.Intn(len(names))]

	base := metricBaselines[name]
	value := base + rand.NormFloat64()*base*0.1
	if rand.Float32() < 0.03 {
		value = base * (2 + rand.Float64())
	}
	if value < 0 {
		value = 0
	}

	return models.Metric{
		Name:      name,
		Value:     value,
		Timestamp: spreadTime(now, index, total, spread),
		Labels: map[string]string{
			"service": services[rand.Intn(len(services))],
		},
	}
}

// Stats summarizes a seeding run.
type Stats struct {
	LogsIndexed  int
	MetricsSaved int
}

// Runner generates demo data and loads it into the configured sinks. A nil
// store skips indexing and a nil repository skips metric samples.
type Runner struct {
	cfg      Config
	store    vectorstore.Store
	embedder embedding.Embedder
	repo     repository.Repository
	events   messaging.Publisher
	logger   *logging.Logger
}

// NewRunner creates a seeding runner. All sinks are optional.
func NewRunner(cfg Config, store vectorstore.Store, embedder embedding.Embedder, repo repository.Repository, events messaging.Publisher, logger *logging.Logger) *Runner {
	cfg.applyDefaults()
	if events == nil {
		events = messaging.NopPublisher{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{cfg: cfg, store: store, embedder: embedder, repo: repo, events: events, logger: logger}
}

// Run generates and loads the demo data set.
func (r *Runner) Run(ctx context.Context) (*Stats, error) {
	gofakeit.Seed(time.Now().UnixNano())
	now := time.Now().UTC()
	stats := &Stats{}

	r.logger.InfoContext(ctx, "seeding demo data",
		"logs", r.cfg.LogCount,
		"metrics", r.cfg.MetricCount,
		"spread", r.cfg.TimeSpread.String())

	if r.store != nil && r.embedder != nil {
		indexed, err := r.indexLogs(ctx, now)
		if err != nil {
			return stats, fmt.Errorf("indexing logs: %w", err)
		}
		stats.LogsIndexed = indexed

		if err := r.events.PublishJSON(ctx, messaging.SubjectLogsIndexed, map[string]any{
			"count":  indexed,
			"source": "seeder",
		}); err != nil {
			r.logger.WarnContext(ctx, "publishing indexed event failed", "error", err)
		}
	}

	if r.repo != nil {
		saved, err := r.saveMetrics(ctx, now)
		if err != nil {
			return stats, fmt.Errorf("saving metrics: %w", err)
		}
		stats.MetricsSaved = saved
	}

	r.logger.InfoContext(ctx, "seeding complete",
		"logs_indexed", stats.LogsIndexed,
		"metrics_saved", stats.MetricsSaved)
	return stats, nil
}

func (r *Runner) indexLogs(ctx context.Context, now time.Time) (int, error) {
	var (
		ids        []string
		embeddings [][]float64
		contents   []string
		metadatas  []map[string]any
		indexed    int
	)

	flush := func() error {
		if len(ids) == 0 {
			return nil
		}
		if err := r.store.Add(ctx, ids, embeddings, contents, metadatas); err != nil {
			return err
		}
		indexed += len(ids)
		ids, embeddings, contents, metadatas = nil, nil, nil, nil
		return nil
	}

	for i := 0; i < r.cfg.LogCount; i++ {
		entry := GenerateLogEntry(now, i, r.cfg.LogCount, r.cfg.TimeSpread, r.cfg.Services)

		content := fmt.Sprintf("[%s] %s: %s", entry.Level, entry.Labels["service"], entry.Message)
		vec, err := r.embedder.Embed(ctx, content)
		if err != nil {
			return indexed, fmt.Errorf("embedding entry %d: %w", i, err)
		}

		ids = append(ids, uuid.NewString())
		embeddings = append(embeddings, vec)
		contents = append(contents, content)
		// The epoch is stored as a number so range filters on
		// timestamp_epoch match it.
		metadatas = append(metadatas, map[string]any{
			"service":         entry.Labels["service"],
			"level":           entry.Level,
			"timestamp_epoch": entry.Timestamp.Unix(),
		})

		if len(ids) >= r.cfg.BatchSize {
			if err := flush(); err != nil {
				return indexed, err
			}
		}
	}
	return indexed, flush()
}

func (r *Runner) saveMetrics(ctx context.Context, now time.Time) (int, error) {
	samples := make([]models.Metric, 0, r.cfg.BatchSize)
	saved := 0

	for i := 0; i < r.cfg.MetricCount; i++ {
		samples = append(samples, GenerateMetric(now, i, r.cfg.MetricCount, r.cfg.TimeSpread, r.cfg.Services))

		if len(samples) >= r.cfg.BatchSize || i == r.cfg.MetricCount-1 {
			if err := r.repo.SaveMetricSamples(ctx, samples); err != nil {
				return saved, err
			}
			saved += len(samples)
			samples = samples[:0]
		}
	}
	return saved, nil
}
