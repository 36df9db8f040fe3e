package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/athena-ops/athena-stack/internal/embedding"
	"github.com/athena-ops/athena-stack/internal/repository"
	"github.com/athena-ops/athena-stack/internal/seeder"
	"github.com/athena-ops/athena-stack/internal/vectorstore"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Generate demo logs and metrics",
	Long: `Generates fake log documents and metric samples spread over a time
window, indexes the logs into the vector store, and stores the metric
samples in PostgreSQL. Useful for demos and local development.`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().Int("logs", 500, "number of log documents to index")
	seedCmd.Flags().Int("metrics", 200, "number of metric samples to store")
	seedCmd.Flags().Duration("spread", 24*time.Hour, "period to spread timestamps over")
	seedCmd.Flags().Bool("skip-index", false, "skip vector store indexing")
	seedCmd.Flags().Bool("skip-metrics", false, "skip metric sample storage")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	logger := newLogger().With("service", "seeder")
	ctx := context.Background()

	logCount, _ := cmd.Flags().GetInt("logs")
	metricCount, _ := cmd.Flags().GetInt("metrics")
	spread, _ := cmd.Flags().GetDuration("spread")
	skipIndex, _ := cmd.Flags().GetBool("skip-index")
	skipMetrics, _ := cmd.Flags().GetBool("skip-metrics")

	var (
		store    vectorstore.Store
		chroma   *vectorstore.ChromaStore
		embedder embedding.Embedder
	)
	if !skipIndex {
		chroma = vectorstore.NewChromaStore(cfg.Chroma.URL, cfg.Chroma.Token, cfg.Chroma.Collection, 30*time.Second)
		if err := chroma.EnsureCollection(ctx, cfg.Chroma.Collection); err != nil {
			return fmt.Errorf("vector store unavailable: %w", err)
		}
		store = chroma
		embedder = embedding.NewOllamaEmbedder(cfg.Ollama.URL, cfg.Ollama.EmbeddingModel, cfg.Ollama.Timeout)
	}

	var repo repository.Repository
	if !skipMetrics {
		pg, err := repository.NewPostgresRepository(ctx, cfg.Database.ConnString())
		if err != nil {
			return fmt.Errorf("connecting to PostgreSQL: %w", err)
		}
		defer pg.Close()
		repo = pg
	}

	runner := seeder.NewRunner(seeder.Config{
		LogCount:    logCount,
		MetricCount: metricCount,
		TimeSpread:  spread,
	}, store, embedder, repo, nil, logger)

	stats, err := runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("seeding failed: %w", err)
	}

	printSuccess("Seeded %d log documents and %d metric samples over %v",
		stats.LogsIndexed, stats.MetricsSaved, spread)

	if chroma != nil {
		if total, err := chroma.Count(ctx); err == nil {
			printSuccess("Collection %s now holds %d documents", cfg.Chroma.Collection, total)
		} else {
			logger.WarnContext(ctx, "could not read collection size", "error", err)
		}
	}
	return nil
}
