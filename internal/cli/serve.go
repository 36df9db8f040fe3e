package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/athena-ops/athena-stack/internal/agents"
	"github.com/athena-ops/athena-stack/internal/auth"
	"github.com/athena-ops/athena-stack/internal/cache"
	"github.com/athena-ops/athena-stack/internal/contextmgr"
	"github.com/athena-ops/athena-stack/internal/embedding"
	"github.com/athena-ops/athena-stack/internal/handlers"
	"github.com/athena-ops/athena-stack/internal/llm"
	"github.com/athena-ops/athena-stack/internal/logging"
	"github.com/athena-ops/athena-stack/internal/loki"
	"github.com/athena-ops/athena-stack/internal/messaging"
	natsclient "github.com/athena-ops/athena-stack/internal/messaging/nats"
	"github.com/athena-ops/athena-stack/internal/middleware"
	"github.com/athena-ops/athena-stack/internal/nlu"
	"github.com/athena-ops/athena-stack/internal/orchestrator"
	"github.com/athena-ops/athena-stack/internal/rag"
	"github.com/athena-ops/athena-stack/internal/ratelimit"
	"github.com/athena-ops/athena-stack/internal/repository"
	"github.com/athena-ops/athena-stack/internal/server"
	"github.com/athena-ops/athena-stack/internal/service"
	"github.com/athena-ops/athena-stack/internal/vectorstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the analysis service",
	Long:  "Starts the HTTP API, connects to its backing services, and runs database migrations.",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().Bool("in-memory", false, "use the in-memory repository instead of PostgreSQL")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger().With("service", "athena")
	logging.SetDefault(logger)
	ctx := context.Background()

	logger.InfoContext(ctx, "starting athena service",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level)

	inMemory, _ := cmd.Flags().GetBool("in-memory")

	repo, err := buildRepository(ctx, inMemory, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
		opts.MaxRetries = cfg.Redis.MaxRetries
		opts.PoolSize = cfg.Redis.PoolSize
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	var analysisCache *cache.AnalysisCache
	if redisClient != nil {
		analysisCache = cache.NewAnalysisCache(redisClient, cfg.Cache.TTL, cfg.Cache.Enabled)
	}

	var limiter ratelimit.RateLimiter = &ratelimit.NoOpRateLimiter{}
	if cfg.RateLimit.Enabled && redisClient != nil {
		limiter = ratelimit.NewWithClient(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.Window)
	}

	var events messaging.Publisher = messaging.NopPublisher{}
	if cfg.NATS.Enabled {
		nc, err := natsclient.NewClient(natsclient.Config{
			URL:           cfg.NATS.URL,
			MaxReconnects: cfg.NATS.MaxReconnects,
			ReconnectWait: cfg.NATS.ReconnectWait,
			Logger:        logger.With("component", "nats"),
		})
		if err != nil {
			logger.WarnContext(ctx, "NATS unavailable, events disabled", "error", err)
		} else {
			events = nc
			defer nc.Close()
		}
	}

	lokiClient := loki.NewClient(cfg.Loki.URL, cfg.Loki.Timeout,
		loki.WithMaxRetries(cfg.Loki.MaxRetries),
		loki.WithMaxEntries(cfg.Loki.MaxEntries))
	contexts := contextmgr.New(lokiClient, contextmgr.Config{}, logger)

	embedder := embedding.NewOllamaEmbedder(cfg.Ollama.URL, cfg.Ollama.EmbeddingModel, cfg.Ollama.Timeout)
	store := vectorstore.NewChromaStore(cfg.Chroma.URL, cfg.Chroma.Token, cfg.Chroma.Collection, 30*time.Second)
	if err := store.EnsureCollection(ctx, cfg.Chroma.Collection); err != nil {
		logger.WarnContext(ctx, "vector store unavailable, retrieval degraded", "error", err)
	}

	nluEngine := nlu.NewEngine(embedder)
	if cfg.Analysis.IntentCorpusPath != "" {
		if err := nluEngine.LoadCorpus(cfg.Analysis.IntentCorpusPath); err != nil {
			logger.WarnContext(ctx, "could not load intent corpus, using built-in", "error", err)
		}
	}

	thresholds := make(map[string]agents.Threshold, len(cfg.Metrics.Thresholds))
	for name, th := range cfg.Metrics.Thresholds {
		thresholds[name] = agents.Threshold{Warning: th.Warning, Critical: th.Critical}
	}
	if len(thresholds) == 0 {
		thresholds = nil
	}

	orch := orchestrator.New(cfg.Analysis.AgentTimeout, logger)
	orch.Register("logs", agents.NewLogAgent())
	orch.Register("security", agents.NewSecurityAgent())
	metricsAgent := agents.NewMetricsAgent(thresholds)
	orch.Register("metrics", metricsAgent)
	orch.Register("performance", metricsAgent)

	coordinator := service.NewCoordinator(service.Deps{
		NLU:             nluEngine,
		Contexts:        contexts,
		LogRetriever:    rag.NewLogRetriever(store, embedder, cfg.Analysis.MinRelevance),
		MetricRetriever: rag.NewMetricRetriever(store, embedder, cfg.Analysis.MinRelevance),
		Orchestrator:    orch,
		Generator:       llm.NewClient(cfg.Ollama.URL, cfg.Ollama.Model, cfg.Ollama.Timeout, cfg.Ollama.MaxRetries),
		Repository:      repo,
		Cache:           analysisCache,
		Events:          events,
		Logger:          logger,
		RetrievalK:      cfg.Analysis.RetrievalK,
	})

	var tokens *auth.TokenManager
	if cfg.Auth.JWTSecret != "" {
		tokens = auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
	}

	router := server.NewRouter(handlers.NewHandler(coordinator, logger), server.Options{
		RateLimiter: limiter,
		Tokens:      tokens,
		AuthEnabled: cfg.Auth.Enabled,
		CORS: middleware.CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
		},
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.InfoContext(ctx, "athena service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorContext(ctx, "server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.InfoContext(ctx, "shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	logger.InfoContext(ctx, "server stopped gracefully")
	return nil
}

// buildRepository connects to PostgreSQL and runs migrations, or returns the
// in-memory repository for development.
func buildRepository(ctx context.Context, inMemory bool, logger *logging.Logger) (repository.Repository, error) {
	if inMemory {
		logger.WarnContext(ctx, "using in-memory repository (development only)")
		return repository.NewMemoryRepository(), nil
	}

	connString := cfg.Database.ConnString()
	logger.InfoContext(ctx, "connecting to PostgreSQL",
		"host", cfg.Database.Host,
		"database", cfg.Database.Database)

	repo, err := repository.NewPostgresRepository(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
	}

	logger.InfoContext(ctx, "running database migrations")
	m, err := migrate.New("file://migrations", connString)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("initializing migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		repo.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	if version, dirty, err := m.Version(); err != nil {
		logger.WarnContext(ctx, "could not read migration version", "error", err)
	} else {
		logger.InfoContext(ctx, "database migrations complete", "version", version, "dirty", dirty)
	}
	return repo, nil
}
