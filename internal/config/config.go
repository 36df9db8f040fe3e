// Package config provides centralized configuration management for the
// Athena analysis stack.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the master configuration struct for the service and its
// infrastructure dependencies.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Loki      LokiConfig      `mapstructure:"loki"`
	Chroma    ChromaConfig    `mapstructure:"chroma"`
	Ollama    OllamaConfig    `mapstructure:"ollama"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// Validate rejects configurations that would misbehave at runtime rather
// than fail at startup.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Analysis.MaxConcurrency < 1 {
		return fmt.Errorf("analysis.max_concurrency must be at least 1")
	}
	if c.Analysis.RetrievalK < 1 {
		return fmt.Errorf("analysis.retrieval_k must be at least 1")
	}
	if c.Analysis.MinRelevance < 0 || c.Analysis.MinRelevance > 1 {
		return fmt.Errorf("analysis.min_relevance %v outside [0,1]", c.Analysis.MinRelevance)
	}
	for name, th := range c.Metrics.Thresholds {
		if th.Warning < 0 || th.Critical < 0 {
			return fmt.Errorf("metrics.thresholds.%s: thresholds must be non-negative", name)
		}
		if th.Warning >= th.Critical {
			return fmt.Errorf("metrics.thresholds.%s: warning %v must be below critical %v", name, th.Warning, th.Critical)
		}
	}
	return nil
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnString builds a connection string suitable for pgx and migrate.
func (d DatabaseConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL        string `mapstructure:"url"`
	Enabled    bool   `mapstructure:"enabled"`
	MaxRetries int    `mapstructure:"max_retries"`
	PoolSize   int    `mapstructure:"pool_size"`
}

// NATSConfig holds NATS message broker configuration
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Enabled       bool          `mapstructure:"enabled"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// LokiConfig holds log store connection settings
type LokiConfig struct {
	URL        string        `mapstructure:"url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	MaxEntries int           `mapstructure:"max_entries"`
}

// ChromaConfig holds vector store connection settings
type ChromaConfig struct {
	URL        string `mapstructure:"url"`
	Token      string `mapstructure:"token"`
	Collection string `mapstructure:"collection"`
}

// OllamaConfig holds LLM and embedding endpoint settings
type OllamaConfig struct {
	URL            string        `mapstructure:"url"`
	Model          string        `mapstructure:"model"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
}

// CacheConfig holds analysis result cache settings
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
	MaxSize int           `mapstructure:"max_size"`
}

// RateLimitConfig holds request rate limiting settings
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// AuthConfig holds JWT token configuration
type AuthConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	JWTSecret      string        `mapstructure:"jwt_secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// AnalysisConfig holds analysis pipeline tuning knobs
type AnalysisConfig struct {
	DefaultWindowHours int           `mapstructure:"default_window_hours"`
	MaxConcurrency     int           `mapstructure:"max_concurrency"`
	AgentTimeout       time.Duration `mapstructure:"agent_timeout"`
	RetrievalK         int           `mapstructure:"retrieval_k"`
	MinRelevance       float64       `mapstructure:"min_relevance"`
	IntentCorpusPath   string        `mapstructure:"intent_corpus_path"`
}

// ThresholdConfig is a warning/critical pair for one metric family.
type ThresholdConfig struct {
	Warning  float64 `mapstructure:"warning"`
	Critical float64 `mapstructure:"critical"`
}

// MetricsConfig holds per-metric alerting thresholds
type MetricsConfig struct {
	Thresholds map[string]ThresholdConfig `mapstructure:"thresholds"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from $ATHENA_CONFIG_DIR/config.yaml and
// environment variables. Environment variables use the ATHENA_ prefix with
// underscores for nesting, e.g. ATHENA_DATABASE_HOST.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	configDir := os.Getenv("ATHENA_CONFIG_DIR")
	if configDir == "" {
		configDir = "/etc/athena"
	}

	configPath := fmt.Sprintf("%s/config.yaml", configDir)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("ATHENA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file - don't fail if file doesn't exist
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
		// Config file not found - continue with defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "60s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "athena")
	v.SetDefault("database.user", "athena")
	v.SetDefault("database.password", "")
	v.SetDefault("database.sslmode", "disable")

	// Redis defaults
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)

	// NATS defaults
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", true)
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")

	// Loki defaults
	v.SetDefault("loki.url", "http://localhost:3100")
	v.SetDefault("loki.timeout", "30s")
	v.SetDefault("loki.max_retries", 3)
	v.SetDefault("loki.max_entries", 5000)

	// Chroma defaults
	v.SetDefault("chroma.url", "http://localhost:8000")
	v.SetDefault("chroma.token", "")
	v.SetDefault("chroma.collection", "athena_logs")

	// Ollama defaults
	v.SetDefault("ollama.url", "http://localhost:11434")
	v.SetDefault("ollama.model", "mistral")
	v.SetDefault("ollama.embedding_model", "nomic-embed-text")
	v.SetDefault("ollama.timeout", "60s")
	v.SetDefault("ollama.max_retries", 2)

	// Cache defaults
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("cache.max_size", 1000)

	// Rate limit defaults
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 100)
	v.SetDefault("rate_limit.window", "1m")

	// Auth defaults
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.jwt_secret", "change-this-in-production")
	v.SetDefault("auth.access_token_ttl", "15m")

	// Analysis defaults
	v.SetDefault("analysis.default_window_hours", 1)
	v.SetDefault("analysis.max_concurrency", 4)
	v.SetDefault("analysis.agent_timeout", "120s")
	v.SetDefault("analysis.retrieval_k", 5)
	v.SetDefault("analysis.min_relevance", 0.3)
	v.SetDefault("analysis.intent_corpus_path", "")

	// Metric threshold defaults
	v.SetDefault("metrics.thresholds.cpu.warning", 70.0)
	v.SetDefault("metrics.thresholds.cpu.critical", 85.0)
	v.SetDefault("metrics.thresholds.memory.warning", 80.0)
	v.SetDefault("metrics.thresholds.memory.critical", 90.0)
	v.SetDefault("metrics.thresholds.disk.warning", 85.0)
	v.SetDefault("metrics.thresholds.disk.critical", 95.0)
	v.SetDefault("metrics.thresholds.default.warning", 75.0)
	v.SetDefault("metrics.thresholds.default.critical", 90.0)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
