package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ATHENA_CONFIG_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, "http://localhost:3100", cfg.Loki.URL)
	assert.Equal(t, "athena_logs", cfg.Chroma.Collection)
	assert.Equal(t, "mistral", cfg.Ollama.Model)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 100, cfg.RateLimit.Requests)
	assert.Equal(t, 1, cfg.Analysis.DefaultWindowHours)
	assert.Equal(t, "info", cfg.Logging.Level)

	require.Contains(t, cfg.Metrics.Thresholds, "cpu")
	assert.Equal(t, 70.0, cfg.Metrics.Thresholds["cpu"].Warning)
	assert.Equal(t, 85.0, cfg.Metrics.Thresholds["cpu"].Critical)
	assert.Equal(t, 95.0, cfg.Metrics.Thresholds["disk"].Critical)
	require.Contains(t, cfg.Metrics.Thresholds, "default")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: 8090},
			Analysis: AnalysisConfig{MaxConcurrency: 4, RetrievalK: 5, MinRelevance: 0.3},
			Metrics: MetricsConfig{Thresholds: map[string]ThresholdConfig{
				"cpu": {Warning: 70, Critical: 85},
			}},
		}
	}

	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Analysis.MinRelevance = 1.5
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Metrics.Thresholds["cpu"] = ThresholdConfig{Warning: 90, Critical: 85}
	assert.ErrorContains(t, cfg.Validate(), "warning")

	cfg = valid()
	cfg.Metrics.Thresholds["cpu"] = ThresholdConfig{Warning: -1, Critical: 85}
	assert.Error(t, cfg.Validate())
}

func TestLoadRejectsInvalidThresholds(t *testing.T) {
	t.Setenv("ATHENA_CONFIG_DIR", t.TempDir())
	t.Setenv("ATHENA_METRICS_THRESHOLDS_CPU_WARNING", "99")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ATHENA_CONFIG_DIR", t.TempDir())
	t.Setenv("ATHENA_DATABASE_HOST", "db.internal")
	t.Setenv("ATHENA_SERVER_PORT", "9000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
}

func TestConnString(t *testing.T) {
	d := DatabaseConfig{
		Host:     "db",
		Port:     5432,
		Database: "athena",
		User:     "athena",
		Password: "secret",
		SSLMode:  "disable",
	}

	assert.Equal(t, "postgres://athena:secret@db:5432/athena?sslmode=disable", d.ConnString())
}
