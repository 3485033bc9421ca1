// ABOUTME: Tests for config defaults, file loading and environment overrides
// ABOUTME: Uses temp files and t.Setenv so tests never touch the real XDG directory
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, filepath.Join(DataDir(), "engage.db"), cfg.Database.Path)
	assert.Equal(t, "v1", cfg.Engine.ScoreFormula)
	assert.Equal(t, 30*24*time.Hour, cfg.Engine.ScoreWindow)
	assert.Equal(t, 72*time.Hour, cfg.Engine.ResponseTimeout)
	assert.Equal(t, "outreach.dispatch", cfg.Engine.DispatchTopic)
	require.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
[database]
driver = "postgres"
dsn = "postgres://localhost/engage"

[engine]
score_formula = "v2-recency"
response_timeout = "48h"

[kafka]
enabled = true
brokers = ["k1:9092", "k2:9092"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/engage", cfg.DSN())
	assert.Equal(t, "v2-recency", cfg.Engine.ScoreFormula)
	assert.Equal(t, 48*time.Hour, cfg.Engine.ResponseTimeout)
	assert.Equal(t, time.Hour, cfg.Engine.ScoreMaxAge, "unset keys keep defaults")
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
[database]
path = "/tmp/from-file.db"
`)
	t.Setenv("ENGAGE_DB_PATH", "/tmp/from-env.db")
	t.Setenv("ENGAGE_RESPONSE_TIMEOUT", "24")
	t.Setenv("ENGAGE_SCORE_MAX_AGE", "15m")
	t.Setenv("ENGAGE_KAFKA_ENABLED", "1")
	t.Setenv("ENGAGE_KAFKA_BROKERS", "a:9092, b:9092,")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-env.db", cfg.Database.Path)
	assert.Equal(t, 24*time.Hour, cfg.Engine.ResponseTimeout)
	assert.Equal(t, 15*time.Minute, cfg.Engine.ScoreMaxAge)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
}

func TestBadDurationOverride(t *testing.T) {
	t.Setenv("ENGAGE_SCORE_WINDOW", "soon")
	_, err := Load(writeConfig(t, ""))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres" }},
		{"sqlite without path", func(c *Config) { c.Database.Path = "" }},
		{"zero window", func(c *Config) { c.Engine.ScoreWindow = 0 }},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
