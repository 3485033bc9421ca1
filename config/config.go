// ABOUTME: Engine configuration loaded from a TOML file, a .env file and ENGAGE_* variables
// ABOUTME: Defaults put the database and rule file under the XDG data directory
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
)

// AppName names the XDG data subdirectory.
const AppName = "engage"

type DatabaseConfig struct {
	Driver string `toml:"driver"` // sqlite or postgres
	Path   string `toml:"path"`
	DSN    string `toml:"dsn"`
}

type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
	JSON  bool   `toml:"json"`
}

type EngineConfig struct {
	RulesFile         string        `toml:"rules_file"`
	ScoreFormula      string        `toml:"score_formula"`
	ScoreWindow       time.Duration `toml:"score_window"`
	ScoreMaxAge       time.Duration `toml:"score_max_age"`
	ResponseTimeout   time.Duration `toml:"response_timeout"`
	DispatchTopic     string        `toml:"dispatch_topic"`
	EscalationTopic   string        `toml:"escalation_topic"`
	RelayBatchSize    int           `toml:"relay_batch_size"`
	RelayPollInterval time.Duration `toml:"relay_poll_interval"`
	RelayMaxAttempts  int           `toml:"relay_max_attempts"`
}

type KafkaConfig struct {
	Enabled  bool     `toml:"enabled"`
	Brokers  []string `toml:"brokers"`
	ClientID string   `toml:"client_id"`
}

type MCPConfig struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Config is the full engine configuration.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Log      LogConfig      `toml:"log"`
	Engine   EngineConfig   `toml:"engine"`
	Kafka    KafkaConfig    `toml:"kafka"`
	MCP      MCPConfig      `toml:"mcp"`
}

// DataDir returns the XDG data directory for engage.
func DataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// DefaultPath is where Load looks when no config file is given.
func DefaultPath() string {
	return filepath.Join(DataDir(), "config.toml")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   filepath.Join(DataDir(), "engage.db"),
		},
		Log: LogConfig{Level: "info"},
		Engine: EngineConfig{
			RulesFile:         filepath.Join(DataDir(), "rules.toml"),
			ScoreFormula:      "v1",
			ScoreWindow:       30 * 24 * time.Hour,
			ScoreMaxAge:       time.Hour,
			ResponseTimeout:   72 * time.Hour,
			DispatchTopic:     "outreach.dispatch",
			EscalationTopic:   "outreach.escalation",
			RelayBatchSize:    200,
			RelayPollInterval: 500 * time.Millisecond,
			RelayMaxAttempts:  12,
		},
		Kafka: KafkaConfig{ClientID: AppName},
		MCP:   MCPConfig{Name: "engage", Version: "0.1.0"},
	}
}

// Load reads path (DefaultPath when empty) over the defaults, then applies a .env
// file from the working directory and ENGAGE_* environment overrides. A missing
// config or .env file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || explicit {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	if c.Engine.ScoreWindow <= 0 {
		return errors.New("engine.score_window must be positive")
	}
	if c.Engine.ResponseTimeout <= 0 {
		return errors.New("engine.response_timeout must be positive")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required when kafka is enabled")
	}
	return nil
}

// DSN returns the connection string for the configured driver.
func (c *Config) DSN() string {
	if c.Database.Driver == "postgres" {
		return c.Database.DSN
	}
	return c.Database.Path
}

// applyEnvOverrides applies ENGAGE_* variables on top of file values.
func applyEnvOverrides(cfg *Config) error {
	cfg.Database.Driver = getString("ENGAGE_DB_DRIVER", cfg.Database.Driver)
	cfg.Database.Path = getString("ENGAGE_DB_PATH", cfg.Database.Path)
	cfg.Database.DSN = getString("ENGAGE_DB_DSN", cfg.Database.DSN)
	cfg.Log.Level = getString("ENGAGE_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getString("ENGAGE_LOG_FILE", cfg.Log.File)
	cfg.Engine.RulesFile = getString("ENGAGE_RULES_FILE", cfg.Engine.RulesFile)
	cfg.Engine.ScoreFormula = getString("ENGAGE_SCORE_FORMULA", cfg.Engine.ScoreFormula)
	cfg.Engine.DispatchTopic = getString("ENGAGE_DISPATCH_TOPIC", cfg.Engine.DispatchTopic)
	cfg.Engine.EscalationTopic = getString("ENGAGE_ESCALATION_TOPIC", cfg.Engine.EscalationTopic)

	var err error
	if cfg.Engine.ScoreWindow, err = getDuration("ENGAGE_SCORE_WINDOW", cfg.Engine.ScoreWindow); err != nil {
		return err
	}
	if cfg.Engine.ScoreMaxAge, err = getDuration("ENGAGE_SCORE_MAX_AGE", cfg.Engine.ScoreMaxAge); err != nil {
		return err
	}
	if cfg.Engine.ResponseTimeout, err = getDuration("ENGAGE_RESPONSE_TIMEOUT", cfg.Engine.ResponseTimeout); err != nil {
		return err
	}

	if brokers := os.Getenv("ENGAGE_KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = splitList(brokers)
	}
	if enabled := os.Getenv("ENGAGE_KAFKA_ENABLED"); enabled != "" {
		cfg.Kafka.Enabled = enabled == "true" || enabled == "1"
	}
	return nil
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getDuration accepts Go durations ("90m") and bare hour counts ("72").
func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Hour, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(csv string) []string {
	var out []string
	for _, s := range strings.Split(csv, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
