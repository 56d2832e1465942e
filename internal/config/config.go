// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/ricesearch/rice-eval/internal/ranking"
)

// Config holds all application configuration.
type Config struct {
	// Evaluation defaults
	Eval EvalConfig `yaml:"eval"`

	// HTTP server configuration
	Server ServerConfig `yaml:"server"`

	// Bus configuration
	Bus BusConfig `yaml:"bus"`

	// Snapshot store configuration
	Snapshot SnapshotConfig `yaml:"snapshot"`

	// Logging configuration
	Log LogConfig `yaml:"log"`
}

// EvalConfig holds evaluation defaults.
type EvalConfig struct {
	MaxN      int     `envconfig:"RICE_EVAL_MAX_N" yaml:"max_n"`
	// MaxNLimit is the largest max_n or cutoff a request may ask for.
	MaxNLimit int     `envconfig:"RICE_EVAL_MAX_N_LIMIT" yaml:"max_n_limit"`
	Workers   int     `envconfig:"RICE_EVAL_WORKERS" yaml:"workers"`
	ShardSize int     `envconfig:"RICE_EVAL_SHARD_SIZE" yaml:"shard_size"`
	Measures  string  `envconfig:"RICE_EVAL_MEASURES" yaml:"measures"`
	Alpha     float64 `envconfig:"RICE_EVAL_ALPHA" yaml:"alpha"` // F-measure weight on precision
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host      string `envconfig:"RICE_EVAL_HOST" yaml:"host"`
	Port      int    `envconfig:"RICE_EVAL_PORT" yaml:"port"`
	RateLimit int    `envconfig:"RICE_EVAL_RATE_LIMIT" yaml:"rate_limit"` // requests per second, 0 = disabled
	RateBurst int    `envconfig:"RICE_EVAL_RATE_BURST" yaml:"rate_burst"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type         string `envconfig:"RICE_EVAL_BUS_TYPE" yaml:"type"`
	KafkaBrokers string `envconfig:"RICE_EVAL_KAFKA_BROKERS" yaml:"kafka_brokers"`
	KafkaGroup   string `envconfig:"RICE_EVAL_KAFKA_GROUP" yaml:"kafka_group"`
}

// SnapshotConfig holds result snapshot storage settings.
type SnapshotConfig struct {
	Type     string        `envconfig:"RICE_EVAL_SNAPSHOT_TYPE" yaml:"type"`
	RedisURL string        `envconfig:"RICE_EVAL_REDIS_URL" yaml:"redis_url"`
	Prefix   string        `envconfig:"RICE_EVAL_SNAPSHOT_PREFIX" yaml:"prefix"`
	TTL      time.Duration `envconfig:"RICE_EVAL_SNAPSHOT_TTL" yaml:"ttl"` // 0 = no expiry
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"RICE_EVAL_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"RICE_EVAL_LOG_FORMAT" yaml:"format"`
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// Default returns a configuration populated with defaults.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func setDefaults(cfg *Config) {
	cfg.Eval = EvalConfig{
		MaxN:      10,
		MaxNLimit: 1000,
		Workers:   4,
		ShardSize: 64,
		Measures:  ranking.DefaultMeasures,
		Alpha:     0.5,
	}

	cfg.Server = ServerConfig{
		Host:      "0.0.0.0",
		Port:      8090,
		RateLimit: 0,
		RateBurst: 20,
	}

	cfg.Bus = BusConfig{
		Type:       "memory",
		KafkaGroup: "rice-eval",
	}

	cfg.Snapshot = SnapshotConfig{
		Type:     "memory",
		RedisURL: "redis://localhost:6379",
		Prefix:   "rice-eval:run:",
		TTL:      24 * time.Hour,
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	// Eval validation
	if c.Eval.MaxN < 1 {
		errs = append(errs, "max_n must be positive")
	}

	if c.Eval.MaxNLimit < 1 || c.Eval.MaxNLimit > ranking.MaxCutoffLimit {
		errs = append(errs, fmt.Sprintf("max_n_limit must be between 1 and %d", ranking.MaxCutoffLimit))
	} else if c.Eval.MaxN > c.Eval.MaxNLimit {
		errs = append(errs, fmt.Sprintf("max_n %d exceeds max_n_limit %d", c.Eval.MaxN, c.Eval.MaxNLimit))
	}

	if c.Eval.Workers < 1 {
		errs = append(errs, "workers must be positive")
	}

	if c.Eval.ShardSize < 1 {
		errs = append(errs, "shard_size must be positive")
	}

	if c.Eval.Alpha < 0 || c.Eval.Alpha > 1 {
		errs = append(errs, "alpha must be between 0 and 1")
	}

	if measures, err := ranking.ParseMeasures(c.Eval.Measures); err != nil {
		errs = append(errs, fmt.Sprintf("invalid measures: %v", err))
	} else if cut := ranking.MaxCutoff(measures); cut > c.Eval.MaxN {
		errs = append(errs, fmt.Sprintf("measure cutoff %d exceeds max_n %d", cut, c.Eval.MaxN))
	}

	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}

	if c.Server.RateLimit < 0 {
		errs = append(errs, "rate_limit must not be negative")
	}

	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		errs = append(errs, "rate_burst must be positive when rate limiting is enabled")
	}

	// Bus validation
	validBusTypes := map[string]bool{"memory": true, "kafka": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory or kafka)", c.Bus.Type))
	}

	if c.Bus.Type == "kafka" && strings.TrimSpace(c.Bus.KafkaBrokers) == "" {
		errs = append(errs, "kafka_brokers is required for the kafka bus")
	}

	// Snapshot validation
	validStoreTypes := map[string]bool{"memory": true, "redis": true}
	if !validStoreTypes[c.Snapshot.Type] {
		errs = append(errs, fmt.Sprintf("invalid snapshot type: %s (must be memory or redis)", c.Snapshot.Type))
	}

	if c.Snapshot.TTL < 0 {
		errs = append(errs, "snapshot ttl must not be negative")
	}

	// Log validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Address returns the server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Log.Level == "debug"
}
