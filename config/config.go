// Package config loads the daemon configuration from YAML.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xraph/lease"
	"github.com/xraph/lease/pricing"
	"github.com/xraph/lease/quota"
)

// Duration wraps time.Duration so YAML values like "5m" parse directly.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	// Driver is one of "memory", "sqlite", "mongo".
	Driver string `yaml:"driver"`
	// DSN is the SQLite file path or the MongoDB connection URI.
	DSN string `yaml:"dsn"`
	// Database names the MongoDB database. Ignored by other drivers.
	Database string `yaml:"database"`
}

// EngineConfig holds the engine tunables.
type EngineConfig struct {
	CollectionInterval Duration `yaml:"collection_interval"`
	DriverTimeout      Duration `yaml:"driver_timeout"`
}

// QuotaConfig maps tenants to quotas, with a fallback for unlisted ones.
type QuotaConfig struct {
	Default quota.Quota            `yaml:"default"`
	Tenants map[string]quota.Quota `yaml:"tenants"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `yaml:"level"`
	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// Config is the full daemon configuration.
type Config struct {
	Store   StoreConfig    `yaml:"store"`
	Engine  EngineConfig   `yaml:"engine"`
	Tariff  pricing.Tariff `yaml:"tariff"`
	Limits  lease.Limits   `yaml:"limits"`
	Quotas  QuotaConfig    `yaml:"quotas"`
	Metrics MetricsConfig  `yaml:"metrics"`
	Log     LogConfig      `yaml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Driver: "memory",
		},
		Engine: EngineConfig{
			CollectionInterval: Duration(lease.DefaultCollectionInterval),
			DriverTimeout:      Duration(lease.DefaultDriverTimeout),
		},
		Tariff: pricing.DefaultTariff,
		Limits: lease.DefaultLimits,
		Quotas: QuotaConfig{
			Default: quota.Quota{},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9464",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads and validates a YAML configuration file, layered over the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks driver names, rates, and tunables.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory":
	case "sqlite", "mongo":
		if c.Store.DSN == "" {
			return fmt.Errorf("config: store driver %q requires a dsn", c.Store.Driver)
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}

	if c.Store.Driver == "mongo" && c.Store.Database == "" {
		return fmt.Errorf("config: store driver mongo requires a database name")
	}

	if c.Engine.CollectionInterval <= 0 {
		return fmt.Errorf("config: collection_interval must be positive")
	}
	if c.Engine.DriverTimeout <= 0 {
		return fmt.Errorf("config: driver_timeout must be positive")
	}

	if err := c.Tariff.Validate(); err != nil {
		return err
	}

	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}

	return nil
}

// QuotaSource builds the static quota source from the config table.
func (c *Config) QuotaSource() quota.Source {
	return quota.Static(c.Quotas.Tenants, c.Quotas.Default)
}

// Logger builds an slog.Logger per the log section.
func (c *Config) Logger() *slog.Logger {
	var level slog.Level
	switch c.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if c.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
