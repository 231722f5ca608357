// Package config loads platform configuration with the cascade:
// flags > ./journeysim.yaml > ~/.journeysim/journeysim.yaml > defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete generation configuration.
type Config struct {
	Version  string                  `mapstructure:"version" yaml:"version"`
	Defaults DefaultsConfig          `mapstructure:"defaults" yaml:"defaults"`
	Journeys map[string]JourneyRef   `mapstructure:"journeys" yaml:"journeys"`
	Triggers []TriggerConfig         `mapstructure:"triggers" yaml:"triggers"`
	Skills   map[string]SkillConfig  `mapstructure:"skills" yaml:"skills"`
	Output   OutputConfig            `mapstructure:"output" yaml:"output"`
	Logging  LoggingConfig           `mapstructure:"logging" yaml:"logging"`
}

// DefaultsConfig holds default run settings.
type DefaultsConfig struct {
	Count          int    `mapstructure:"count" yaml:"count"`
	RootSeed       int64  `mapstructure:"root_seed" yaml:"root_seed"`
	Workers        int    `mapstructure:"workers" yaml:"workers"`
	Journey        string `mapstructure:"journey" yaml:"journey"`
	Anchor         string `mapstructure:"anchor" yaml:"anchor"`
	MaxOccurrences int    `mapstructure:"max_occurrences" yaml:"max_occurrences"`
	AllowPreAnchor bool   `mapstructure:"allow_pre_anchor" yaml:"allow_pre_anchor"`
}

// JourneyRef points at one journey spec document.
type JourneyRef struct {
	File string `mapstructure:"file" yaml:"file"`
}

// TriggerConfig registers one cross-vertical trigger.
type TriggerConfig struct {
	SourceVertical  string         `mapstructure:"source_vertical" yaml:"source_vertical"`
	SourceEventType string         `mapstructure:"source_event" yaml:"source_event"`
	TargetVertical  string         `mapstructure:"target_vertical" yaml:"target_vertical"`
	TargetJourney   string         `mapstructure:"target_journey" yaml:"target_journey"`
	Priority        int            `mapstructure:"priority" yaml:"priority"`
	Condition       map[string]any `mapstructure:"condition" yaml:"condition"`
	Delay           map[string]any `mapstructure:"delay" yaml:"delay"`
}

// SkillConfig declares a static lookup table resolver.
type SkillConfig struct {
	Table map[string]any `mapstructure:"table" yaml:"table"`
}

// OutputConfig selects and configures the result sink.
type OutputConfig struct {
	// Format is one of "jsonl", "postgres", "nats".
	Format string `mapstructure:"format" yaml:"format"`

	// Path is the output file for the jsonl sink.
	Path string `mapstructure:"path" yaml:"path"`

	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
	NATS     NATSConfig     `mapstructure:"nats" yaml:"nats"`
}

// PostgresConfig configures the Postgres sink.
type PostgresConfig struct {
	DSN           string `mapstructure:"dsn" yaml:"dsn"`
	MigrationsDir string `mapstructure:"migrations_dir" yaml:"migrations_dir"`
}

// NATSConfig configures the NATS sink.
type NATSConfig struct {
	URL           string        `mapstructure:"url" yaml:"url"`
	Name          string        `mapstructure:"name" yaml:"name"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxReconnects int           `mapstructure:"max_reconnects" yaml:"max_reconnects"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Load loads configuration from the cascade. An explicit path pins the
// config file; otherwise the current directory and ~/.journeysim are
// searched and a missing file falls back to defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("journeysim")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("JOURNEYSIM")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".journeysim"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine; defaults apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("version", "1.0")

	v.SetDefault("defaults.count", 100)
	v.SetDefault("defaults.root_seed", 1)
	v.SetDefault("defaults.workers", 0)
	v.SetDefault("defaults.anchor", "2024-01-01")
	v.SetDefault("defaults.max_occurrences", 1000)
	v.SetDefault("defaults.allow_pre_anchor", false)

	v.SetDefault("output.format", "jsonl")
	v.SetDefault("output.path", "journeysim-out.jsonl")
	v.SetDefault("output.nats.url", "nats://localhost:4222")
	v.SetDefault("output.nats.name", "journeysim")
	v.SetDefault("output.nats.timeout", 5*time.Second)
	v.SetDefault("output.nats.max_reconnects", -1)
	v.SetDefault("output.postgres.migrations_dir", "migrations")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Defaults.Count <= 0 {
		return fmt.Errorf("defaults.count must be positive, got %d", c.Defaults.Count)
	}
	if _, err := c.AnchorTime(); err != nil {
		return err
	}

	for name, ref := range c.Journeys {
		if ref.File == "" {
			return fmt.Errorf("journey %s: file is required", name)
		}
	}

	for i, t := range c.Triggers {
		if t.SourceVertical == "" || t.SourceEventType == "" {
			return fmt.Errorf("trigger %d: source_vertical and source_event are required", i)
		}
		if t.TargetVertical == "" || t.TargetJourney == "" {
			return fmt.Errorf("trigger %d: target_vertical and target_journey are required", i)
		}
		if _, ok := c.Journeys[t.TargetJourney]; !ok {
			return fmt.Errorf("trigger %d: target journey %q is not configured", i, t.TargetJourney)
		}
	}

	switch c.Output.Format {
	case "jsonl":
		if c.Output.Path == "" {
			return fmt.Errorf("output.path is required for the jsonl sink")
		}
	case "postgres":
		if c.Output.Postgres.DSN == "" {
			return fmt.Errorf("output.postgres.dsn is required for the postgres sink")
		}
	case "nats":
		if c.Output.NATS.URL == "" {
			return fmt.Errorf("output.nats.url is required for the nats sink")
		}
	default:
		return fmt.Errorf("unknown output format %q", c.Output.Format)
	}

	return nil
}

// AnchorTime parses the configured anchor date.
func (c *Config) AnchorTime() (time.Time, error) {
	t, err := time.Parse("2006-01-02", c.Defaults.Anchor)
	if err != nil {
		return time.Time{}, fmt.Errorf("defaults.anchor %q: want YYYY-MM-DD", c.Defaults.Anchor)
	}
	return t.UTC(), nil
}
