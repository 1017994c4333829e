// Finmatch Recommender - Financial Product Recommendation Engine
// Copyright 2026 Finmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/finmatch/recommender

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/finmatch/recommender/internal/database"
	"github.com/finmatch/recommender/internal/eventprocessor"
	"github.com/finmatch/recommender/internal/products"
	"github.com/finmatch/recommender/internal/recommend"
	"github.com/finmatch/recommender/internal/recommend/model"
	"github.com/finmatch/recommender/internal/scheduler"
)

// ConfigPathEnvVar names the environment variable that points at an
// explicit config file.
const ConfigPathEnvVar = "RECOMMENDER_CONFIG"

// EnvPrefix is the prefix of all configuration environment variables.
const EnvPrefix = "RECOMMENDER_"

// DefaultConfigPaths are searched in order when no explicit config
// file is given.
var DefaultConfigPaths = []string{
	"recommender.yaml",
	"config/recommender.yaml",
	"/etc/finmatch/recommender.yaml",
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is json or console.
	Format string `koanf:"format"`
}

// NATSConfig holds broker configuration.
type NATSConfig struct {
	// Enabled turns event ingestion on. When false the service only
	// serves and refreshes from already-stored interactions.
	Enabled bool `koanf:"enabled"`

	// Embedded starts an in-process NATS server instead of connecting
	// to an external one.
	Embedded bool `koanf:"embedded"`

	// StoreDir is the JetStream storage directory of the embedded
	// server.
	StoreDir string `koanf:"store_dir"`

	// Subscriber configures the JetStream subscription.
	Subscriber eventprocessor.SubscriberConfig `koanf:"subscriber"`
}

// StorageConfig holds model generation store configuration.
type StorageConfig struct {
	// Dir is the Badger directory holding persisted generations.
	Dir string `koanf:"dir"`
}

// MetricsConfig holds the Prometheus exposition listener configuration.
type MetricsConfig struct {
	// Enabled turns the /metrics listener on.
	Enabled bool `koanf:"enabled"`

	// Addr is the listen address of the metrics endpoint.
	Addr string `koanf:"addr"`
}

// Config is the complete service configuration.
type Config struct {
	Logging   LoggingConfig                 `koanf:"logging"`
	Database  database.Config               `koanf:"database"`
	NATS      NATSConfig                    `koanf:"nats"`
	Products  products.Config               `koanf:"products"`
	Model     model.Config                  `koanf:"model"`
	Service   recommend.ServiceConfig       `koanf:"service"`
	Scheduler scheduler.Config              `koanf:"scheduler"`
	Storage   StorageConfig                 `koanf:"storage"`
	Metrics   MetricsConfig                 `koanf:"metrics"`
	Consumer  eventprocessor.ConsumerConfig `koanf:"consumer"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Database: database.DefaultConfig(),
		NATS: NATSConfig{
			Enabled:    true,
			Embedded:   false,
			StoreDir:   "data/jetstream",
			Subscriber: eventprocessor.DefaultSubscriberConfig(),
		},
		Products:  products.DefaultConfig(),
		Model:     model.DefaultConfig(),
		Service:   recommend.DefaultServiceConfig(),
		Scheduler: scheduler.DefaultConfig(),
		Storage: StorageConfig{
			Dir: "data/model",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
		Consumer: eventprocessor.DefaultConsumerConfig(),
	}
}

// Load builds the configuration from defaults, an optional YAML file,
// and environment variables, in increasing precedence.
func Load() (*Config, error) {
	return LoadFrom(findConfigFile())
}

// LoadFrom loads configuration with an explicit config file path.
// An empty path skips the file layer.
func LoadFrom(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	if err := normalizeTopics(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints that the type system cannot.
func (c *Config) Validate() error {
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}

	if c.NATS.Enabled && !c.NATS.Embedded && c.NATS.Subscriber.URL == "" {
		return fmt.Errorf("nats.subscriber.url is required when nats is enabled")
	}
	if c.Scheduler.Interval < 0 || c.Scheduler.FailureCooldown < 0 {
		return fmt.Errorf("scheduler durations must not be negative")
	}
	if c.Model.Factors < 0 || c.Model.Epochs < 0 {
		return fmt.Errorf("model.factors and model.epochs must not be negative")
	}
	if c.Service.FallbackScore < 0 || c.Service.FallbackScore > 1 {
		return fmt.Errorf("service.fallback_score must be within [0, 1]")
	}
	return nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransform maps environment variable names to config paths:
// RECOMMENDER_DATABASE_PATH -> database.path,
// RECOMMENDER_SCHEDULER_FAILURE_COOLDOWN -> scheduler.failure_cooldown,
// RECOMMENDER_NATS_SUBSCRIBER_URL -> nats.subscriber.url.
// Only the section (and the subscriber subsection) become path
// separators; remaining underscores stay part of the key.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))

	if rest, ok := strings.CutPrefix(key, "nats_subscriber_"); ok {
		return "nats.subscriber." + rest
	}

	section, rest, found := strings.Cut(key, "_")
	if !found {
		return key
	}
	return section + "." + rest
}

// normalizeTopics converts a comma-separated consumer.topics env value
// into a slice.
func normalizeTopics(k *koanf.Koanf) error {
	val := k.Get("consumer.topics")
	strVal, ok := val.(string)
	if !ok || strVal == "" {
		return nil
	}

	parts := strings.Split(strVal, ",")
	topics := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			topics = append(topics, p)
		}
	}
	if err := k.Set("consumer.topics", topics); err != nil {
		return fmt.Errorf("normalizing consumer.topics: %w", err)
	}
	return nil
}
