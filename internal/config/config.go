// Package config loads and validates the chronicle configuration file.
//
// Configuration is YAML with environment variable expansion, so secrets
// like NATS credentials can live in the process environment or a .env
// file instead of the config file itself.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Backend    string           `yaml:"backend"` // "local" or "nats"
	Local      LocalConfig      `yaml:"local"`
	NATS       NATSConfig       `yaml:"nats"`
	Payloads   PayloadConfig    `yaml:"payloads"`
	Projection ProjectionConfig `yaml:"projection"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LocalConfig configures the embedded SQLite backend.
type LocalConfig struct {
	DatabasePath string `yaml:"database_path"`
	InMemory     bool   `yaml:"in_memory,omitempty"`
}

// NATSConfig configures the JetStream backend. Durations are
// time.ParseDuration strings, e.g. "2m" or "5s".
type NATSConfig struct {
	URL             string `yaml:"url"`
	Stream          string `yaml:"stream,omitempty"`
	SubjectPrefix   string `yaml:"subject_prefix,omitempty"`
	Replicas        int    `yaml:"replicas,omitempty"`
	DuplicateWindow string `yaml:"duplicate_window,omitempty"`
	OpTimeout       string `yaml:"op_timeout,omitempty"`
	CacheMaxBytes   int64  `yaml:"cache_max_bytes,omitempty"`
}

// DuplicateWindowDuration returns the parsed duplicate window.
// Validate guarantees the string parses.
func (n NATSConfig) DuplicateWindowDuration() time.Duration {
	d, _ := time.ParseDuration(n.DuplicateWindow)
	return d
}

// OpTimeoutDuration returns the parsed per-operation timeout.
func (n NATSConfig) OpTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(n.OpTimeout)
	return d
}

// PayloadConfig configures the content-addressed payload store.
type PayloadConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory,omitempty"`
	// CompressionThreshold is the payload size in bytes above which
	// compression is attempted. Negative disables compression.
	CompressionThreshold int `yaml:"compression_threshold,omitempty"`
}

// ProjectionConfig configures projection rebuilds.
type ProjectionConfig struct {
	Lanes    int    `yaml:"lanes,omitempty"`
	Strategy string `yaml:"strategy,omitempty"` // round_robin, load_based, capability_score
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Listen  string `yaml:"listen,omitempty"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn, error
	Format string `yaml:"format,omitempty"` // text or json
}

// Load loads configuration from the specified file.
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists. Missing files are fine.
	_ = godotenv.Load(".env", ".env.local")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyDefaults()
	config.applyEnvOverrides()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Default returns a configuration with all defaults applied and the
// local backend selected.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Backend == "" {
		c.Backend = "local"
	}
	if c.Local.DatabasePath == "" {
		c.Local.DatabasePath = "./chronicle.db"
	}
	if c.NATS.Stream == "" {
		c.NATS.Stream = "CHRONICLE-EVENTS"
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "events"
	}
	if c.NATS.Replicas == 0 {
		c.NATS.Replicas = 1
	}
	if c.NATS.DuplicateWindow == "" {
		c.NATS.DuplicateWindow = "2m"
	}
	if c.NATS.OpTimeout == "" {
		c.NATS.OpTimeout = "5s"
	}
	if c.NATS.CacheMaxBytes == 0 {
		c.NATS.CacheMaxBytes = 64 << 20
	}
	if c.Payloads.Path == "" {
		c.Payloads.Path = "./payloads"
	}
	if c.Payloads.CompressionThreshold == 0 {
		c.Payloads.CompressionThreshold = 1024
	}
	if c.Projection.Lanes == 0 {
		c.Projection.Lanes = 4
	}
	if c.Projection.Strategy == "" {
		c.Projection.Strategy = "round_robin"
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9464"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// applyEnvOverrides lets the environment win over the config file for
// the settings that vary between deployments.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CHRONICLE_BACKEND"); v != "" {
		c.Backend = v
	}
	if v := os.Getenv("CHRONICLE_NATS_URL"); v != "" {
		c.NATS.URL = v
	}
	if v := os.Getenv("CHRONICLE_DATABASE_PATH"); v != "" {
		c.Local.DatabasePath = v
	}
	if v := os.Getenv("CHRONICLE_PAYLOAD_PATH"); v != "" {
		c.Payloads.Path = v
	}
	if v := os.Getenv("CHRONICLE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Init creates a new configuration file with example content.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := Default()
	example.NATS.URL = "nats://localhost:4222"
	example.Metrics.Enabled = true

	data, err := yaml.Marshal(example)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
