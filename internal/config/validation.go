package config

import (
	"errors"
	"fmt"
	"time"

	"git.home.luguber.info/inful/chronicle/internal/routing"
)

// Validate reports the first configuration error found. Validation runs
// after defaults and environment overrides have been applied.
func (c *Config) Validate() error {
	switch c.Backend {
	case "local":
		if !c.Local.InMemory && c.Local.DatabasePath == "" {
			return errors.New("local backend requires database_path or in_memory")
		}
	case "nats":
		if c.NATS.URL == "" {
			return errors.New("nats backend requires a url")
		}
		if c.NATS.Replicas < 1 || c.NATS.Replicas > 5 {
			return fmt.Errorf("nats replicas must be between 1 and 5, got %d", c.NATS.Replicas)
		}
		if d, err := time.ParseDuration(c.NATS.DuplicateWindow); err != nil || d < 0 {
			return fmt.Errorf("invalid nats duplicate_window: %s", c.NATS.DuplicateWindow)
		}
		if d, err := time.ParseDuration(c.NATS.OpTimeout); err != nil || d <= 0 {
			return fmt.Errorf("invalid nats op_timeout: %s", c.NATS.OpTimeout)
		}
	default:
		return fmt.Errorf("unknown backend %q (expected local or nats)", c.Backend)
	}

	if !c.Payloads.InMemory && c.Payloads.Path == "" {
		return errors.New("payloads require a path or in_memory")
	}

	if c.Projection.Lanes < 1 {
		return fmt.Errorf("projection lanes must be at least 1, got %d", c.Projection.Lanes)
	}
	if _, err := routing.ParseStrategy(c.Projection.Strategy); err != nil {
		return fmt.Errorf("projection strategy: %w", err)
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return errors.New("metrics require a listen address when enabled")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}

	return nil
}
