package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chronicle.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "backend: local\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Local.DatabasePath != "./chronicle.db" {
		t.Errorf("unexpected database path %s", cfg.Local.DatabasePath)
	}
	if cfg.NATS.Stream != "CHRONICLE-EVENTS" {
		t.Errorf("unexpected stream %s", cfg.NATS.Stream)
	}
	if cfg.NATS.DuplicateWindowDuration() != 2*time.Minute {
		t.Errorf("unexpected duplicate window %v", cfg.NATS.DuplicateWindow)
	}
	if cfg.Payloads.CompressionThreshold != 1024 {
		t.Errorf("unexpected compression threshold %d", cfg.Payloads.CompressionThreshold)
	}
	if cfg.Projection.Lanes != 4 || cfg.Projection.Strategy != "round_robin" {
		t.Errorf("unexpected projection defaults %+v", cfg.Projection)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("unexpected logging defaults %+v", cfg.Logging)
	}
}

func TestLoadNATSBackend(t *testing.T) {
	path := writeConfig(t, `
backend: nats
nats:
  url: nats://localhost:4222
  replicas: 3
  duplicate_window: 5m
payloads:
  in_memory: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("unexpected url %s", cfg.NATS.URL)
	}
	if cfg.NATS.Replicas != 3 {
		t.Errorf("unexpected replicas %d", cfg.NATS.Replicas)
	}
	if cfg.NATS.DuplicateWindowDuration() != 5*time.Minute {
		t.Errorf("unexpected duplicate window %v", cfg.NATS.DuplicateWindow)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_NATS_HOST", "nats.internal:4222")
	path := writeConfig(t, `
backend: nats
nats:
  url: nats://${TEST_NATS_HOST}
payloads:
  in_memory: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NATS.URL != "nats://nats.internal:4222" {
		t.Errorf("env expansion failed, got %s", cfg.NATS.URL)
	}
}

func TestEnvOverridesWin(t *testing.T) {
	t.Setenv("CHRONICLE_BACKEND", "nats")
	t.Setenv("CHRONICLE_NATS_URL", "nats://override:4222")
	path := writeConfig(t, "backend: local\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend != "nats" {
		t.Errorf("expected nats backend, got %s", cfg.Backend)
	}
	if cfg.NATS.URL != "nats://override:4222" {
		t.Errorf("expected override url, got %s", cfg.NATS.URL)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Backend = "etcd" }},
		{"nats without url", func(c *Config) { c.Backend = "nats"; c.NATS.URL = "" }},
		{"too many replicas", func(c *Config) {
			c.Backend = "nats"
			c.NATS.URL = "nats://localhost:4222"
			c.NATS.Replicas = 7
		}},
		{"bad duplicate window", func(c *Config) {
			c.Backend = "nats"
			c.NATS.URL = "nats://localhost:4222"
			c.NATS.DuplicateWindow = "soon"
		}},
		{"zero lanes", func(c *Config) { c.Projection.Lanes = -1 }},
		{"bad strategy", func(c *Config) { c.Projection.Strategy = "lowest-latency" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"no payload path", func(c *Config) { c.Payloads.Path = ""; c.Payloads.InMemory = false }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chronicle.yaml")

	if err := Init(path, false); err != nil {
		t.Fatalf("Init: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load of generated config: %v", err)
	}
	if cfg.NATS.URL == "" {
		t.Error("expected example NATS url")
	}

	if err := Init(path, false); err == nil {
		t.Error("expected error without force")
	}
	if err := Init(path, true); err != nil {
		t.Errorf("Init with force: %v", err)
	}
}
