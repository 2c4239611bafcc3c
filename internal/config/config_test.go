// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 Feedrank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/feedrank/feedrank

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load with defaults failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Path != "/data/feedrank.duckdb" {
		t.Errorf("database path = %q", cfg.Database.Path)
	}
	if cfg.Model.KeepBackups != 5 {
		t.Errorf("keep backups = %d, want 5", cfg.Model.KeepBackups)
	}
	if cfg.Trainer.Dim != 64 || cfg.Trainer.Epochs != 30 {
		t.Errorf("trainer defaults = %+v", cfg.Trainer)
	}
	if cfg.Retrain.Interval != 24*time.Hour || cfg.Retrain.EvalK != 10 {
		t.Errorf("retrain defaults = %+v", cfg.Retrain)
	}
	if cfg.API.TopK != 100 || cfg.API.DefaultPageLimit != 20 || cfg.API.MaxPageLimit != 100 {
		t.Errorf("api defaults = %+v", cfg.API)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging defaults = %+v", cfg.Logging)
	}
	if cfg.ColdStart.InteractionThreshold != 3 || cfg.ColdStart.RecencyWindowDays != 7 {
		t.Errorf("cold start defaults = %+v", cfg.ColdStart)
	}
	if cfg.ColdStart.WeightCommunity != 0.4 || cfg.ColdStart.WeightPopularity != 0.1 {
		t.Errorf("cold start weights = %+v", cfg.ColdStart)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("DUCKDB_PATH", "/tmp/test.duckdb")
	t.Setenv("MODEL_PATH", "/tmp/test.model")
	t.Setenv("TOP_K", "50")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("RETRAIN_MIN_INTERACTIONS", "25")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("COLD_START_INTERACTION_THRESHOLD", "5")
	t.Setenv("COLD_START_WEIGHT_RECENCY", "0.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("server port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Database.Path != "/tmp/test.duckdb" {
		t.Errorf("database path = %q", cfg.Database.Path)
	}
	if cfg.Model.ArtifactPath != "/tmp/test.model" {
		t.Errorf("artifact path = %q", cfg.Model.ArtifactPath)
	}
	if cfg.API.TopK != 50 {
		t.Errorf("top_k = %d, want 50", cfg.API.TopK)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Retrain.MinInteractions != 25 {
		t.Errorf("min interactions = %d, want 25", cfg.Retrain.MinInteractions)
	}
	if len(cfg.Security.CORSOrigins) != 2 || cfg.Security.CORSOrigins[0] != "https://a.example" {
		t.Errorf("cors origins = %v", cfg.Security.CORSOrigins)
	}
	if cfg.ColdStart.InteractionThreshold != 5 {
		t.Errorf("cold start threshold = %d, want 5", cfg.ColdStart.InteractionThreshold)
	}
	if cfg.ColdStart.WeightRecency != 0.5 {
		t.Errorf("cold start recency weight = %v, want 0.5", cfg.ColdStart.WeightRecency)
	}
}

func TestLoadUnmappedEnvIgnored(t *testing.T) {
	t.Setenv("RANDOM_UNRELATED_VAR", "whatever")

	if _, err := Load(); err != nil {
		t.Fatalf("unmapped env var must not break loading: %v", err)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("server:\n  port: 7070\nmodel:\n  artifact_path: /var/lib/feedrank/model\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("server port = %d, want 7070 from file", cfg.Server.Port)
	}
	if cfg.Model.ArtifactPath != "/var/lib/feedrank/model" {
		t.Errorf("artifact path = %q", cfg.Model.ArtifactPath)
	}
	// Settings absent from the file keep defaults.
	if cfg.API.TopK != 100 {
		t.Errorf("top_k = %d, want default 100", cfg.API.TopK)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 7070\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("HTTP_PORT", "9999")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("server port = %d, env must win over file", cfg.Server.Port)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty model path", func(c *Config) { c.Model.ArtifactPath = "" }},
		{"negative backups", func(c *Config) { c.Model.KeepBackups = -1 }},
		{"zero dim", func(c *Config) { c.Trainer.Dim = 0 }},
		{"zero learning rate", func(c *Config) { c.Trainer.LearningRate = 0 }},
		{"zero epochs", func(c *Config) { c.Trainer.Epochs = 0 }},
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }},
		{"zero timeout", func(c *Config) { c.Server.Timeout = 0 }},
		{"zero top_k", func(c *Config) { c.API.TopK = 0 }},
		{"max below default page limit", func(c *Config) { c.API.MaxPageLimit = 5 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"zero retrain interval", func(c *Config) { c.Retrain.Interval = 0 }},
		{"quality floor above 1", func(c *Config) { c.Retrain.QualityFloor = 1.5 }},
		{"holdout at 1", func(c *Config) { c.Retrain.EvalHoldout = 1 }},
		{"zero recency window", func(c *Config) { c.ColdStart.RecencyWindowDays = 0 }},
		{"negative cold start weight", func(c *Config) { c.ColdStart.WeightContent = -0.1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidateRetrainSkippedWhenDisabled(t *testing.T) {
	cfg := defaultConfig()
	cfg.Retrain.Enabled = false
	cfg.Retrain.Interval = 0

	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled retrain must not be validated: %v", err)
	}
}
