// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 Feedrank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/feedrank/feedrank

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/feedrank/config.yaml",
	"/etc/feedrank/config.yml",
}

// ConfigPathEnvVar is the environment variable that overrides the config
// file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:      "/data/feedrank.duckdb",
			MaxMemory: "2GB",
			Threads:   0, // 0 = use runtime.NumCPU()
		},
		Model: ModelConfig{
			ArtifactPath: "/data/model/feedrank.model",
			KeepBackups:  5,
		},
		Trainer: TrainerConfig{
			Dim:             64,
			LearningRate:    0.05,
			Regularization:  0.01,
			Epochs:          30,
			NegativeTries:   100,
			MaxSampleWeight: 10,
			Seed:            42,
		},
		Retrain: RetrainConfig{
			Enabled:         true,
			Interval:        24 * time.Hour,
			TrainOnStartup:  false,
			MaxDuration:     30 * time.Minute,
			Lookback:        0, // all history
			MinInteractions: 10,
			QualityFloor:    0, // gate off by default
			EvalK:           10,
			EvalHoldout:     0.2,
			LeaseOwner:      "", // hostname
		},
		Server: ServerConfig{
			Port:    8080,
			Host:    "0.0.0.0",
			Timeout: 30 * time.Second,
		},
		API: APIConfig{
			TopK:             100,
			DefaultPageLimit: 20,
			MaxPageLimit:     100,
		},
		ColdStart: ColdStartConfig{
			InteractionThreshold: 3,
			RecencyWindowDays:    7,
			WeightCommunity:      0.4,
			WeightContent:        0.3,
			WeightRecency:        0.2,
			WeightPopularity:     0.1,
		},
		Security: SecurityConfig{
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
			CORSOrigins:       []string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in defaults
//  2. Config file: optional YAML file (if present)
//  3. Environment variables: override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// HTTP_PORT -> server.port, MODEL_PATH -> model.artifact_path, etc.
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the first file found, or empty string if none exists.
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

// sliceConfigPaths defines which config paths are parsed as comma-separated
// slices when they arrive as env var strings.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice (from YAML file): nothing to do.
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		if strVal, ok := val.(string); ok {
			if strVal == "" {
				continue
			}
			parts := strings.Split(strVal, ",")
			trimmed := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					trimmed = append(trimmed, p)
				}
			}
			if len(trimmed) > 0 {
				if err := k.Set(path, trimmed); err != nil {
					return fmt.Errorf("failed to set %s: %w", path, err)
				}
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped keys return empty string and are skipped, preventing random
// environment variables from polluting the config.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Database mappings
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		// Model artifact mappings
		"model_path":         "model.artifact_path",
		"model_keep_backups": "model.keep_backups",

		// Trainer mappings
		"trainer_dim":               "trainer.dim",
		"trainer_learning_rate":     "trainer.learning_rate",
		"trainer_regularization":    "trainer.regularization",
		"trainer_epochs":            "trainer.epochs",
		"trainer_negative_tries":    "trainer.negative_tries",
		"trainer_max_sample_weight": "trainer.max_sample_weight",
		"trainer_seed":              "trainer.seed",

		// Retrain mappings
		"retrain_enabled":          "retrain.enabled",
		"retrain_interval":         "retrain.interval",
		"retrain_on_startup":       "retrain.train_on_startup",
		"retrain_max_duration":     "retrain.max_duration",
		"retrain_lookback":         "retrain.lookback",
		"retrain_min_interactions": "retrain.min_interactions",
		"retrain_quality_floor":    "retrain.quality_floor",
		"retrain_eval_k":           "retrain.eval_k",
		"retrain_eval_holdout":     "retrain.eval_holdout",
		"retrain_lease_owner":      "retrain.lease_owner",

		// Server mappings
		"http_port":    "server.port",
		"http_host":    "server.host",
		"http_timeout": "server.timeout",

		// API mappings
		"top_k":              "api.top_k",
		"default_page_limit": "api.default_page_limit",
		"max_page_limit":     "api.max_page_limit",

		// Cold-start mappings
		"cold_start_interaction_threshold": "cold_start.interaction_threshold",
		"cold_start_recency_window_days":   "cold_start.recency_window_days",
		"cold_start_weight_community":      "cold_start.weight_community",
		"cold_start_weight_content":        "cold_start.weight_content",
		"cold_start_weight_recency":        "cold_start.weight_recency",
		"cold_start_weight_popularity":     "cold_start.weight_popularity",

		// Security mappings
		"rate_limit_requests": "security.rate_limit_reqs",
		"rate_limit_window":   "security.rate_limit_window",
		"disable_rate_limit":  "security.rate_limit_disabled",
		"cors_origins":        "security.cors_origins",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	return ""
}
