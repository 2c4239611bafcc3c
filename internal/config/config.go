// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 Feedrank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/feedrank/feedrank

// Package config provides centralized configuration management.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in sensible defaults for all settings
//  2. Config File: Optional YAML config file (config.yaml)
//  3. Environment Variables: Override any setting
//
// Config is immutable after Load() and safe for concurrent read access.
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Database  DatabaseConfig  `koanf:"database"`
	Model     ModelConfig     `koanf:"model"`
	Trainer   TrainerConfig   `koanf:"trainer"`
	Retrain   RetrainConfig   `koanf:"retrain"`
	Server    ServerConfig    `koanf:"server"`
	API       APIConfig       `koanf:"api"`
	ColdStart ColdStartConfig `koanf:"cold_start"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// DatabaseConfig holds DuckDB connection settings.
//
// Environment Variables:
//   - DUCKDB_PATH: Database file path (empty = in-memory)
//   - DUCKDB_MAX_MEMORY: Memory limit, e.g. "2GB"
//   - DUCKDB_THREADS: Worker threads (0 = runtime.NumCPU())
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`
}

// ModelConfig holds model artifact storage settings.
//
// Environment Variables:
//   - MODEL_PATH: Artifact file path
//   - MODEL_KEEP_BACKUPS: Rotated backups to keep
type ModelConfig struct {
	ArtifactPath string `koanf:"artifact_path"`
	KeepBackups  int    `koanf:"keep_backups"`
}

// TrainerConfig holds training hyperparameters.
type TrainerConfig struct {
	Dim             int     `koanf:"dim"`
	LearningRate    float64 `koanf:"learning_rate"`
	Regularization  float64 `koanf:"regularization"`
	Epochs          int     `koanf:"epochs"`
	NegativeTries   int     `koanf:"negative_tries"`
	MaxSampleWeight float64 `koanf:"max_sample_weight"`
	Seed            int64   `koanf:"seed"`
}

// RetrainConfig holds retraining schedule and gating settings.
//
// Environment Variables:
//   - RETRAIN_ENABLED: Enable the background retraining service
//   - RETRAIN_INTERVAL: Time between scheduled runs
//   - RETRAIN_ON_STARTUP: Train immediately at startup
//   - RETRAIN_MAX_DURATION: Run timeout and lease staleness threshold
//   - RETRAIN_LOOKBACK: Interaction history window (0 = all)
//   - RETRAIN_MIN_INTERACTIONS: Minimum events required to train
//   - RETRAIN_QUALITY_FLOOR: Minimum holdout precision@k to publish (0 = off)
//   - RETRAIN_EVAL_K: Ranking cutoff for evaluation
//   - RETRAIN_LEASE_OWNER: Lease owner name (default hostname)
type RetrainConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Interval        time.Duration `koanf:"interval"`
	TrainOnStartup  bool          `koanf:"train_on_startup"`
	MaxDuration     time.Duration `koanf:"max_duration"`
	Lookback        time.Duration `koanf:"lookback"`
	MinInteractions int           `koanf:"min_interactions"`
	QualityFloor    float64       `koanf:"quality_floor"`
	EvalK           int           `koanf:"eval_k"`
	EvalHoldout     float64       `koanf:"eval_holdout"`
	LeaseOwner      string        `koanf:"lease_owner"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port    int           `koanf:"port"`
	Host    string        `koanf:"host"`
	Timeout time.Duration `koanf:"timeout"`
}

// APIConfig holds pagination and ranking limits.
//
// Environment Variables:
//   - TOP_K: Ranking depth the scorer keeps per request
//   - DEFAULT_PAGE_LIMIT: Page size when the client sends none
//   - MAX_PAGE_LIMIT: Largest page size a client may request
type APIConfig struct {
	TopK             int `koanf:"top_k"`
	DefaultPageLimit int `koanf:"default_page_limit"`
	MaxPageLimit     int `koanf:"max_page_limit"`
}

// ColdStartConfig holds the fallback ranking settings for low-history
// users.
//
// Environment Variables:
//   - COLD_START_INTERACTION_THRESHOLD: Engagement volume below which a
//     user is served by the cold-start strategy (negative disables)
//   - COLD_START_RECENCY_WINDOW_DAYS: Recency decay window in days
//   - COLD_START_WEIGHT_COMMUNITY: Community match weight
//   - COLD_START_WEIGHT_CONTENT: Tag affinity weight
//   - COLD_START_WEIGHT_RECENCY: Recency weight
//   - COLD_START_WEIGHT_POPULARITY: Popularity weight
type ColdStartConfig struct {
	InteractionThreshold int     `koanf:"interaction_threshold"`
	RecencyWindowDays    int     `koanf:"recency_window_days"`
	WeightCommunity      float64 `koanf:"weight_community"`
	WeightContent        float64 `koanf:"weight_content"`
	WeightRecency        float64 `koanf:"weight_recency"`
	WeightPopularity     float64 `koanf:"weight_popularity"`
}

// SecurityConfig holds rate limiting and CORS settings.
type SecurityConfig struct {
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}
