// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 Feedrank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/feedrank/feedrank

package config

import "fmt"

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateModel(); err != nil {
		return err
	}

	if err := c.validateTrainer(); err != nil {
		return err
	}

	if err := c.validateRetrain(); err != nil {
		return err
	}

	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateAPI(); err != nil {
		return err
	}

	if err := c.validateColdStart(); err != nil {
		return err
	}

	return c.validateLogging()
}

// validateDatabase validates DuckDB settings.
func (c *Config) validateDatabase() error {
	if c.Database.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must not be negative")
	}
	return nil
}

// validateModel validates artifact storage settings.
func (c *Config) validateModel() error {
	if c.Model.ArtifactPath == "" {
		return fmt.Errorf("MODEL_PATH is required")
	}
	if c.Model.KeepBackups < 0 {
		return fmt.Errorf("MODEL_KEEP_BACKUPS must not be negative")
	}
	return nil
}

// validateTrainer validates training hyperparameters.
func (c *Config) validateTrainer() error {
	if c.Trainer.Dim <= 0 {
		return fmt.Errorf("TRAINER_DIM must be positive")
	}
	if c.Trainer.LearningRate <= 0 {
		return fmt.Errorf("TRAINER_LEARNING_RATE must be positive")
	}
	if c.Trainer.Regularization < 0 {
		return fmt.Errorf("TRAINER_REGULARIZATION must not be negative")
	}
	if c.Trainer.Epochs <= 0 {
		return fmt.Errorf("TRAINER_EPOCHS must be positive")
	}
	return nil
}

// validateRetrain validates retraining settings (only if enabled).
func (c *Config) validateRetrain() error {
	if !c.Retrain.Enabled {
		return nil
	}

	if c.Retrain.Interval <= 0 {
		return fmt.Errorf("RETRAIN_INTERVAL must be positive when RETRAIN_ENABLED=true")
	}
	if c.Retrain.MaxDuration <= 0 {
		return fmt.Errorf("RETRAIN_MAX_DURATION must be positive")
	}
	if c.Retrain.MinInteractions < 1 {
		return fmt.Errorf("RETRAIN_MIN_INTERACTIONS must be at least 1")
	}
	if c.Retrain.QualityFloor < 0 || c.Retrain.QualityFloor > 1 {
		return fmt.Errorf("RETRAIN_QUALITY_FLOOR must be between 0 and 1")
	}
	if c.Retrain.EvalHoldout < 0 || c.Retrain.EvalHoldout >= 1 {
		return fmt.Errorf("RETRAIN_EVAL_HOLDOUT must be in [0, 1)")
	}
	return nil
}

// validateServer validates HTTP server settings.
func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	return nil
}

// validateAPI validates pagination and ranking limits.
func (c *Config) validateAPI() error {
	if c.API.TopK < 1 {
		return fmt.Errorf("TOP_K must be at least 1")
	}
	if c.API.DefaultPageLimit < 1 {
		return fmt.Errorf("DEFAULT_PAGE_LIMIT must be at least 1")
	}
	if c.API.MaxPageLimit < c.API.DefaultPageLimit {
		return fmt.Errorf("MAX_PAGE_LIMIT must be at least DEFAULT_PAGE_LIMIT")
	}
	return nil
}

// validateColdStart validates the low-history fallback settings.
func (c *Config) validateColdStart() error {
	if c.ColdStart.RecencyWindowDays < 1 {
		return fmt.Errorf("COLD_START_RECENCY_WINDOW_DAYS must be at least 1")
	}
	for name, w := range map[string]float64{
		"COLD_START_WEIGHT_COMMUNITY":  c.ColdStart.WeightCommunity,
		"COLD_START_WEIGHT_CONTENT":    c.ColdStart.WeightContent,
		"COLD_START_WEIGHT_RECENCY":    c.ColdStart.WeightRecency,
		"COLD_START_WEIGHT_POPULARITY": c.ColdStart.WeightPopularity,
	} {
		if w < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

// validateLogging validates log output settings.
func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error, fatal")
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console")
	}

	return nil
}
