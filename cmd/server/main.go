// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 Feedrank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/feedrank/feedrank

// Package main is the entry point for the Feedrank server.
//
// Feedrank serves personalized feed rankings from a trained hybrid
// recommendation model and retrains the model in the background from
// engagement data.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 layered loading (defaults, file, env)
//  2. Data source: DuckDB engagement store with circuit breaker
//  3. Artifact store: compressed, checksummed model files with backups
//  4. Model store: hot-swappable serving snapshot, loaded from the artifact
//  5. Retraining: scheduled orchestrator under the training supervisor layer
//  6. HTTP server: recommendation, status, admin and health endpoints
//
// # Startup Model Policy
//
// If a model artifact exists it is loaded before serving; a corrupt or
// unreadable artifact is fatal. If no artifact exists the server starts
// only when retraining is enabled, serving 503 on recommendation requests
// until the first run publishes a model.
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server drains
// in-flight requests, the training layer releases its lease, and the
// database closes.
//
// # Example Usage
//
//	export DUCKDB_PATH=/data/feedrank.duckdb
//	export MODEL_PATH=/data/model/feedrank.model
//	export RETRAIN_ENABLED=true
//	export RETRAIN_ON_STARTUP=true
//	./feedrank
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/feedrank/feedrank/internal/api"
	"github.com/feedrank/feedrank/internal/artifact"
	"github.com/feedrank/feedrank/internal/config"
	"github.com/feedrank/feedrank/internal/datasource"
	"github.com/feedrank/feedrank/internal/feature"
	"github.com/feedrank/feedrank/internal/logging"
	"github.com/feedrank/feedrank/internal/model"
	"github.com/feedrank/feedrank/internal/retrain"
	"github.com/feedrank/feedrank/internal/scorer"
	"github.com/feedrank/feedrank/internal/supervisor"
	"github.com/feedrank/feedrank/internal/supervisor/services"
	"github.com/feedrank/feedrank/internal/trainer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Default logger; config is not available yet.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("model_path", cfg.Model.ArtifactPath).
		Bool("retrain_enabled", cfg.Retrain.Enabled).
		Msg("Starting Feedrank")

	db, err := datasource.New(datasource.Config{
		Path:      cfg.Database.Path,
		Threads:   cfg.Database.Threads,
		MaxMemory: cfg.Database.MaxMemory,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized successfully")

	artifacts, err := artifact.NewStore(cfg.Model.ArtifactPath, cfg.Model.KeepBackups)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize artifact store")
	}

	store := model.NewStore(artifacts)
	if err := loadInitialModel(store, artifacts, cfg); err != nil {
		logging.Fatal().Err(err).Msg("Failed to load initial model")
	}

	sc := scorer.New(scorer.Config{
		TopK:         cfg.API.TopK,
		DefaultLimit: cfg.API.DefaultPageLimit,
		MaxLimit:     cfg.API.MaxPageLimit,
		ColdStart: scorer.ColdStartConfig{
			InteractionThreshold: cfg.ColdStart.InteractionThreshold,
			RecencyWindowDays:    cfg.ColdStart.RecencyWindowDays,
			WeightCommunity:      cfg.ColdStart.WeightCommunity,
			WeightContent:        cfg.ColdStart.WeightContent,
			WeightRecency:        cfg.ColdStart.WeightRecency,
			WeightPopularity:     cfg.ColdStart.WeightPopularity,
		},
	})

	orchestrator := retrain.New(retrain.Config{
		LeaseOwner:          cfg.Retrain.LeaseOwner,
		MaxTrainingDuration: cfg.Retrain.MaxDuration,
		Lookback:            cfg.Retrain.Lookback,
		MinInteractions:     cfg.Retrain.MinInteractions,
		QualityFloor:        cfg.Retrain.QualityFloor,
		EvalK:               cfg.Retrain.EvalK,
		EvalHoldout:         cfg.Retrain.EvalHoldout,
	}, db, trainer.NewBPR(trainer.Config{
		Dim:             cfg.Trainer.Dim,
		LearningRate:    cfg.Trainer.LearningRate,
		Regularization:  cfg.Trainer.Regularization,
		Epochs:          cfg.Trainer.Epochs,
		NegativeTries:   cfg.Trainer.NegativeTries,
		MaxSampleWeight: cfg.Trainer.MaxSampleWeight,
		Seed:            cfg.Trainer.Seed,
	}), feature.NewMapper(nil), artifacts, store)

	handler := api.NewHandler(store, sc, orchestrator, db)
	router := api.NewRouter(handler, &api.ChiMiddlewareConfig{
		CORSAllowedOrigins:   cfg.Security.CORSOrigins,
		CORSAllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		CORSAllowedHeaders:   []string{"Content-Type", "Authorization"},
		CORSAllowCredentials: false,
		CORSMaxAge:           86400,
		RateLimitRequests:    cfg.Security.RateLimitReqs,
		RateLimitWindow:      cfg.Security.RateLimitWindow,
		RateLimitDisabled:    cfg.Security.RateLimitDisabled,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bridge zerolog to slog for sutureslog.
	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	if cfg.Retrain.Enabled {
		tree.AddTrainingService(retrain.NewService(orchestrator, retrain.ServiceConfig{
			TrainOnStartup: cfg.Retrain.TrainOnStartup,
			Interval:       cfg.Retrain.Interval,
		}))
		logging.Info().
			Dur("interval", cfg.Retrain.Interval).
			Bool("train_on_startup", cfg.Retrain.TrainOnStartup).
			Msg("Retraining service scheduled")
	} else {
		logging.Info().Msg("Retraining disabled (RETRAIN_ENABLED=false)")
	}

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Setup(),
		ReadHeaderTimeout: cfg.Server.Timeout,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, supervisor.DefaultTreeConfig().ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server configured")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Application stopped gracefully")
}

// loadInitialModel loads the model artifact before serving begins.
//
// A present-but-unloadable artifact is fatal: silently serving without a
// model when one was expected hides corruption. A missing artifact is
// tolerated only when retraining is enabled, since the first run will
// produce one.
func loadInitialModel(store *model.Store, artifacts *artifact.Store, cfg *config.Config) error {
	if !artifacts.Exists() {
		if !cfg.Retrain.Enabled {
			return fmt.Errorf("no model artifact at %s and retraining is disabled", artifacts.Path())
		}
		logging.Warn().
			Str("path", artifacts.Path()).
			Msg("No model artifact found, serving 503 until first training run publishes")
		return nil
	}

	result, err := store.Reload(context.Background())
	if err != nil {
		return fmt.Errorf("load model artifact %s: %w", artifacts.Path(), err)
	}

	logging.Info().
		Time("built_at", result.NewBuilt).
		Msg("Model loaded from artifact")
	return nil
}
