// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 Feedrank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/feedrank/feedrank

package retrain

import (
	"context"
	"time"

	"github.com/feedrank/feedrank/internal/logging"
	"github.com/rs/zerolog"
)

// Runner triggers training runs; the Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context) (*Run, error)
}

// ServiceConfig controls the scheduled retraining service.
type ServiceConfig struct {
	// TrainOnStartup runs a training pass immediately when the service
	// starts instead of waiting for the first tick.
	TrainOnStartup bool

	// Interval between scheduled runs. Default 24h.
	Interval time.Duration
}

// Service runs the orchestrator on a schedule under the supervision tree.
type Service struct {
	runner Runner
	cfg    ServiceConfig
	logger zerolog.Logger
}

// NewService creates the scheduled retraining service.
func NewService(runner Runner, cfg ServiceConfig) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	return &Service{
		runner: runner,
		cfg:    cfg,
		logger: logging.WithComponent("retrain-service"),
	}
}

// Serve implements suture.Service. A failed run is logged and retried on
// the next tick; only context cancellation stops the service.
func (s *Service) Serve(ctx context.Context) error {
	s.logger.Info().
		Dur("interval", s.cfg.Interval).
		Bool("train_on_startup", s.cfg.TrainOnStartup).
		Msg("Retraining service started")

	if s.cfg.TrainOnStartup {
		s.train(ctx)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Retraining service stopping")
			return ctx.Err()
		case <-ticker.C:
			s.train(ctx)
		}
	}
}

// train executes one run, logging the outcome without failing the service.
func (s *Service) train(ctx context.Context) {
	run, err := s.runner.Run(ctx)
	switch {
	case err != nil:
		s.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Training run failed, will retry on schedule")
	case run.State == StateSkipped:
		s.logger.Info().Str("run_id", run.ID).Str("reason", run.Error).Msg("Training run skipped")
	default:
		s.logger.Info().Str("run_id", run.ID).Dur("duration", run.Duration).Msg("Training run completed")
	}
}

// String names the service in supervisor logs.
func (s *Service) String() string {
	return "retrain-service"
}
