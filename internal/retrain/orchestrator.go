// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 Feedrank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/feedrank/feedrank

// Package retrain orchestrates the model lifecycle: acquire the training
// lease, load engagement data, build features, train, stage the artifact,
// promote it atomically and publish the snapshot to the serving store.
package retrain

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/feedrank/feedrank/internal/artifact"
	"github.com/feedrank/feedrank/internal/feature"
	"github.com/feedrank/feedrank/internal/logging"
	"github.com/feedrank/feedrank/internal/metrics"
	"github.com/feedrank/feedrank/internal/model"
	"github.com/feedrank/feedrank/internal/trainer"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State names the orchestrator's position in the training pipeline.
type State string

const (
	StateIdle             State = "IDLE"
	StateAcquiringLease   State = "ACQUIRING_LEASE"
	StateLoadingData      State = "LOADING_DATA"
	StateBuildingFeatures State = "BUILDING_FEATURES"
	StateTraining         State = "TRAINING"
	StateStaging          State = "STAGING"
	StatePublishing       State = "PUBLISHING"
	StateDone             State = "DONE"
	StateSkipped          State = "SKIPPED"
	StateFailed           State = "FAILED"
)

// Source provides training data. The datasource package implements it.
type Source interface {
	FetchUsers(ctx context.Context) ([]model.User, error)
	FetchItems(ctx context.Context) ([]model.Item, error)
	FetchInteractions(ctx context.Context, since time.Time) ([]model.Interaction, error)
}

// Config holds orchestration settings. Zero values select defaults.
type Config struct {
	// LeaseOwner identifies this process in the lease file. Defaults to
	// the hostname.
	LeaseOwner string

	// MaxTrainingDuration bounds a run and doubles as the lease staleness
	// threshold: a lease older than this is presumed abandoned. Default 30m.
	MaxTrainingDuration time.Duration

	// Lookback limits interactions to the trailing window. 0 = all history.
	Lookback time.Duration

	// MinInteractions gates training: runs with fewer events fail rather
	// than publish a model trained on noise. Default 10.
	MinInteractions int

	// QualityFloor is the minimum holdout precision@EvalK a candidate must
	// reach to be published. 0 disables the gate.
	QualityFloor float64

	// EvalK is the ranking cutoff for evaluation. Default 10.
	EvalK int

	// EvalHoldout is the fraction of each user's positives held out when
	// the quality gate is enabled. Default 0.2.
	EvalHoldout float64
}

// applyDefaults fills zero fields with defaults.
func (c Config) applyDefaults() Config {
	if c.LeaseOwner == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "feedrank"
		}
		c.LeaseOwner = host
	}
	if c.MaxTrainingDuration == 0 {
		c.MaxTrainingDuration = 30 * time.Minute
	}
	if c.MinInteractions == 0 {
		c.MinInteractions = 10
	}
	if c.EvalK == 0 {
		c.EvalK = 10
	}
	if c.EvalHoldout == 0 {
		c.EvalHoldout = 0.2
	}
	return c
}

// Run records one training run's outcome.
type Run struct {
	ID           string        `json:"id"`
	State        State         `json:"state"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	Duration     time.Duration `json:"duration"`
	Users        int           `json:"users"`
	Items        int           `json:"items"`
	Interactions int           `json:"interactions"`
	Skipped      int           `json:"skipped_events"`
	Evaluated    bool          `json:"evaluated"`
	Precision    float64       `json:"precision_at_k,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// Orchestrator drives training runs. At most one run executes per process;
// across processes the filesystem lease provides the same guarantee.
type Orchestrator struct {
	cfg       Config
	source    Source
	trainer   trainer.Trainer
	mapper    *feature.Mapper
	artifacts *artifact.Store
	store     *model.Store
	logger    zerolog.Logger

	mu      sync.Mutex
	running bool
	state   State
	lastRun *Run
}

// New creates an orchestrator wiring data source, trainer, feature mapper,
// artifact store and serving store together.
func New(cfg Config, source Source, tr trainer.Trainer, mapper *feature.Mapper, artifacts *artifact.Store, store *model.Store) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg.applyDefaults(),
		source:    source,
		trainer:   tr,
		mapper:    mapper,
		artifacts: artifacts,
		store:     store,
		logger:    logging.WithComponent("retrain"),
		state:     StateIdle,
	}
}

// State returns the current pipeline state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LastRun returns the most recently finished run, or nil.
func (o *Orchestrator) LastRun() *Run {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastRun
}

// setState transitions the pipeline state.
func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Run executes one full training run. A run that loses the lease race
// finishes as SKIPPED with a nil error; any other shortfall finishes as
// FAILED with the causing error. The active model keeps serving in every
// failure case.
func (o *Orchestrator) Run(ctx context.Context) (*Run, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		run := &Run{ID: uuid.New().String(), State: StateSkipped, StartedAt: time.Now().UTC(), FinishedAt: time.Now().UTC(), Error: "training already in progress"}
		return run, nil
	}
	o.running = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	run := &Run{ID: uuid.New().String(), StartedAt: time.Now().UTC()}
	logger := o.logger.With().Str("run_id", run.ID).Logger()
	logger.Info().Msg("Training run started")

	ctx, cancel := context.WithTimeout(ctx, o.cfg.MaxTrainingDuration)
	defer cancel()

	o.setState(StateAcquiringLease)
	lease, err := artifact.AcquireLease(o.leasePath(), o.cfg.LeaseOwner, o.cfg.MaxTrainingDuration)
	if err != nil {
		if errors.Is(err, model.ErrLeaseHeld) {
			return o.finish(run, StateSkipped, "skipped", err.Error(), nil)
		}
		return o.finish(run, StateFailed, "failed", "", err)
	}
	defer func() {
		if rerr := lease.Release(); rerr != nil {
			logger.Warn().Err(rerr).Msg("Lease release failed")
		}
	}()

	snap, err := o.buildSnapshot(ctx, run, logger)
	if err != nil {
		return o.finish(run, StateFailed, "failed", "", err)
	}

	o.setState(StateStaging)
	o.artifacts.CleanupStaging()
	staged, err := o.artifacts.Stage(snap, time.Since(run.StartedAt))
	if err != nil {
		return o.finish(run, StateFailed, "failed", "", err)
	}
	if err := o.artifacts.Promote(staged); err != nil {
		return o.finish(run, StateFailed, "failed", "", err)
	}

	o.setState(StatePublishing)
	if err := o.store.Publish(snap); err != nil {
		return o.finish(run, StateFailed, "failed", "", err)
	}

	metrics.TrainingInteractions.Set(float64(run.Interactions))
	if run.Evaluated {
		metrics.TrainingPrecision.Set(run.Precision)
	}

	return o.finish(run, StateDone, "done", "", nil)
}

// buildSnapshot runs the data, feature and training stages.
func (o *Orchestrator) buildSnapshot(ctx context.Context, run *Run, logger zerolog.Logger) (*model.Snapshot, error) {
	o.setState(StateLoadingData)

	users, err := o.source.FetchUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch users: %v", model.ErrDataSource, err)
	}
	items, err := o.source.FetchItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch items: %v", model.ErrDataSource, err)
	}

	var since time.Time
	if o.cfg.Lookback > 0 {
		since = time.Now().UTC().Add(-o.cfg.Lookback)
	}
	events, err := o.source.FetchInteractions(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch interactions: %v", model.ErrDataSource, err)
	}

	run.Users = len(users)
	run.Items = len(items)
	run.Interactions = len(events)
	logger.Info().Int("users", len(users)).Int("items", len(items)).Int("interactions", len(events)).Msg("Training data loaded")

	if len(events) < o.cfg.MinInteractions {
		return nil, fmt.Errorf("%w: %d interactions below minimum %d", model.ErrTraining, len(events), o.cfg.MinInteractions)
	}

	o.setState(StateBuildingFeatures)
	built, err := o.mapper.Build(users, items)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrTraining, err)
	}
	positives, weights, skipped := o.mapper.MapInteractions(built, events)
	run.Skipped = skipped
	if skipped > 0 {
		logger.Warn().Int("skipped", skipped).Msg("Interactions referencing unknown users or items skipped")
	}

	var holdout [][]int
	if o.cfg.QualityFloor > 0 {
		positives, weights, holdout = trainer.SplitHoldout(positives, weights, o.cfg.EvalHoldout, 42)
	}

	o.setState(StateTraining)
	ds := &trainer.Dataset{
		UserFeatures:    built.UserFeatures,
		ItemFeatures:    built.ItemFeatures,
		NumUserFeatures: built.UserVocab.Len(),
		NumItemFeatures: built.ItemVocab.Len(),
		Positives:       positives,
		Weights:         weights,
	}

	trained, err := o.trainer.Train(ctx, ds)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrTraining, err)
	}

	if o.cfg.QualityFloor > 0 {
		run.Evaluated = true
		run.Precision = trainer.PrecisionAtK(trained, positives, holdout, o.cfg.EvalK)
		logger.Info().Float64("precision_at_k", run.Precision).Int("k", o.cfg.EvalK).Msg("Candidate evaluated")

		if run.Precision < o.cfg.QualityFloor {
			return nil, fmt.Errorf("%w: precision@%d %.4f below floor %.4f",
				model.ErrTraining, o.cfg.EvalK, run.Precision, o.cfg.QualityFloor)
		}
	}

	communities, counts := coldStartData(users, events, built.ItemMeta)

	return &model.Snapshot{
		UserFactors:       trained.UserFactors,
		ItemFactors:       trained.ItemFactors,
		UserBiases:        trained.UserBiases,
		ItemBiases:        trained.ItemBiases,
		Users:             built.Users,
		Items:             built.Items,
		UserIndex:         built.UserIndex,
		ItemIndex:         built.ItemIndex,
		UserVocab:         built.UserVocab.Tokens(),
		ItemVocab:         built.ItemVocab.Tokens(),
		ItemMeta:          built.ItemMeta,
		UserCommunities:   communities,
		InteractionCounts: counts,
		BuiltAt:           time.Now().UTC(),
		Dim:               trained.Dim,
	}, nil
}

// coldStartData aggregates the per-user community memberships and
// interaction counts that route low-history users to the cold-start
// strategy, and folds per-item engagement tallies into meta in place.
func coldStartData(users []model.User, events []model.Interaction, meta map[string]model.ItemMetadata) (map[string][]string, map[string]int) {
	communities := make(map[string][]string, len(users))
	for _, u := range users {
		followed := append([]string(nil), u.Communities...)
		sort.Strings(followed)
		communities[u.ID] = followed
	}

	counts := make(map[string]int, len(users))
	for _, ev := range events {
		counts[ev.UserID]++

		m, ok := meta[ev.ItemID]
		if !ok {
			continue
		}
		switch ev.Kind {
		case "view":
			m.Views++
		case "like":
			m.Likes++
		case "comment":
			m.Comments++
		}
		meta[ev.ItemID] = m
	}

	return communities, counts
}

// finish records the run outcome, metrics and final state.
func (o *Orchestrator) finish(run *Run, state State, outcome, reason string, err error) (*Run, error) {
	run.State = state
	run.FinishedAt = time.Now().UTC()
	run.Duration = run.FinishedAt.Sub(run.StartedAt)
	if err != nil {
		run.Error = err.Error()
	} else if reason != "" {
		run.Error = reason
	}

	o.mu.Lock()
	o.state = state
	o.lastRun = run
	o.mu.Unlock()

	metrics.RecordTrainingRun(outcome, run.Duration)

	evt := o.logger.Info()
	if state == StateFailed {
		evt = o.logger.Error().Err(err)
	}
	evt.Str("run_id", run.ID).
		Str("state", string(state)).
		Dur("duration", run.Duration).
		Int("interactions", run.Interactions).
		Msg("Training run finished")

	return run, err
}

// leasePath is the lease file guarding the artifact.
func (o *Orchestrator) leasePath() string {
	return o.artifacts.Path() + ".lock"
}
