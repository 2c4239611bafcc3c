// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 Feedrank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/feedrank/feedrank

package model

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/feedrank/feedrank/internal/logging"
	"github.com/feedrank/feedrank/internal/metrics"
	"github.com/rs/zerolog"
)

// SnapshotSource loads snapshots from durable storage. The artifact store
// implements this interface.
type SnapshotSource interface {
	// LoadSnapshot reads and decodes the current artifact.
	LoadSnapshot(ctx context.Context) (*Snapshot, error)

	// ModTime returns the artifact's last modification time.
	ModTime() (time.Time, error)
}

// Status describes the currently served model.
type Status struct {
	Loaded          bool      `json:"is_loaded"`
	BuiltAt         time.Time `json:"last_build_time,omitempty"`
	UserCount       int       `json:"user_count"`
	ItemCount       int       `json:"item_count"`
	Dim             int       `json:"dim"`
	ArtifactModTime time.Time `json:"artifact_mod_time,omitempty"`
	Stale           bool      `json:"source_artifact_stale"`
}

// ReloadResult reports the outcome of a reload attempt.
type ReloadResult struct {
	Reloaded      bool      `json:"reloaded"`
	Reason        string    `json:"reason"`
	PreviousBuilt time.Time `json:"previous_built_at,omitempty"`
	NewBuilt      time.Time `json:"new_built_at,omitempty"`
}

// Store serves the active model snapshot to concurrent readers and swaps
// in replacements atomically. Readers pin exactly one snapshot per request
// via Active(); a swap never invalidates a pinned snapshot, the old one is
// simply garbage collected once its last reader returns.
type Store struct {
	active atomic.Pointer[Snapshot]

	source SnapshotSource
	logger zerolog.Logger

	// reloadMu serializes Reload calls so concurrent admin requests do
	// not race on the unchanged-artifact check. Readers never take it.
	reloadMu      sync.Mutex
	loadedModTime time.Time
}

// NewStore creates an empty store backed by the given snapshot source.
func NewStore(source SnapshotSource) *Store {
	return &Store{
		source: source,
		logger: logging.WithComponent("model-store"),
	}
}

// Active returns the currently served snapshot. The caller must use the
// returned pointer for the entire request so pagination and scoring stay
// consistent across a concurrent swap.
func (s *Store) Active() (*Snapshot, error) {
	snap := s.active.Load()
	if snap == nil {
		return nil, ErrModelNotLoaded
	}
	return snap, nil
}

// Publish validates candidate and makes it the active snapshot. On
// validation failure the active snapshot is left untouched and the
// returned error wraps a *ValidationError.
func (s *Store) Publish(candidate *Snapshot) error {
	if err := candidate.Validate(); err != nil {
		metrics.SnapshotPublishesTotal.WithLabelValues("rejected").Inc()
		s.logger.Error().Err(err).Msg("Candidate snapshot rejected")
		return err
	}

	s.active.Store(candidate)

	if s.source != nil {
		if mt, err := s.source.ModTime(); err == nil {
			s.reloadMu.Lock()
			s.loadedModTime = mt
			s.reloadMu.Unlock()
		}
	}

	metrics.SnapshotPublishesTotal.WithLabelValues("ok").Inc()
	metrics.ModelUsers.Set(float64(len(candidate.Users)))
	metrics.ModelItems.Set(float64(len(candidate.Items)))
	metrics.ModelBuildTimestamp.Set(float64(candidate.BuiltAt.Unix()))

	s.logger.Info().
		Time("built_at", candidate.BuiltAt).
		Int("users", len(candidate.Users)).
		Int("items", len(candidate.Items)).
		Int("dim", candidate.Dim).
		Msg("Snapshot published")

	return nil
}

// Status returns serving state plus artifact staleness. The model is stale
// when the artifact on disk is newer than what is being served.
func (s *Store) Status() Status {
	st := Status{}

	if snap := s.active.Load(); snap != nil {
		st.Loaded = true
		st.BuiltAt = snap.BuiltAt
		st.UserCount = len(snap.Users)
		st.ItemCount = len(snap.Items)
		st.Dim = snap.Dim
	}

	if s.source != nil {
		if mt, err := s.source.ModTime(); err == nil {
			st.ArtifactModTime = mt
			s.reloadMu.Lock()
			st.Stale = st.Loaded && mt.After(s.loadedModTime)
			s.reloadMu.Unlock()
		}
	}

	return st
}

// Reload checks the artifact on disk and swaps it in if it changed since
// the last load. A failed load or validation leaves the active snapshot
// serving and is reported in the result rather than disturbing traffic.
func (s *Store) Reload(ctx context.Context) (ReloadResult, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	res := ReloadResult{}
	if prev := s.active.Load(); prev != nil {
		res.PreviousBuilt = prev.BuiltAt
	}

	modTime, err := s.source.ModTime()
	if err != nil {
		res.Reason = fmt.Sprintf("artifact stat failed: %v", err)
		metrics.SnapshotReloadsTotal.WithLabelValues("failed").Inc()
		return res, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if s.active.Load() != nil && !modTime.After(s.loadedModTime) {
		res.Reason = "artifact unchanged"
		metrics.SnapshotReloadsTotal.WithLabelValues("unchanged").Inc()
		return res, nil
	}

	snap, err := s.source.LoadSnapshot(ctx)
	if err != nil {
		res.Reason = fmt.Sprintf("artifact load failed: %v", err)
		metrics.SnapshotReloadsTotal.WithLabelValues("failed").Inc()
		s.logger.Error().Err(err).Msg("Reload failed, keeping active snapshot")
		return res, err
	}

	if err := snap.Validate(); err != nil {
		res.Reason = fmt.Sprintf("candidate rejected: %v", err)
		metrics.SnapshotReloadsTotal.WithLabelValues("failed").Inc()
		s.logger.Error().Err(err).Msg("Reloaded snapshot rejected, keeping active snapshot")
		return res, err
	}

	s.active.Store(snap)
	s.loadedModTime = modTime

	metrics.SnapshotReloadsTotal.WithLabelValues("reloaded").Inc()
	metrics.ModelUsers.Set(float64(len(snap.Users)))
	metrics.ModelItems.Set(float64(len(snap.Items)))
	metrics.ModelBuildTimestamp.Set(float64(snap.BuiltAt.Unix()))

	res.Reloaded = true
	res.Reason = "artifact reloaded"
	res.NewBuilt = snap.BuiltAt

	s.logger.Info().
		Time("previous_built_at", res.PreviousBuilt).
		Time("new_built_at", res.NewBuilt).
		Msg("Snapshot reloaded")

	return res, nil
}
