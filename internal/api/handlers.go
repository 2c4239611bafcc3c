// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 Feedrank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/feedrank/feedrank

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/feedrank/feedrank/internal/logging"
	"github.com/feedrank/feedrank/internal/model"
	"github.com/feedrank/feedrank/internal/retrain"
	"github.com/feedrank/feedrank/internal/scorer"
)

// Trainer is the slice of the retrain orchestrator the API needs.
type Trainer interface {
	Run(ctx context.Context) (*retrain.Run, error)
	State() retrain.State
	LastRun() *retrain.Run
}

// Pinger reports data source connectivity for readiness checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds dependencies for all HTTP handlers.
type Handler struct {
	store   *model.Store
	scorer  *scorer.Scorer
	trainer Trainer
	db      Pinger
}

// NewHandler creates a handler. trainer and db may be nil; the train
// endpoint and the readiness database check degrade accordingly.
func NewHandler(store *model.Store, sc *scorer.Scorer, trainer Trainer, db Pinger) *Handler {
	return &Handler{
		store:   store,
		scorer:  sc,
		trainer: trainer,
		db:      db,
	}
}

// Recommendations handles GET /api/v1/recommendations/{userID}.
// Returns a deterministic, paginated ranking for the user from the active
// model snapshot.
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	params, err := parseRecommendationParams(r, chi.URLParam(r, "userID"))
	if err != nil {
		rw.ValidationError(err.Error(), nil)
		return
	}

	snap, err := h.store.Active()
	if err != nil {
		rw.ModelNotReady()
		return
	}

	page, err := h.scorer.Recommend(snap, params.UserID, params.Limit, params.Offset)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrUserNotFound):
			rw.NotFound("Unknown user: " + params.UserID)
		case errors.Is(err, model.ErrModelNotLoaded):
			rw.ModelNotReady()
		default:
			logging.Ctx(r.Context()).Error().Err(err).Str("user_id", params.UserID).Msg("Recommendation failed")
			rw.InternalError("Failed to compute recommendations")
		}
		return
	}

	rw.SuccessWithPagination(page.Items, &PaginationMeta{
		Total:   page.Total,
		Count:   len(page.Items),
		Offset:  page.Offset,
		Limit:   page.Limit,
		HasMore: page.HasMore,
	})
}

// ModelStatus handles GET /api/v1/model/status.
func (h *Handler) ModelStatus(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.store.Status())
}

// reloadResponse is the payload of the admin reload endpoint.
type reloadResponse struct {
	Reloaded      bool       `json:"reloaded"`
	Reason        string     `json:"reason,omitempty"`
	Error         string     `json:"error,omitempty"`
	PreviousBuilt *time.Time `json:"previous_built,omitempty"`
	NewBuilt      *time.Time `json:"new_built,omitempty"`
}

// Reload handles POST /api/v1/admin/reload. A failed reload keeps the
// active snapshot serving and reports the failure in the payload rather
// than as an HTTP error: the server itself is healthy either way.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	result, err := h.store.Reload(r.Context())
	resp := reloadResponse{
		Reloaded: result.Reloaded,
		Reason:   result.Reason,
	}
	if !result.PreviousBuilt.IsZero() {
		resp.PreviousBuilt = &result.PreviousBuilt
	}
	if !result.NewBuilt.IsZero() {
		resp.NewBuilt = &result.NewBuilt
	}
	if err != nil {
		resp.Error = err.Error()
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Manual reload failed, active model unchanged")
	}

	rw.Success(resp)
}

// trainResponse is the payload of the admin train endpoint.
type trainResponse struct {
	Accepted bool          `json:"accepted"`
	State    retrain.State `json:"state"`
}

// Train handles POST /api/v1/admin/train. The run proceeds in the
// background; the request returns immediately with 202. A run that finds
// the lease held or another run in progress finishes as SKIPPED.
func (h *Handler) Train(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if h.trainer == nil {
		rw.ServiceUnavailable("Training is not configured on this instance")
		return
	}

	requestID := logging.RequestIDFromContext(r.Context())
	go func() {
		// Detached from the request context; the orchestrator applies its
		// own run timeout.
		ctx := logging.ContextWithRequestID(context.Background(), requestID)
		if _, err := h.trainer.Run(ctx); err != nil {
			logging.Ctx(ctx).Error().Err(err).Msg("Manually triggered training run failed")
		}
	}()

	rw.Accepted(trainResponse{
		Accepted: true,
		State:    h.trainer.State(),
	})
}

// TrainStatus handles GET /api/v1/admin/train. Reports the orchestrator
// state and the last finished run.
func (h *Handler) TrainStatus(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if h.trainer == nil {
		rw.ServiceUnavailable("Training is not configured on this instance")
		return
	}

	rw.Success(map[string]interface{}{
		"state":    h.trainer.State(),
		"last_run": h.trainer.LastRun(),
	})
}

// HealthLive handles GET /api/v1/health/live. Liveness is process-level:
// reachable means alive.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rw.Success(map[string]string{"status": "alive"})
}

// HealthReady handles GET /api/v1/health/ready. Ready means a model is
// loaded and the data source answers.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	checks := map[string]string{}
	ready := true

	if _, err := h.store.Active(); err != nil {
		checks["model"] = "not loaded"
		ready = false
	} else {
		checks["model"] = "ok"
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			checks["database"] = "unreachable"
			ready = false
		} else {
			checks["database"] = "ok"
		}
	}

	if !ready {
		rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Not ready", checks)
		return
	}

	rw.Success(map[string]interface{}{"status": "ready", "checks": checks})
}
