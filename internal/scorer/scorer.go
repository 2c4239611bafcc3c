// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 Feedrank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/feedrank/feedrank

// Package scorer ranks catalog items for a user against one pinned model
// snapshot and serves deterministic, paginated result windows.
package scorer

import (
	"sort"
	"time"

	"github.com/feedrank/feedrank/internal/logging"
	"github.com/feedrank/feedrank/internal/metrics"
	"github.com/feedrank/feedrank/internal/model"
	"github.com/rs/zerolog"
)

// Defaults for ranking cutoff and pagination bounds.
const (
	DefaultTopK  = 100
	DefaultLimit = 20
	MaxLimit     = 100
)

// ScoredItem is one ranked recommendation with enrichment metadata.
type ScoredItem struct {
	ItemID      string   `json:"item_id"`
	Score       float64  `json:"score"`
	Rank        int      `json:"rank"`
	CommunityID string   `json:"community_id,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Page is one window of a user's ranked recommendations.
type Page struct {
	Items   []ScoredItem `json:"items"`
	Total   int          `json:"total"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
	HasMore bool         `json:"has_more"`
}

// Config bounds the ranking cutoff and page sizes. Zero values select
// package defaults.
type Config struct {
	TopK         int
	DefaultLimit int
	MaxLimit     int
	ColdStart    ColdStartConfig
}

// Scorer computes recommendation pages. It is stateless with respect to
// models: every call ranks against the snapshot passed in, so a request
// sees one consistent model even while a retrain swaps the store.
type Scorer struct {
	topK         int
	defaultLimit int
	maxLimit     int
	coldStart    ColdStartConfig
	logger       zerolog.Logger
}

// New creates a scorer, applying defaults for zero config values.
func New(cfg Config) *Scorer {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = MaxLimit
	}
	return &Scorer{
		topK:         cfg.TopK,
		defaultLimit: cfg.DefaultLimit,
		maxLimit:     cfg.MaxLimit,
		coldStart:    cfg.ColdStart.applyDefaults(),
		logger:       logging.WithComponent("scorer"),
	}
}

// Recommend ranks items for userID against snap and returns the page at
// [offset, offset+limit) of the top-K cutoff. Low-history users are served
// by the cold-start strategy; everyone else by the trained model. Ties
// break on ascending internal item index so identical requests always
// paginate identically.
//
// A limit <= 0 selects the default page size; limits above the maximum
// are clamped. Offsets at or beyond the result total yield an empty page,
// not an error.
func (s *Scorer) Recommend(snap *model.Snapshot, userID string, limit, offset int) (*Page, error) {
	if snap == nil {
		return nil, model.ErrModelNotLoaded
	}

	u, inModel := snap.UserIndex[userID]
	if !inModel {
		if _, known := snap.UserCommunities[userID]; !known {
			return nil, model.ErrUserNotFound
		}
	}

	start := time.Now()

	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	if offset < 0 {
		offset = 0
	}

	var ranked []ScoredItem
	strategy := "model"
	if s.useColdStart(snap, userID, inModel) {
		strategy = "cold_start"
		ranked = s.rankColdStart(snap, userID, time.Now().UTC())
		metrics.ColdStartServed.Inc()
	} else {
		ranked = s.rank(snap, u)
	}

	total := len(ranked)
	page := &Page{
		Items:   []ScoredItem{},
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+limit < total,
	}

	if offset < total {
		end := offset + limit
		if end > total {
			end = total
		}
		page.Items = ranked[offset:end]
	}

	metrics.RecommendationsServed.Inc()
	metrics.RecommendationDuration.Observe(time.Since(start).Seconds())

	s.logger.Debug().
		Str("user_id", userID).
		Str("strategy", strategy).
		Int("total", total).
		Int("offset", offset).
		Int("returned", len(page.Items)).
		Msg("Recommendations ranked")

	return page, nil
}

// rank scores every catalog item for the user at internal index u and
// returns the enriched top-K, ranked best first.
func (s *Scorer) rank(snap *model.Snapshot, u int) []ScoredItem {
	n := len(snap.Items)
	if n == 0 {
		return nil
	}

	order := make([]int, n)
	scores := make([]float64, n)
	for i := 0; i < n; i++ {
		order[i] = i
		scores[i] = snap.Score(u, i)
	}

	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if scores[ia] != scores[ib] {
			return scores[ia] > scores[ib]
		}
		return ia < ib
	})

	if n > s.topK {
		n = s.topK
	}

	ranked := make([]ScoredItem, n)
	for r := 0; r < n; r++ {
		i := order[r]
		id := snap.Items[i]
		item := ScoredItem{
			ItemID: id,
			Score:  scores[i],
			Rank:   r + 1,
		}
		if meta, ok := snap.ItemMeta[id]; ok {
			item.CommunityID = meta.CommunityID
			item.Tags = meta.Tags
		}
		ranked[r] = item
	}

	return ranked
}
