// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 Feedrank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/feedrank/feedrank

package scorer

import (
	"sort"
	"time"

	"github.com/feedrank/feedrank/internal/model"
)

// Cold-start defaults.
const (
	DefaultColdStartThreshold = 3
	DefaultRecencyWindowDays  = 7
)

// ColdStartConfig tunes the deterministic fallback ranking served to users
// with little or no engagement history. It is a rule-based layer, not a
// model: candidates are the items of the user's followed communities,
// scored by community match, tag affinity, recency and popularity.
type ColdStartConfig struct {
	// InteractionThreshold is the engagement volume below which a user is
	// routed to the cold-start strategy instead of the trained model.
	// Negative disables threshold routing; zero selects the default.
	InteractionThreshold int

	// RecencyWindowDays bounds the linear recency decay. Items older than
	// the window contribute zero recency.
	RecencyWindowDays int

	// Signal weights. All zero selects the default weighting.
	WeightCommunity  float64
	WeightContent    float64
	WeightRecency    float64
	WeightPopularity float64
}

func (c ColdStartConfig) applyDefaults() ColdStartConfig {
	if c.InteractionThreshold == 0 {
		c.InteractionThreshold = DefaultColdStartThreshold
	}
	if c.RecencyWindowDays <= 0 {
		c.RecencyWindowDays = DefaultRecencyWindowDays
	}
	if c.WeightCommunity == 0 && c.WeightContent == 0 && c.WeightRecency == 0 && c.WeightPopularity == 0 {
		c.WeightCommunity = 0.4
		c.WeightContent = 0.3
		c.WeightRecency = 0.2
		c.WeightPopularity = 0.1
	}
	return c
}

// useColdStart decides the ranking strategy for a user. Users absent from
// the trained model always take the cold-start path; in-model users take
// it when their recorded engagement is below the threshold. Snapshots
// without interaction counts predate the strategy and keep every in-model
// user on the trained model.
func (s *Scorer) useColdStart(snap *model.Snapshot, userID string, inModel bool) bool {
	if !inModel {
		return true
	}
	if s.coldStart.InteractionThreshold <= 0 || snap.InteractionCounts == nil {
		return false
	}
	return snap.InteractionCounts[userID] < s.coldStart.InteractionThreshold
}

// rankColdStart ranks the items of the user's followed communities:
//
//	score = wCommunity + wContent*tagAffinity + wRecency*decay + wPopularity*engagement
//
// Tag affinity is the weight share of the item's tags within the tag
// profile of the followed communities. Engagement is views + 3*likes +
// 5*comments, normalized against the community's most engaged item. Ties
// break on ascending internal item index, the same rule the model path
// uses, so pagination stays deterministic. A user following no communities
// gets an empty ranking.
func (s *Scorer) rankColdStart(snap *model.Snapshot, userID string, now time.Time) []ScoredItem {
	followed := make(map[string]bool, len(snap.UserCommunities[userID]))
	for _, c := range snap.UserCommunities[userID] {
		followed[c] = true
	}
	if len(followed) == 0 || len(snap.Items) == 0 {
		return nil
	}

	// One catalog pass builds the followed communities' tag profile and
	// each community's peak engagement for normalization.
	tagProfile := make(map[string]int)
	profileTotal := 0
	peakEngagement := make(map[string]float64)
	for _, id := range snap.Items {
		meta, ok := snap.ItemMeta[id]
		if !ok {
			continue
		}
		if e := engagement(meta); e > peakEngagement[meta.CommunityID] {
			peakEngagement[meta.CommunityID] = e
		}
		if followed[meta.CommunityID] {
			for _, tag := range meta.Tags {
				tagProfile[tag]++
				profileTotal++
			}
		}
	}

	window := float64(s.coldStart.RecencyWindowDays)
	scores := make([]float64, len(snap.Items))
	var candidates []int
	for i, id := range snap.Items {
		meta, ok := snap.ItemMeta[id]
		if !ok || !followed[meta.CommunityID] {
			continue
		}
		candidates = append(candidates, i)

		content := 0.0
		if profileTotal > 0 {
			overlap := 0
			for _, tag := range meta.Tags {
				overlap += tagProfile[tag]
			}
			content = float64(overlap) / float64(profileTotal)
		}

		recency := 0.0
		if !meta.CreatedAt.IsZero() {
			ageDays := now.Sub(meta.CreatedAt).Hours() / 24
			switch {
			case ageDays < 0:
				recency = 1
			case ageDays <= window:
				recency = 1 - ageDays/window
			}
		}

		popularity := 0.0
		if peak := peakEngagement[meta.CommunityID]; peak > 0 {
			popularity = engagement(meta) / peak
			if popularity > 1 {
				popularity = 1
			}
		}

		cfg := s.coldStart
		scores[i] = cfg.WeightCommunity +
			cfg.WeightContent*content +
			cfg.WeightRecency*recency +
			cfg.WeightPopularity*popularity
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		ia, ib := candidates[a], candidates[b]
		if scores[ia] != scores[ib] {
			return scores[ia] > scores[ib]
		}
		return ia < ib
	})

	n := len(candidates)
	if n > s.topK {
		n = s.topK
	}

	ranked := make([]ScoredItem, n)
	for r := 0; r < n; r++ {
		i := candidates[r]
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

// engagement is an item's weighted interaction tally.
func engagement(meta model.ItemMetadata) float64 {
	return float64(meta.Views + 3*meta.Likes + 5*meta.Comments)
}
