// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 Feedrank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/feedrank/feedrank

package model

import "time"

// Snapshot is one immutable trained model. All fields are written once by
// the training pipeline and never mutated afterwards, so a snapshot may be
// shared by any number of concurrent readers without locking.
//
// Factors and biases are stored collapsed per entity: the training pipeline
// sums each entity's feature embeddings into a single dense vector, so
// scoring is a plain dot product at serve time.
type Snapshot struct {
	// UserFactors[i] is the latent vector for Users[i]. Each has length Dim.
	UserFactors [][]float64
	// ItemFactors[j] is the latent vector for Items[j]. Each has length Dim.
	ItemFactors [][]float64

	// UserBiases[i] and ItemBiases[j] are per-entity score offsets.
	UserBiases []float64
	ItemBiases []float64

	// Users and Items map internal index to external ID; UserIndex and
	// ItemIndex are the inverse mappings.
	Users     []string
	Items     []string
	UserIndex map[string]int
	ItemIndex map[string]int

	// UserVocab and ItemVocab are the feature token tables the model was
	// trained with, ordered by feature index.
	UserVocab []string
	ItemVocab []string

	// ItemMeta carries per-item descriptive data for response enrichment.
	ItemMeta map[string]ItemMetadata

	// UserCommunities maps every user known at training time to the
	// communities they follow, and InteractionCounts to their engagement
	// volume. Both drive the routing between the trained model and the
	// cold-start strategy for low-history users. Snapshots written before
	// these fields existed decode with nil maps, which disables cold-start
	// routing for in-model users.
	UserCommunities   map[string][]string
	InteractionCounts map[string]int

	// BuiltAt is when training finished producing this snapshot.
	BuiltAt time.Time

	// Dim is the latent factor dimensionality.
	Dim int
}

// Score returns the predicted affinity of the user at internal index u for
// the item at internal index i. Indices must be in range.
func (s *Snapshot) Score(u, i int) float64 {
	uf := s.UserFactors[u]
	itf := s.ItemFactors[i]

	score := s.UserBiases[u] + s.ItemBiases[i]
	for f := 0; f < s.Dim; f++ {
		score += uf[f] * itf[f]
	}
	return score
}

// Validate checks structural consistency of a candidate snapshot. It
// returns a *ValidationError describing the first inconsistency found.
func (s *Snapshot) Validate() error {
	if s == nil {
		return &ValidationError{Field: "snapshot", Reason: "nil"}
	}
	if s.Dim <= 0 {
		return &ValidationError{Field: "dim", Reason: "must be positive"}
	}
	if len(s.Users) == 0 {
		return &ValidationError{Field: "users", Reason: "empty"}
	}
	if len(s.Items) == 0 {
		return &ValidationError{Field: "items", Reason: "empty"}
	}
	if len(s.UserFactors) != len(s.Users) {
		return &ValidationError{Field: "user_factors", Reason: "count does not match users"}
	}
	if len(s.UserBiases) != len(s.Users) {
		return &ValidationError{Field: "user_biases", Reason: "count does not match users"}
	}
	if len(s.ItemFactors) != len(s.Items) {
		return &ValidationError{Field: "item_factors", Reason: "count does not match items"}
	}
	if len(s.ItemBiases) != len(s.Items) {
		return &ValidationError{Field: "item_biases", Reason: "count does not match items"}
	}
	if len(s.UserIndex) != len(s.Users) {
		return &ValidationError{Field: "user_index", Reason: "count does not match users"}
	}
	if len(s.ItemIndex) != len(s.Items) {
		return &ValidationError{Field: "item_index", Reason: "count does not match items"}
	}

	for i, row := range s.UserFactors {
		if len(row) != s.Dim {
			return &ValidationError{Field: "user_factors", Reason: "row " + s.Users[i] + " has wrong dimension"}
		}
	}
	for j, row := range s.ItemFactors {
		if len(row) != s.Dim {
			return &ValidationError{Field: "item_factors", Reason: "row " + s.Items[j] + " has wrong dimension"}
		}
	}

	for id, idx := range s.UserIndex {
		if idx < 0 || idx >= len(s.Users) || s.Users[idx] != id {
			return &ValidationError{Field: "user_index", Reason: "inconsistent mapping for " + id}
		}
	}
	for id, idx := range s.ItemIndex {
		if idx < 0 || idx >= len(s.Items) || s.Items[idx] != id {
			return &ValidationError{Field: "item_index", Reason: "inconsistent mapping for " + id}
		}
	}

	if s.BuiltAt.IsZero() {
		return &ValidationError{Field: "built_at", Reason: "zero timestamp"}
	}

	return nil
}
