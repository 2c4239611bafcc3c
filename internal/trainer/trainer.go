// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 Feedrank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/feedrank/feedrank

// Package trainer implements hybrid latent-factor model training with
// pairwise ranking loss. Entities are represented as the sum of their
// feature embeddings, so cold entities that share features with trained
// ones still receive meaningful factors.
package trainer

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/feedrank/feedrank/internal/logging"
	"github.com/rs/zerolog"
)

// Config holds training hyperparameters. Zero values select defaults.
type Config struct {
	Dim             int     // latent dimensionality (default 64)
	LearningRate    float64 // SGD learning rate (default 0.05)
	Regularization  float64 // L2 regularization (default 0.01)
	Epochs          int     // training epochs (default 30)
	NegativeTries   int     // attempts to sample a negative item (default 100)
	MaxSampleWeight float64 // cap on per-pair gradient weight (default 10)
	Seed            int64   // RNG seed (default 42)
}

// applyDefaults fills zero fields with defaults.
func (c Config) applyDefaults() Config {
	if c.Dim == 0 {
		c.Dim = 64
	}
	if c.LearningRate == 0 {
		c.LearningRate = 0.05
	}
	if c.Regularization == 0 {
		c.Regularization = 0.01
	}
	if c.Epochs == 0 {
		c.Epochs = 30
	}
	if c.NegativeTries == 0 {
		c.NegativeTries = 100
	}
	if c.MaxSampleWeight == 0 {
		c.MaxSampleWeight = 10
	}
	if c.Seed == 0 {
		c.Seed = 42
	}
	return c
}

// Dataset is the indexed training input produced by the feature mapper.
type Dataset struct {
	// UserFeatures[u] and ItemFeatures[i] list active feature indices.
	UserFeatures [][]int
	ItemFeatures [][]int

	// NumUserFeatures and NumItemFeatures size the embedding tables.
	NumUserFeatures int
	NumItemFeatures int

	// Positives[u] lists item indices the user engaged with, Weights[u]
	// the accumulated confidence per item, parallel slices.
	Positives [][]int
	Weights   [][]float64
}

// validate checks the dataset is internally consistent and non-empty.
func (d *Dataset) validate() error {
	if len(d.UserFeatures) == 0 {
		return fmt.Errorf("dataset has no users")
	}
	if len(d.ItemFeatures) == 0 {
		return fmt.Errorf("dataset has no items")
	}
	if d.NumUserFeatures <= 0 || d.NumItemFeatures <= 0 {
		return fmt.Errorf("dataset has empty feature vocabulary")
	}
	if len(d.Positives) != len(d.UserFeatures) {
		return fmt.Errorf("positives count %d does not match users %d", len(d.Positives), len(d.UserFeatures))
	}
	total := 0
	for u, items := range d.Positives {
		if len(items) != len(d.Weights[u]) {
			return fmt.Errorf("user %d has %d positives but %d weights", u, len(items), len(d.Weights[u]))
		}
		total += len(items)
	}
	if total == 0 {
		return fmt.Errorf("dataset has no positive interactions")
	}
	return nil
}

// Model holds trained factors collapsed per entity. Factors[e] is the sum
// of entity e's feature embeddings.
type Model struct {
	UserFactors [][]float64
	ItemFactors [][]float64
	UserBiases  []float64
	ItemBiases  []float64
	Dim         int
}

// Score returns the predicted affinity of user u for item i.
func (m *Model) Score(u, i int) float64 {
	score := m.UserBiases[u] + m.ItemBiases[i]
	for f := 0; f < m.Dim; f++ {
		score += m.UserFactors[u][f] * m.ItemFactors[i][f]
	}
	return score
}

// Trainer produces a Model from a Dataset.
type Trainer interface {
	Train(ctx context.Context, ds *Dataset) (*Model, error)
}

// BPR trains feature embeddings by stochastic gradient descent on the
// Bayesian Personalized Ranking criterion: for each observed (user, item)
// pair and a sampled unobserved item, push the observed item's score above
// the unobserved one's.
type BPR struct {
	cfg    Config
	logger zerolog.Logger
}

// NewBPR creates a trainer, applying defaults for zero config values.
func NewBPR(cfg Config) *BPR {
	return &BPR{
		cfg:    cfg.applyDefaults(),
		logger: logging.WithComponent("trainer"),
	}
}

// pair is one positive observation used for SGD sampling.
type pair struct {
	user   int
	item   int
	weight float64
}

// Train runs SGD and returns collapsed per-entity factors. The same seed
// and dataset always yield the same model. Training checks ctx between
// epochs and aborts promptly on cancellation.
func (b *BPR) Train(ctx context.Context, ds *Dataset) (*Model, error) {
	if err := ds.validate(); err != nil {
		return nil, err
	}

	cfg := b.cfg
	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // deterministic training, not cryptography

	userFeat := initFactors(rng, ds.NumUserFeatures, cfg.Dim)
	itemFeat := initFactors(rng, ds.NumItemFeatures, cfg.Dim)
	itemFeatBias := make([]float64, ds.NumItemFeatures)

	// Flatten positives for shuffled epoch passes and build per-user
	// membership sets for negative sampling.
	var pairs []pair
	positiveSet := make([]map[int]struct{}, len(ds.Positives))
	for u, items := range ds.Positives {
		if len(items) > 0 {
			positiveSet[u] = make(map[int]struct{}, len(items))
		}
		for k, i := range items {
			positiveSet[u][i] = struct{}{}
			pairs = append(pairs, pair{user: u, item: i, weight: math.Min(ds.Weights[u][k], cfg.MaxSampleWeight)})
		}
	}

	numItems := len(ds.ItemFeatures)
	lr := cfg.LearningRate
	reg := cfg.Regularization

	userRepr := make([]float64, cfg.Dim)
	diff := make([]float64, cfg.Dim)

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if epoch > 0 && epoch%10 == 0 {
			lr *= 0.95
		}

		rng.Shuffle(len(pairs), func(a, c int) { pairs[a], pairs[c] = pairs[c], pairs[a] })

		for _, p := range pairs {
			j, ok := sampleNegative(rng, numItems, positiveSet[p.user], cfg.NegativeTries)
			if !ok {
				continue
			}

			sumRows(userRepr, userFeat, ds.UserFeatures[p.user])

			// diff = h_i - h_j, the item representation gap.
			biasI, biasJ := 0.0, 0.0
			for f := 0; f < cfg.Dim; f++ {
				diff[f] = 0
			}
			for _, fi := range ds.ItemFeatures[p.item] {
				biasI += itemFeatBias[fi]
				for f := 0; f < cfg.Dim; f++ {
					diff[f] += itemFeat[fi][f]
				}
			}
			for _, fj := range ds.ItemFeatures[j] {
				biasJ += itemFeatBias[fj]
				for f := 0; f < cfg.Dim; f++ {
					diff[f] -= itemFeat[fj][f]
				}
			}

			xuij := biasI - biasJ
			for f := 0; f < cfg.Dim; f++ {
				xuij += userRepr[f] * diff[f]
			}

			sigmoid := 1.0 / (1.0 + math.Exp(xuij))
			g := sigmoid * p.weight

			for _, fu := range ds.UserFeatures[p.user] {
				row := userFeat[fu]
				for f := 0; f < cfg.Dim; f++ {
					row[f] += lr * (g*diff[f] - reg*row[f])
				}
			}
			for _, fi := range ds.ItemFeatures[p.item] {
				row := itemFeat[fi]
				for f := 0; f < cfg.Dim; f++ {
					row[f] += lr * (g*userRepr[f] - reg*row[f])
				}
				itemFeatBias[fi] += lr * (g - reg*itemFeatBias[fi])
			}
			for _, fj := range ds.ItemFeatures[j] {
				row := itemFeat[fj]
				for f := 0; f < cfg.Dim; f++ {
					row[f] += lr * (-g*userRepr[f] - reg*row[f])
				}
				itemFeatBias[fj] += lr * (-g - reg*itemFeatBias[fj])
			}
		}

		if epoch%10 == 0 {
			b.logger.Debug().Int("epoch", epoch).Float64("lr", lr).Int("pairs", len(pairs)).Msg("Training epoch")
		}
	}

	return collapse(ds, userFeat, itemFeat, itemFeatBias, cfg.Dim), nil
}

// initFactors creates a rows x dim matrix with small random values.
func initFactors(rng *rand.Rand, rows, dim int) [][]float64 {
	m := make([][]float64, rows)
	for r := range m {
		row := make([]float64, dim)
		for f := range row {
			row[f] = (rng.Float64() - 0.5) * 0.01
		}
		m[r] = row
	}
	return m
}

// sampleNegative picks an item the user has not engaged with, giving up
// after tries attempts (dense users may have few negatives left).
func sampleNegative(rng *rand.Rand, numItems int, positives map[int]struct{}, tries int) (int, bool) {
	if len(positives) >= numItems {
		return 0, false
	}
	for t := 0; t < tries; t++ {
		j := rng.Intn(numItems)
		if _, seen := positives[j]; !seen {
			return j, true
		}
	}
	return 0, false
}

// sumRows writes the sum of the selected rows into dst.
func sumRows(dst []float64, table [][]float64, rows []int) {
	for f := range dst {
		dst[f] = 0
	}
	for _, r := range rows {
		row := table[r]
		for f := range dst {
			dst[f] += row[f]
		}
	}
}

// collapse folds feature embeddings into per-entity factors and biases.
func collapse(ds *Dataset, userFeat, itemFeat [][]float64, itemFeatBias []float64, dim int) *Model {
	m := &Model{
		UserFactors: make([][]float64, len(ds.UserFeatures)),
		ItemFactors: make([][]float64, len(ds.ItemFeatures)),
		UserBiases:  make([]float64, len(ds.UserFeatures)),
		ItemBiases:  make([]float64, len(ds.ItemFeatures)),
		Dim:         dim,
	}

	for u, feats := range ds.UserFeatures {
		row := make([]float64, dim)
		sumRows(row, userFeat, feats)
		m.UserFactors[u] = row
	}
	for i, feats := range ds.ItemFeatures {
		row := make([]float64, dim)
		sumRows(row, itemFeat, feats)
		for _, fi := range feats {
			m.ItemBiases[i] += itemFeatBias[fi]
		}
		m.ItemFactors[i] = row
	}

	return m
}
