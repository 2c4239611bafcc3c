// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 Feedrank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/feedrank/feedrank

package trainer

import (
	"math/rand"
	"sort"
)

// SplitHoldout partitions each user's positives into train and holdout
// sets for offline evaluation. Users with fewer than two positives keep
// everything in train. At least one positive always stays in train. The
// split is deterministic for a given seed.
func SplitHoldout(positives [][]int, weights [][]float64, fraction float64, seed int64) (trainPos [][]int, trainW [][]float64, holdout [][]int) {
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // deterministic split, not cryptography

	trainPos = make([][]int, len(positives))
	trainW = make([][]float64, len(positives))
	holdout = make([][]int, len(positives))

	for u, items := range positives {
		if len(items) < 2 || fraction <= 0 {
			trainPos[u] = items
			trainW[u] = weights[u]
			continue
		}

		perm := rng.Perm(len(items))
		nHold := int(float64(len(items)) * fraction)
		if nHold < 1 {
			nHold = 1
		}
		if nHold >= len(items) {
			nHold = len(items) - 1
		}

		for k, p := range perm {
			if k < nHold {
				holdout[u] = append(holdout[u], items[p])
			} else {
				trainPos[u] = append(trainPos[u], items[p])
				trainW[u] = append(trainW[u], weights[u][p])
			}
		}
		sort.Ints(holdout[u])
	}

	return trainPos, trainW, holdout
}

// PrecisionAtK computes mean precision@k over users with non-empty
// holdout sets: the fraction of each user's top-k recommendations (train
// positives excluded) that appear in the holdout. Returns 0 when no user
// has holdout data.
func PrecisionAtK(m *Model, trainPositives [][]int, holdout [][]int, k int) float64 {
	if k <= 0 {
		return 0
	}

	numItems := len(m.ItemFactors)
	sum := 0.0
	users := 0

	for u, held := range holdout {
		if len(held) == 0 {
			continue
		}

		exclude := make(map[int]struct{}, len(trainPositives[u]))
		for _, i := range trainPositives[u] {
			exclude[i] = struct{}{}
		}
		heldSet := make(map[int]struct{}, len(held))
		for _, i := range held {
			heldSet[i] = struct{}{}
		}

		type scored struct {
			item  int
			score float64
		}
		candidates := make([]scored, 0, numItems)
		for i := 0; i < numItems; i++ {
			if _, skip := exclude[i]; skip {
				continue
			}
			candidates = append(candidates, scored{item: i, score: m.Score(u, i)})
		}

		sort.Slice(candidates, func(a, b int) bool {
			if candidates[a].score != candidates[b].score {
				return candidates[a].score > candidates[b].score
			}
			return candidates[a].item < candidates[b].item
		})

		top := k
		if top > len(candidates) {
			top = len(candidates)
		}

		hits := 0
		for _, c := range candidates[:top] {
			if _, ok := heldSet[c.item]; ok {
				hits++
			}
		}

		sum += float64(hits) / float64(k)
		users++
	}

	if users == 0 {
		return 0
	}
	return sum / float64(users)
}
