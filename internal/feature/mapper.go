// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 Feedrank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/feedrank/feedrank

package feature

import (
	"fmt"
	"sort"

	"github.com/feedrank/feedrank/internal/model"
)

// Weights maps interaction kinds to confidence weights. Unknown kinds
// fall back to weight 1.
type Weights map[string]float64

// DefaultWeights returns the standard engagement weighting: a comment
// signals more intent than a like, a like more than a view.
func DefaultWeights() Weights {
	return Weights{
		"view":    1,
		"like":    3,
		"comment": 5,
	}
}

// Weight returns the confidence weight for an interaction kind.
func (w Weights) Weight(kind string) float64 {
	if wt, ok := w[kind]; ok {
		return wt
	}
	return 1
}

// Built is the indexed training input produced by a Mapper.
type Built struct {
	UserVocab *Vocabulary
	ItemVocab *Vocabulary

	// Users and Items are external IDs ordered by internal index;
	// UserIndex and ItemIndex are the inverse mappings.
	Users     []string
	Items     []string
	UserIndex map[string]int
	ItemIndex map[string]int

	// UserFeatures[u] lists the user vocabulary indices active for the
	// user at internal index u; likewise ItemFeatures for items.
	UserFeatures [][]int
	ItemFeatures [][]int

	// ItemMeta carries per-item descriptive data through to the snapshot.
	ItemMeta map[string]model.ItemMetadata
}

// Mapper converts raw records into indexed training input with a fixed
// feature token scheme:
//
//	user tokens: "user:<id>", "role:<role>", "community:<id>"
//	item tokens: "item:<id>", "tag:<tag>", "community:<id>"
//
// Entities are processed in sorted ID order and attribute tokens in sorted
// value order, so identical input data always produces identical indices.
type Mapper struct {
	weights Weights
}

// NewMapper creates a mapper with the given interaction weights. Nil
// weights select DefaultWeights.
func NewMapper(weights Weights) *Mapper {
	if weights == nil {
		weights = DefaultWeights()
	}
	return &Mapper{weights: weights}
}

// Build indexes users and items. Users and items with duplicate IDs are
// rejected since duplicate rows would corrupt the index mappings.
func (m *Mapper) Build(users []model.User, items []model.Item) (*Built, error) {
	if len(users) == 0 {
		return nil, fmt.Errorf("no users to index")
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no items to index")
	}

	sortedUsers := make([]model.User, len(users))
	copy(sortedUsers, users)
	sort.Slice(sortedUsers, func(a, b int) bool { return sortedUsers[a].ID < sortedUsers[b].ID })

	sortedItems := make([]model.Item, len(items))
	copy(sortedItems, items)
	sort.Slice(sortedItems, func(a, b int) bool { return sortedItems[a].ID < sortedItems[b].ID })

	b := &Built{
		UserVocab: NewVocabulary(),
		ItemVocab: NewVocabulary(),
		UserIndex: make(map[string]int, len(sortedUsers)),
		ItemIndex: make(map[string]int, len(sortedItems)),
		ItemMeta:  make(map[string]model.ItemMetadata, len(sortedItems)),
	}

	for _, u := range sortedUsers {
		if _, dup := b.UserIndex[u.ID]; dup {
			return nil, fmt.Errorf("duplicate user id %q", u.ID)
		}
		idx := len(b.Users)
		b.UserIndex[u.ID] = idx
		b.Users = append(b.Users, u.ID)
		b.UserFeatures = append(b.UserFeatures, m.userTokens(b.UserVocab, u))
	}

	for _, it := range sortedItems {
		if _, dup := b.ItemIndex[it.ID]; dup {
			return nil, fmt.Errorf("duplicate item id %q", it.ID)
		}
		idx := len(b.Items)
		b.ItemIndex[it.ID] = idx
		b.Items = append(b.Items, it.ID)
		b.ItemFeatures = append(b.ItemFeatures, m.itemTokens(b.ItemVocab, it))
		b.ItemMeta[it.ID] = model.ItemMetadata{
			CommunityID: it.CommunityID,
			Tags:        sortedCopy(it.Tags),
			CreatedAt:   it.CreatedAt,
		}
	}

	return b, nil
}

// userTokens adds a user's feature tokens to the vocabulary and returns
// their indices. The identity token comes first so every user has at
// least one feature.
func (m *Mapper) userTokens(vocab *Vocabulary, u model.User) []int {
	tokens := []int{vocab.Add("user:" + u.ID)}
	if u.Role != "" {
		tokens = append(tokens, vocab.Add("role:"+u.Role))
	}
	for _, c := range sortedCopy(u.Communities) {
		tokens = append(tokens, vocab.Add("community:"+c))
	}
	return tokens
}

// itemTokens adds an item's feature tokens to the vocabulary and returns
// their indices.
func (m *Mapper) itemTokens(vocab *Vocabulary, it model.Item) []int {
	tokens := []int{vocab.Add("item:" + it.ID)}
	for _, tag := range sortedCopy(it.Tags) {
		tokens = append(tokens, vocab.Add("tag:"+tag))
	}
	if it.CommunityID != "" {
		tokens = append(tokens, vocab.Add("community:"+it.CommunityID))
	}
	return tokens
}

// MapInteractions folds interaction events into per-user positive sets.
// Repeated engagement on the same pair accumulates weight. Events whose
// user or item is not indexed are skipped and counted in the return value.
func (m *Mapper) MapInteractions(b *Built, events []model.Interaction) (positives [][]int, weights [][]float64, skipped int) {
	acc := make([]map[int]float64, len(b.Users))

	for _, ev := range events {
		u, uok := b.UserIndex[ev.UserID]
		i, iok := b.ItemIndex[ev.ItemID]
		if !uok || !iok {
			skipped++
			continue
		}
		if acc[u] == nil {
			acc[u] = make(map[int]float64)
		}
		acc[u][i] += m.weights.Weight(ev.Kind)
	}

	positives = make([][]int, len(b.Users))
	weights = make([][]float64, len(b.Users))
	for u, items := range acc {
		if len(items) == 0 {
			continue
		}
		idxs := make([]int, 0, len(items))
		for i := range items {
			idxs = append(idxs, i)
		}
		sort.Ints(idxs)

		wts := make([]float64, len(idxs))
		for k, i := range idxs {
			wts[k] = items[i]
		}
		positives[u] = idxs
		weights[u] = wts
	}

	return positives, weights, skipped
}

// sortedCopy returns a sorted copy of values, dropping empty strings.
func sortedCopy(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
