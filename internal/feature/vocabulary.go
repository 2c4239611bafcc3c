// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 Feedrank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/feedrank/feedrank

// Package feature maps raw user, item and interaction records into the
// indexed form the trainer consumes: feature token vocabularies, per-entity
// feature index lists, and weighted positive interaction sets.
package feature

// Vocabulary assigns dense indices to feature tokens in insertion order.
// A token added twice keeps its original index, so building the same
// entities in the same order always yields the same vocabulary.
type Vocabulary struct {
	index  map[string]int
	tokens []string
}

// NewVocabulary creates an empty vocabulary.
func NewVocabulary() *Vocabulary {
	return &Vocabulary{index: make(map[string]int)}
}

// Add returns the index for token, assigning the next free index if the
// token is new.
func (v *Vocabulary) Add(token string) int {
	if idx, ok := v.index[token]; ok {
		return idx
	}
	idx := len(v.tokens)
	v.index[token] = idx
	v.tokens = append(v.tokens, token)
	return idx
}

// Index returns the index for token and whether it is known.
func (v *Vocabulary) Index(token string) (int, bool) {
	idx, ok := v.index[token]
	return idx, ok
}

// Len returns the number of distinct tokens.
func (v *Vocabulary) Len() int {
	return len(v.tokens)
}

// Tokens returns the tokens ordered by index. The caller must not mutate
// the returned slice.
func (v *Vocabulary) Tokens() []string {
	return v.tokens
}
