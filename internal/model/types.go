// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 Feedrank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/feedrank/feedrank

// Package model defines the core domain types for Feedrank: user, item and
// interaction records fetched from the analytics database, the trained model
// snapshot, and the concurrency-safe store that serves the active snapshot.
package model

import "time"

// User is a platform member eligible for personalized recommendations.
type User struct {
	ID          string
	Role        string
	Communities []string
}

// Item is a piece of rankable content.
type Item struct {
	ID          string
	CommunityID string
	Tags        []string
	CreatedAt   time.Time
}

// Interaction is a single engagement event between a user and an item.
// Kind is one of "view", "like" or "comment".
type Interaction struct {
	UserID     string
	ItemID     string
	Kind       string
	OccurredAt time.Time
}

// ItemMetadata is the per-item descriptive data carried inside a snapshot
// so recommendation responses can be served without a database round trip.
// Engagement tallies feed the cold-start popularity signal.
type ItemMetadata struct {
	CommunityID string
	Tags        []string
	CreatedAt   time.Time
	Views       int
	Likes       int
	Comments    int
}
