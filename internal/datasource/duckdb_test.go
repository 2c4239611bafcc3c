// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 Feedrank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/feedrank/feedrank

package datasource

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// newTestDB opens a file-backed database in a temp dir and seeds the
// engagement tables.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(Config{Path: filepath.Join(t.TempDir(), "analytics.db"), Threads: 2, MaxMemory: "256MB"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	ctx := context.Background()
	seed := []string{
		`INSERT INTO users VALUES ('u1', 'member'), ('u2', 'moderator')`,
		`INSERT INTO user_communities VALUES ('u1', 'c1', TRUE), ('u1', 'c2', FALSE), ('u2', 'c1', TRUE)`,
		`INSERT INTO items VALUES
			('i1', 'c1', 'go, databases', TIMESTAMP '2026-07-30 09:00:00'),
			('i2', 'c2', NULL, TIMESTAMP '2026-08-01 09:00:00')`,
		`INSERT INTO interactions VALUES
			('u1', 'i1', 'view', TIMESTAMP '2026-08-01 10:00:00'),
			('u1', 'i1', 'like', TIMESTAMP '2026-08-02 10:00:00'),
			('u2', 'i2', 'comment', TIMESTAMP '2026-08-03 10:00:00')`,
	}
	for _, q := range seed {
		if _, err := db.conn.ExecContext(ctx, q); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	return db
}

func TestFetchUsers(t *testing.T) {
	db := newTestDB(t)

	users, err := db.FetchUsers(context.Background())
	if err != nil {
		t.Fatalf("FetchUsers failed: %v", err)
	}

	if len(users) != 2 {
		t.Fatalf("got %d users, want 2", len(users))
	}
	if users[0].ID != "u1" || users[0].Role != "member" {
		t.Errorf("users[0] = %+v", users[0])
	}

	// Only active memberships are attached.
	if !reflect.DeepEqual(users[0].Communities, []string{"c1"}) {
		t.Errorf("u1 communities = %v, want [c1]", users[0].Communities)
	}
	if !reflect.DeepEqual(users[1].Communities, []string{"c1"}) {
		t.Errorf("u2 communities = %v, want [c1]", users[1].Communities)
	}
}

func TestFetchItems(t *testing.T) {
	db := newTestDB(t)

	items, err := db.FetchItems(context.Background())
	if err != nil {
		t.Fatalf("FetchItems failed: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].ID != "i1" || items[0].CommunityID != "c1" {
		t.Errorf("items[0] = %+v", items[0])
	}
	if !reflect.DeepEqual(items[0].Tags, []string{"go", "databases"}) {
		t.Errorf("i1 tags = %v, want [go databases]", items[0].Tags)
	}
	if items[1].Tags != nil {
		t.Errorf("i2 tags = %v, want nil", items[1].Tags)
	}
	if want := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC); !items[0].CreatedAt.Equal(want) {
		t.Errorf("i1 created_at = %v, want %v", items[0].CreatedAt, want)
	}
}

func TestFetchInteractions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	all, err := db.FetchInteractions(ctx, time.Time{})
	if err != nil {
		t.Fatalf("FetchInteractions failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d interactions, want 3", len(all))
	}
	if all[0].UserID != "u1" || all[0].Kind != "view" {
		t.Errorf("all[0] = %+v", all[0])
	}

	// Lookback filter.
	since := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)
	recent, err := db.FetchInteractions(ctx, since)
	if err != nil {
		t.Fatalf("FetchInteractions(since) failed: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("got %d recent interactions, want 2", len(recent))
	}
}

func TestSplitTags(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"", nil},
		{"go", []string{"go"}},
		{"go, databases ,web", []string{"go", "databases", "web"}},
		{" , ,", nil},
	}
	for _, tt := range tests {
		if got := splitTags(tt.raw); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitTags(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
