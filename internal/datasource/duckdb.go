// Feedrank - Personalized Feed Ranking Service
// Copyright 2026 Feedrank Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/feedrank/feedrank

// Package datasource reads training data from the engagement analytics
// DuckDB database: users with their roles and community memberships,
// rankable items, and raw interaction events.
package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // database/sql driver
	"github.com/feedrank/feedrank/internal/logging"
	"github.com/feedrank/feedrank/internal/metrics"
	"github.com/feedrank/feedrank/internal/model"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
)

// Config holds DuckDB connection settings.
type Config struct {
	// Path is the database file path; empty selects an in-memory database.
	Path string

	// Threads caps DuckDB's internal parallelism. 0 = NumCPU.
	Threads int

	// MaxMemory is DuckDB's memory budget, e.g. "1GB".
	MaxMemory string
}

// DB wraps the analytics database with connection pooling and a circuit
// breaker so a wedged database fails training runs fast instead of
// stalling them.
type DB struct {
	conn    *sql.DB
	breaker *gobreaker.CircuitBreaker[any]
	logger  zerolog.Logger
}

// New opens the database, configures the connection pool, verifies
// connectivity and ensures the schema exists.
func New(cfg Config) (*DB, error) {
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "1GB"
	}
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s", path, threads, maxMemory)
	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	conn.SetMaxOpenConns(runtime.NumCPU())
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close() //nolint:errcheck // cleanup path
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	db := &DB{
		conn:   conn,
		logger: logging.WithComponent("datasource"),
	}
	db.breaker = newBreaker("duckdb")

	if err := db.createTables(); err != nil {
		conn.Close() //nolint:errcheck // cleanup path
		return nil, err
	}

	db.logger.Info().Str("path", cfg.Path).Int("threads", threads).Msg("Data source ready")
	return db, nil
}

// newBreaker configures the circuit breaker: open after a 60% failure
// rate over at least 5 requests, retry after 30 seconds.
func newBreaker(name string) *gobreaker.CircuitBreaker[any] {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// createTables ensures the engagement schema exists. In production the
// tables are populated by the platform's ingestion pipeline; creating
// them here keeps fresh deployments and tests self-contained.
func (d *DB) createTables() error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			role TEXT NOT NULL DEFAULT 'member'
		)`,
		`CREATE TABLE IF NOT EXISTS user_communities (
			user_id TEXT NOT NULL,
			community_id TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			community_id TEXT,
			tags TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS interactions (
			user_id TEXT NOT NULL,
			item_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, query := range queries {
		if _, err := d.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	return nil
}

// execute wraps a query in the circuit breaker and records metrics.
func execute[T any](d *DB, operation, table string, fn func() (T, error)) (T, error) {
	start := time.Now()
	result, err := d.breaker.Execute(func() (any, error) {
		return fn()
	})
	metrics.RecordDBQuery(operation, table, time.Since(start), err)

	if err != nil {
		metrics.CircuitBreakerRequests.WithLabelValues("duckdb", breakerResult(err)).Inc()
		var zero T
		return zero, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues("duckdb", "success").Inc()
	return result.(T), nil
}

func breakerResult(err error) string {
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return "rejected"
	}
	return "failure"
}

// FetchUsers returns all users with their active community memberships.
func (d *DB) FetchUsers(ctx context.Context) ([]model.User, error) {
	return execute(d, "select", "users", func() ([]model.User, error) {
		rows, err := d.conn.QueryContext(ctx, `SELECT id, role FROM users ORDER BY id`)
		if err != nil {
			return nil, fmt.Errorf("query users: %w", err)
		}
		defer rows.Close() //nolint:errcheck // read-only close

		var users []model.User
		byID := make(map[string]int)
		for rows.Next() {
			var u model.User
			if err := rows.Scan(&u.ID, &u.Role); err != nil {
				return nil, fmt.Errorf("scan user: %w", err)
			}
			byID[u.ID] = len(users)
			users = append(users, u)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate users: %w", err)
		}

		memberships, err := d.conn.QueryContext(ctx,
			`SELECT user_id, community_id FROM user_communities WHERE is_active ORDER BY user_id, community_id`)
		if err != nil {
			return nil, fmt.Errorf("query memberships: %w", err)
		}
		defer memberships.Close() //nolint:errcheck // read-only close

		for memberships.Next() {
			var userID, communityID string
			if err := memberships.Scan(&userID, &communityID); err != nil {
				return nil, fmt.Errorf("scan membership: %w", err)
			}
			if idx, ok := byID[userID]; ok {
				users[idx].Communities = append(users[idx].Communities, communityID)
			}
		}
		if err := memberships.Err(); err != nil {
			return nil, fmt.Errorf("iterate memberships: %w", err)
		}

		return users, nil
	})
}

// FetchItems returns all rankable items. Tags are stored as a
// comma-separated list and split here.
func (d *DB) FetchItems(ctx context.Context) ([]model.Item, error) {
	return execute(d, "select", "items", func() ([]model.Item, error) {
		rows, err := d.conn.QueryContext(ctx, `SELECT id, community_id, tags, created_at FROM items ORDER BY id`)
		if err != nil {
			return nil, fmt.Errorf("query items: %w", err)
		}
		defer rows.Close() //nolint:errcheck // read-only close

		var items []model.Item
		for rows.Next() {
			var it model.Item
			var communityID, tags sql.NullString
			if err := rows.Scan(&it.ID, &communityID, &tags, &it.CreatedAt); err != nil {
				return nil, fmt.Errorf("scan item: %w", err)
			}
			it.CommunityID = communityID.String
			it.Tags = splitTags(tags.String)
			items = append(items, it)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate items: %w", err)
		}

		return items, nil
	})
}

// FetchInteractions returns interaction events at or after since. A zero
// since fetches the full history.
func (d *DB) FetchInteractions(ctx context.Context, since time.Time) ([]model.Interaction, error) {
	return execute(d, "select", "interactions", func() ([]model.Interaction, error) {
		query := `SELECT user_id, item_id, kind, created_at FROM interactions`
		args := []any{}
		if !since.IsZero() {
			query += ` WHERE created_at >= ?`
			args = append(args, since)
		}
		query += ` ORDER BY created_at, user_id, item_id`

		rows, err := d.conn.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("query interactions: %w", err)
		}
		defer rows.Close() //nolint:errcheck // read-only close

		var events []model.Interaction
		for rows.Next() {
			var ev model.Interaction
			if err := rows.Scan(&ev.UserID, &ev.ItemID, &ev.Kind, &ev.OccurredAt); err != nil {
				return nil, fmt.Errorf("scan interaction: %w", err)
			}
			events = append(events, ev)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate interactions: %w", err)
		}

		return events, nil
	})
}

// Ping verifies database connectivity for readiness checks.
func (d *DB) Ping(ctx context.Context) error {
	return d.conn.PingContext(ctx)
}

// Close closes the connection pool.
func (d *DB) Close() error {
	return d.conn.Close()
}

// splitTags parses the comma-separated tag column.
func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
