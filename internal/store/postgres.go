package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/madariss5/BLACKSKYMD-sub006/internal/profile"
)

const profileStatsSchema = `
CREATE TABLE IF NOT EXISTS profile_stats (
	profile                TEXT PRIMARY KEY,
	attempts               BIGINT NOT NULL DEFAULT 0,
	last_attempt           TIMESTAMPTZ,
	rate_limits            BIGINT NOT NULL DEFAULT 0,
	successful_connections BIGINT NOT NULL DEFAULT 0,
	consecutive_failures   BIGINT NOT NULL DEFAULT 0,
	last_success           TIMESTAMPTZ,
	avg_uptime_ms          DOUBLE PRECISION NOT NULL DEFAULT 0,
	disconnects            BIGINT NOT NULL DEFAULT 0,
	last_disconnect_reason TEXT NOT NULL DEFAULT '',
	degraded_until         TIMESTAMPTZ,
	success_rate           DOUBLE PRECISION NOT NULL DEFAULT 0,
	avg_response_time_ms   DOUBLE PRECISION NOT NULL DEFAULT 0,
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const upsertProfileStats = `
INSERT INTO profile_stats (
	profile, attempts, last_attempt, rate_limits, successful_connections,
	consecutive_failures, last_success, avg_uptime_ms, disconnects,
	last_disconnect_reason, degraded_until, success_rate, avg_response_time_ms, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
ON CONFLICT (profile) DO UPDATE SET
	attempts               = EXCLUDED.attempts,
	last_attempt           = EXCLUDED.last_attempt,
	rate_limits            = EXCLUDED.rate_limits,
	successful_connections = EXCLUDED.successful_connections,
	consecutive_failures   = EXCLUDED.consecutive_failures,
	last_success           = EXCLUDED.last_success,
	avg_uptime_ms          = EXCLUDED.avg_uptime_ms,
	disconnects            = EXCLUDED.disconnects,
	last_disconnect_reason = EXCLUDED.last_disconnect_reason,
	degraded_until         = EXCLUDED.degraded_until,
	success_rate           = EXCLUDED.success_rate,
	avg_response_time_ms   = EXCLUDED.avg_response_time_ms,
	updated_at             = now()`

const selectProfileStats = `
SELECT profile, attempts, last_attempt, rate_limits, successful_connections,
	consecutive_failures, last_success, avg_uptime_ms, disconnects,
	last_disconnect_reason, degraded_until, success_rate, avg_response_time_ms
FROM profile_stats`

// PostgresStore keeps one row per profile in the profile_stats table.
// The pool is owned by the caller.
type PostgresStore struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore creates a database-backed store on an existing pool.
func NewPostgresStore(db *pgxpool.Pool, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

// Init creates the profile_stats table if it does not exist.
func (s *PostgresStore) Init(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, profileStatsSchema); err != nil {
		return fmt.Errorf("creating profile_stats table: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context) (map[string]profile.Stats, error) {
	rows, err := s.db.Query(ctx, selectProfileStats)
	if err != nil {
		return nil, fmt.Errorf("querying profile stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]profile.Stats)
	for rows.Next() {
		var (
			name                     string
			r                        statsRecord
			lastAttempt, lastSuccess *time.Time
			degradedUntil            *time.Time
		)
		err := rows.Scan(
			&name, &r.Attempts, &lastAttempt, &r.RateLimits, &r.SuccessfulConnections,
			&r.ConsecutiveFailures, &lastSuccess, &r.Performance.AvgUptimeMs,
			&r.Performance.Disconnects, &r.Performance.LastDisconnectReason,
			&degradedUntil, &r.Performance.SuccessRate, &r.Performance.AvgResponseTimeMs,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning profile stats row: %w", err)
		}
		r.LastAttempt = timeOrZero(lastAttempt)
		r.LastSuccess = timeOrZero(lastSuccess)
		r.Performance.DegradedUntil = timeOrZero(degradedUntil)
		stats[name] = r.toStats()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading profile stats rows: %w", err)
	}

	s.logger.Debug("loaded profile stats", "profiles", len(stats))
	return stats, nil
}

// Save implements Store. All rows go out in a single batch.
func (s *PostgresStore) Save(ctx context.Context, stats map[string]profile.Stats) error {
	if len(stats) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for name, st := range stats {
		r := fromStats(st)
		batch.Queue(upsertProfileStats,
			name, r.Attempts, nullableTime(r.LastAttempt), r.RateLimits,
			r.SuccessfulConnections, r.ConsecutiveFailures, nullableTime(r.LastSuccess),
			r.Performance.AvgUptimeMs, r.Performance.Disconnects,
			r.Performance.LastDisconnectReason, nullableTime(r.Performance.DegradedUntil),
			r.Performance.SuccessRate, r.Performance.AvgResponseTimeMs,
		)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for range stats {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upserting profile stats: %w", err)
		}
	}

	s.logger.Debug("saved profile stats", "profiles", len(stats))
	return nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
