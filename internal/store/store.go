// Package store persists per-profile connection statistics across
// process restarts.
//
// Two backends are provided:
//   - FileStore: a single JSON document, written atomically
//   - PostgresStore: one row per profile, upserted in batches
//
// Both load tolerantly: records with missing fields come back with
// zero-value defaults, and a missing source yields an empty map rather
// than an error so a fresh deployment starts clean.
package store

import (
	"context"
	"time"

	"github.com/madariss5/BLACKSKYMD-sub006/internal/profile"
)

// Store loads and saves the full stats snapshot keyed by profile name.
type Store interface {
	Load(ctx context.Context) (map[string]profile.Stats, error)
	Save(ctx context.Context, stats map[string]profile.Stats) error
}

// statsRecord is the serialized form of profile.Stats. Durations are
// stored as millisecond floats so the format stays language-neutral.
// LastSaved is persistence metadata; it never flows back into profile.Stats.
type statsRecord struct {
	Attempts              int               `json:"attempts"`
	LastAttempt           time.Time         `json:"lastAttempt,omitzero"`
	RateLimits            int               `json:"rateLimits"`
	SuccessfulConnections int               `json:"successfulConnections"`
	ConsecutiveFailures   int               `json:"consecutiveFailures"`
	LastSuccess           time.Time         `json:"lastSuccess,omitzero"`
	Performance           performanceRecord `json:"performance"`
	LastSaved             time.Time         `json:"lastSaved,omitzero"`
}

type performanceRecord struct {
	AvgUptimeMs          float64   `json:"avgUptime"`
	Disconnects          int       `json:"disconnects"`
	LastDisconnectReason string    `json:"lastDisconnectReason"`
	DegradedUntil        time.Time `json:"degradedUntil,omitzero"`
	SuccessRate          float64   `json:"successRate"`
	AvgResponseTimeMs    float64   `json:"avgResponseTime"`
}

func fromStats(s profile.Stats) statsRecord {
	return statsRecord{
		Attempts:              s.Attempts,
		LastAttempt:           s.LastAttempt,
		RateLimits:            s.RateLimits,
		SuccessfulConnections: s.SuccessfulConnections,
		ConsecutiveFailures:   s.ConsecutiveFailures,
		LastSuccess:           s.LastSuccess,
		Performance: performanceRecord{
			AvgUptimeMs:          durationToMs(s.Performance.AvgUptime),
			Disconnects:          s.Performance.Disconnects,
			LastDisconnectReason: s.Performance.LastDisconnectReason,
			DegradedUntil:        s.Performance.DegradedUntil,
			SuccessRate:          s.Performance.SuccessRate,
			AvgResponseTimeMs:    durationToMs(s.Performance.AvgResponseTime),
		},
	}
}

func (r statsRecord) toStats() profile.Stats {
	return profile.Stats{
		Attempts:              r.Attempts,
		LastAttempt:           r.LastAttempt,
		RateLimits:            r.RateLimits,
		SuccessfulConnections: r.SuccessfulConnections,
		ConsecutiveFailures:   r.ConsecutiveFailures,
		LastSuccess:           r.LastSuccess,
		Performance: profile.Performance{
			AvgUptime:            msToDuration(r.Performance.AvgUptimeMs),
			Disconnects:          r.Performance.Disconnects,
			LastDisconnectReason: r.Performance.LastDisconnectReason,
			DegradedUntil:        r.Performance.DegradedUntil,
			SuccessRate:          r.Performance.SuccessRate,
			AvgResponseTime:      msToDuration(r.Performance.AvgResponseTimeMs),
		},
	}
}

func durationToMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func msToDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
