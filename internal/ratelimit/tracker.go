// Package ratelimit implements per-profile sliding windows of rate-limit
// events. Windows live in memory only and are rebuilt empty on restart.
package ratelimit

import (
	"sync"
	"time"
)

// Event is a single rate-limit occurrence.
type Event struct {
	At         time.Time
	StatusCode int
}

// Tracker keeps one sliding window per profile. Entries age out of the
// window; the post-prune size is the supervisor's primary rotation trigger.
type Tracker struct {
	window time.Duration

	mu      sync.Mutex
	windows map[string][]Event
}

// NewTracker creates a tracker with one window per profile name. Windows are
// created up front and never removed, only cleared or pruned.
func NewTracker(window time.Duration, profiles []string) *Tracker {
	t := &Tracker{
		window:  window,
		windows: make(map[string][]Event, len(profiles)),
	}
	for _, name := range profiles {
		t.windows[name] = nil
	}
	return t
}

// Record prunes expired entries for the profile and then appends the new
// event. Pruning always precedes insertion so size queries only ever see
// live entries.
func (t *Tracker) Record(profile string, statusCode int, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.pruneLocked(profile, now)
	t.windows[profile] = append(kept, Event{At: now, StatusCode: statusCode})
}

// WindowSize returns the number of unexpired entries for the profile.
func (t *Tracker) WindowSize(profile string, now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.pruneLocked(profile, now)
	t.windows[profile] = kept
	return len(kept)
}

// Clear wipes the profile's window. A successful connection fully resets
// rate-limit memory for that profile.
func (t *Tracker) Clear(profile string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.windows[profile] = nil
}

// pruneLocked drops entries older than the window. Caller holds t.mu.
func (t *Tracker) pruneLocked(profile string, now time.Time) []Event {
	events := t.windows[profile]
	cutoff := now.Add(-t.window)

	kept := events[:0]
	for _, e := range events {
		if e.At.After(cutoff) {
			kept = append(kept, e)
		}
	}
	return kept
}
