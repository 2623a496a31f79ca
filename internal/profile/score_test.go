package profile

import (
	"testing"
	"time"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestScoreBounds(t *testing.T) {
	s := NewScorer(15 * time.Minute)

	tests := []struct {
		name  string
		stats Stats
	}{
		{"zero value", Stats{}},
		{"perfect", Stats{
			Attempts:              10,
			SuccessfulConnections: 10,
			LastAttempt:           testNow.Add(-24 * time.Hour),
			Performance:           Performance{AvgUptime: 48 * time.Hour, SuccessRate: 1.0},
		}},
		{"heavily rate limited", Stats{
			Attempts:    100,
			RateLimits:  50,
			LastAttempt: testNow.Add(-time.Second),
			Performance: Performance{SuccessRate: 0.01},
		}},
		{"just attempted", Stats{
			Attempts:    1,
			LastAttempt: testNow,
		}},
		{"uptime above ceiling", Stats{
			Performance: Performance{AvgUptime: 1000 * time.Hour, SuccessRate: 1.0},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := s.Score(Profile{Name: "p", Stats: tt.stats}, testNow)
			if score < 0 || score > 1 {
				t.Errorf("Score() = %v, want within [0, 1]", score)
			}
		})
	}
}

func TestScoreTerms(t *testing.T) {
	s := NewScorer(15 * time.Minute)

	// Fresh profile: uptime 0, success rate 0, rate-limit term 1, cooling 1.
	fresh := Profile{Name: "fresh"}
	if got, want := s.Score(fresh, testNow), 0.4; !closeTo(got, want) {
		t.Errorf("fresh profile score = %v, want %v", got, want)
	}

	// Perfect profile scores 1.0: full uptime, perfect rate, no rate
	// limits, fully cooled.
	perfect := Profile{Stats: Stats{
		Attempts:              5,
		SuccessfulConnections: 5,
		LastAttempt:           testNow.Add(-time.Hour),
		Performance:           Performance{AvgUptime: 24 * time.Hour, SuccessRate: 1.0},
	}}
	if got := s.Score(perfect, testNow); !closeTo(got, 1.0) {
		t.Errorf("perfect profile score = %v, want 1.0", got)
	}

	// One rate limit halves the rate-limit term: 0.2*1 -> 0.2*0.5.
	limited := perfect
	limited.Stats.RateLimits = 1
	if got, want := s.Score(limited, testNow), 0.9; !closeTo(got, want) {
		t.Errorf("one rate limit score = %v, want %v", got, want)
	}

	// Attempt 5 minutes ago in a 15 minute window: cooling term is 1/3.
	warm := perfect
	warm.Stats.LastAttempt = testNow.Add(-5 * time.Minute)
	if got, want := s.Score(warm, testNow), 0.8+0.2/3; !closeTo(got, want) {
		t.Errorf("warm profile score = %v, want %v", got, want)
	}
}

func TestEligible(t *testing.T) {
	s := NewScorer(15 * time.Minute)

	tests := []struct {
		name  string
		stats Stats
		want  bool
	}{
		{"never attempted", Stats{}, true},
		{"attempted long ago", Stats{LastAttempt: testNow.Add(-time.Hour)}, true},
		{"attempted just now", Stats{LastAttempt: testNow}, false},
		{"attempted inside window", Stats{LastAttempt: testNow.Add(-10 * time.Minute)}, false},
		{"attempted exactly one window ago", Stats{LastAttempt: testNow.Add(-15 * time.Minute)}, true},
		{"degraded", Stats{
			LastAttempt: testNow.Add(-time.Hour),
			Performance: Performance{DegradedUntil: testNow.Add(10 * time.Minute)},
		}, false},
		{"degradation expired", Stats{
			LastAttempt: testNow.Add(-time.Hour),
			Performance: Performance{DegradedUntil: testNow.Add(-time.Minute)},
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Eligible(Profile{Stats: tt.stats}, testNow)
			if got != tt.want {
				t.Errorf("Eligible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSelectBestEligible(t *testing.T) {
	s := NewScorer(15 * time.Minute)
	cooled := testNow.Add(-time.Hour)

	tests := []struct {
		name     string
		profiles []Profile
		want     string
	}{
		{
			name: "highest score wins",
			profiles: []Profile{
				{Name: "a", Stats: Stats{LastAttempt: cooled}},
				{Name: "b", Stats: Stats{LastAttempt: cooled, Performance: Performance{SuccessRate: 0.9, AvgUptime: 12 * time.Hour}}},
			},
			want: "b",
		},
		{
			name: "tie breaks by declaration order",
			profiles: []Profile{
				{Name: "first", Stats: Stats{LastAttempt: cooled}},
				{Name: "second", Stats: Stats{LastAttempt: cooled}},
			},
			want: "first",
		},
		{
			name: "degraded profile excluded",
			profiles: []Profile{
				{Name: "good", Stats: Stats{LastAttempt: cooled, Performance: Performance{SuccessRate: 1.0, DegradedUntil: testNow.Add(20 * time.Minute)}}},
				{Name: "weak", Stats: Stats{LastAttempt: cooled}},
			},
			want: "weak",
		},
		{
			name: "falls back to best score when none eligible",
			profiles: []Profile{
				{Name: "a", Stats: Stats{LastAttempt: testNow.Add(-time.Minute)}},
				{Name: "b", Stats: Stats{LastAttempt: testNow.Add(-time.Minute), Performance: Performance{SuccessRate: 0.8}}},
			},
			want: "b",
		},
		{
			name: "single degraded profile still selected",
			profiles: []Profile{
				{Name: "only", Stats: Stats{Performance: Performance{DegradedUntil: testNow.Add(time.Hour)}}},
			},
			want: "only",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := s.SelectBestEligible(tt.profiles, testNow)
			if !ok {
				t.Fatal("SelectBestEligible() returned no profile")
			}
			if got.Name != tt.want {
				t.Errorf("SelectBestEligible() = %q, want %q", got.Name, tt.want)
			}
		})
	}

	if _, ok := s.SelectBestEligible(nil, testNow); ok {
		t.Error("SelectBestEligible(nil) = ok, want none")
	}
}

func TestSelectDegradationRecovery(t *testing.T) {
	s := NewScorer(15 * time.Minute)

	// A profile degraded at testNow for 30 minutes competes with a weaker
	// one. Selection 10 minutes in excludes it; 31 minutes in includes it.
	strong := Profile{Name: "strong", Stats: Stats{
		LastAttempt: testNow.Add(-2 * time.Hour),
		Performance: Performance{SuccessRate: 1.0, AvgUptime: 24 * time.Hour, DegradedUntil: testNow.Add(30 * time.Minute)},
	}}
	weak := Profile{Name: "weak", Stats: Stats{LastAttempt: testNow.Add(-2 * time.Hour)}}
	profiles := []Profile{strong, weak}

	got, _ := s.SelectBestEligible(profiles, testNow.Add(10*time.Minute))
	if got.Name != "weak" {
		t.Errorf("selection at +10m = %q, want %q", got.Name, "weak")
	}

	got, _ = s.SelectBestEligible(profiles, testNow.Add(31*time.Minute))
	if got.Name != "strong" {
		t.Errorf("selection at +31m = %q, want %q", got.Name, "strong")
	}
}

func closeTo(got, want float64) bool {
	const eps = 1e-9
	return got-want < eps && want-got < eps
}
