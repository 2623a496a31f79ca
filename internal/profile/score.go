package profile

import "time"

// Score weights. They sum to 1.0, keeping scores in [0, 1].
const (
	weightUptime      = 0.3
	weightSuccessRate = 0.3
	weightRateLimit   = 0.2
	weightCooling     = 0.2

	// uptimeCeiling is the average uptime that earns a full uptime term.
	uptimeCeiling = 24 * time.Hour
)

// Scorer ranks profiles by connection fitness. Window is the rate-limit
// window; it normalizes the cooling term and gates eligibility.
type Scorer struct {
	Window time.Duration
}

// NewScorer returns a scorer using the given rate-limit window.
func NewScorer(window time.Duration) *Scorer {
	return &Scorer{Window: window}
}

// Score computes the weighted fitness of a profile at time now. The result
// is always in [0, 1].
//
// Terms, each normalized to [0, 1]:
//   - uptime: avg uptime relative to 24h
//   - success rate: successful connections / attempts
//   - rate limits: 1/(rateLimits+1), so every rate limit halves then thins
//   - cooling: time since last attempt relative to the rate-limit window
func (s *Scorer) Score(p Profile, now time.Time) float64 {
	st := p.Stats

	uptime := clamp01(float64(st.Performance.AvgUptime) / float64(uptimeCeiling))
	successRate := clamp01(st.Performance.SuccessRate)
	rateLimit := 1 / float64(st.RateLimits+1)
	cooling := 1.0
	if !st.LastAttempt.IsZero() && s.Window > 0 {
		cooling = clamp01(float64(now.Sub(st.LastAttempt)) / float64(s.Window))
	}

	return weightUptime*uptime +
		weightSuccessRate*successRate +
		weightRateLimit*rateLimit +
		weightCooling*cooling
}

// Eligible reports whether a profile may be selected: its last attempt is at
// least one rate-limit window old and it is not inside a degradation window.
func (s *Scorer) Eligible(p Profile, now time.Time) bool {
	if p.Stats.Degraded(now) {
		return false
	}
	if p.Stats.LastAttempt.IsZero() {
		return true
	}
	return now.Sub(p.Stats.LastAttempt) >= s.Window
}

// SelectBestEligible returns the highest-scoring eligible profile. Ties
// break by declaration order. When no profile is eligible it falls back to
// the highest-scoring profile overall so the supervisor always makes
// progress. Returns false only for an empty slice.
func (s *Scorer) SelectBestEligible(profiles []Profile, now time.Time) (Profile, bool) {
	if len(profiles) == 0 {
		return Profile{}, false
	}

	best := -1
	bestScore := -1.0
	for i, p := range profiles {
		if !s.Eligible(p, now) {
			continue
		}
		if score := s.Score(p, now); score > bestScore {
			best = i
			bestScore = score
		}
	}
	if best >= 0 {
		return profiles[best], true
	}

	// Nothing eligible; pick the best score regardless.
	best = 0
	bestScore = s.Score(profiles[0], now)
	for i := 1; i < len(profiles); i++ {
		if score := s.Score(profiles[i], now); score > bestScore {
			best = i
			bestScore = score
		}
	}
	return profiles[best], true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
