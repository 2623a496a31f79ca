package profile

import "time"

// Profile is an identity the supervisor can connect under.
type Profile struct {
	Name          string // unique label, e.g. "safari-mac"
	Fingerprint   string // opaque client-identity descriptor sent to the gateway
	CredentialRef string // handle for the credential store
	Stats         Stats
}

// Stats tracks connection outcomes for a single profile.
type Stats struct {
	Attempts              int
	LastAttempt           time.Time // zero = never attempted
	RateLimits            int
	SuccessfulConnections int
	ConsecutiveFailures   int
	LastSuccess           time.Time // zero = never succeeded
	Performance           Performance
}

// Performance holds derived quality metrics for a profile.
type Performance struct {
	AvgUptime            time.Duration // exponentially weighted session uptime
	Disconnects          int
	LastDisconnectReason string    // "" = none yet
	DegradedUntil        time.Time // zero = not degraded
	SuccessRate          float64   // successfulConnections / max(attempts, 1)
	AvgResponseTime      time.Duration
}

// uptimeWeight is the EWMA decay applied to AvgUptime on each disconnect:
// new = old*uptimeWeight + observed*(1-uptimeWeight).
const uptimeWeight = 0.7

// RecordAttempt marks the start of a connection attempt.
func (s *Stats) RecordAttempt(now time.Time) {
	s.Attempts++
	s.LastAttempt = now
	s.recomputeSuccessRate()
}

// RecordSuccess marks a successful session open. The failure streak resets
// and the success timestamp becomes the base for the next uptime sample.
func (s *Stats) RecordSuccess(now time.Time) {
	s.ConsecutiveFailures = 0
	s.SuccessfulConnections++
	s.LastSuccess = now
	s.recomputeSuccessRate()
}

// RecordRateLimit counts a rate-limit event against the profile.
func (s *Stats) RecordRateLimit() {
	s.RateLimits++
}

// RecordDisconnect updates performance metrics for a session close and
// advances the failure streak. When the streak reaches degradeThreshold the
// profile is marked degraded until now+recoveryTime. Returns true if this
// call newly degraded the profile.
func (s *Stats) RecordDisconnect(reason string, now time.Time, degradeThreshold int, recoveryTime time.Duration) bool {
	s.Performance.Disconnects++
	s.Performance.LastDisconnectReason = reason

	// Uptime sample is the age of the last successful open. Skipped when the
	// profile has never connected.
	if !s.LastSuccess.IsZero() {
		observed := now.Sub(s.LastSuccess)
		old := s.Performance.AvgUptime
		s.Performance.AvgUptime = time.Duration(float64(old)*uptimeWeight + float64(observed)*(1-uptimeWeight))
	}

	s.recomputeSuccessRate()
	s.ConsecutiveFailures++

	if degradeThreshold > 0 && s.ConsecutiveFailures >= degradeThreshold {
		newly := !s.Degraded(now)
		s.Performance.DegradedUntil = now.Add(recoveryTime)
		return newly
	}
	return false
}

// Degraded reports whether the profile is inside a degradation window.
func (s *Stats) Degraded(now time.Time) bool {
	return !s.Performance.DegradedUntil.IsZero() && now.Before(s.Performance.DegradedUntil)
}

func (s *Stats) recomputeSuccessRate() {
	attempts := s.Attempts
	if attempts < 1 {
		attempts = 1
	}
	s.Performance.SuccessRate = float64(s.SuccessfulConnections) / float64(attempts)
}
