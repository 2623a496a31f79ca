package connection

import (
	"time"
)

// State is the supervisor's position in the connection lifecycle.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateRetrying
	StateRotating
	StateDegrading
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateRetrying:
		return "retrying"
	case StateRotating:
		return "rotating"
	case StateDegrading:
		return "degrading"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON status output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SupervisorConfig tunes the connection lifecycle state machine.
type SupervisorConfig struct {
	// RateLimitWindow is the sliding window for counting throttle
	// events, and the cooldown horizon in profile scoring.
	RateLimitWindow time.Duration

	// Backoff bounds. Rate-limit delays grow from RateLimitBaseDelay
	// toward RateLimitMaxDelay; ordinary reconnects use the reconnect
	// pair.
	RateLimitBaseDelay time.Duration
	RateLimitMaxDelay  time.Duration
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration

	// DegradeThreshold is the consecutive failure count that marks a
	// profile degraded for RecoveryTime.
	DegradeThreshold int
	RecoveryTime     time.Duration

	// MaxQRAttempts bounds QR challenges per connection attempt before
	// the supervisor rotates away.
	MaxQRAttempts int

	// PersistInterval is the periodic stats flush. Event-driven flushes
	// happen regardless.
	PersistInterval time.Duration

	// LogoutTimeout bounds the graceful logout during shutdown.
	LogoutTimeout time.Duration
}

// DefaultSupervisorConfig returns production defaults.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		RateLimitWindow:    15 * time.Minute,
		RateLimitBaseDelay: 60 * time.Second,
		RateLimitMaxDelay:  30 * time.Minute,
		ReconnectBaseDelay: 5 * time.Second,
		ReconnectMaxDelay:  5 * time.Minute,
		DegradeThreshold:   3,
		RecoveryTime:       30 * time.Minute,
		MaxQRAttempts:      5,
		PersistInterval:    5 * time.Minute,
		LogoutTimeout:      10 * time.Second,
	}
}

// SupervisorStats is a point-in-time snapshot for logging and the
// status endpoint.
type SupervisorStats struct {
	State          State           `json:"state"`
	ActiveProfile  string          `json:"active_profile"`
	ConnectedSince time.Time       `json:"connected_since,omitzero"`
	Opens          int64           `json:"opens"`
	Disconnects    int64           `json:"disconnects"`
	Retries        int64           `json:"retries"`
	Rotations      int64           `json:"rotations"`
	QRChallenges   int64           `json:"qr_challenges"`
	Profiles       []ProfileStatus `json:"profiles"`
}

// ProfileStatus reports one profile's health as the supervisor sees it.
type ProfileStatus struct {
	Name                string  `json:"name"`
	Score               float64 `json:"score"`
	Eligible            bool    `json:"eligible"`
	Degraded            bool    `json:"degraded"`
	Attempts            int     `json:"attempts"`
	SuccessRate         float64 `json:"success_rate"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
	RateLimits          int     `json:"rate_limits"`
	WindowSize          int     `json:"window_size"`
}
