// Package backoff computes retry delays with exponential growth and
// randomized jitter. Reconnects and rate-limit cooldowns use separate base
// delays, caps, and jitter fractions.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Defaults for retry delay computation.
const (
	DefaultReconnectBase = 5 * time.Second
	DefaultReconnectMax  = 5 * time.Minute
	DefaultRateLimitBase = 60 * time.Second
	DefaultRateLimitMax  = 30 * time.Minute
)

// Jitter fractions. Rate-limit cooldowns spread wider to desynchronize
// retries against an actively throttling server.
const (
	reconnectJitterFrac = 0.1
	rateLimitJitterFrac = 0.2
)

// Calculator computes delays. The zero value is not usable; construct with
// New and override fields as needed.
type Calculator struct {
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
	RateLimitBase time.Duration
	RateLimitMax  time.Duration

	// Rand returns a uniform value in [0, 1). Tests inject a fixed source.
	Rand func() float64
}

// New returns a calculator with the default delays.
func New() *Calculator {
	return &Calculator{
		ReconnectBase: DefaultReconnectBase,
		ReconnectMax:  DefaultReconnectMax,
		RateLimitBase: DefaultRateLimitBase,
		RateLimitMax:  DefaultRateLimitMax,
		Rand:          rand.Float64,
	}
}

// Delay returns the wait before retry number attempt (0-based). The raw
// delay doubles per attempt up to the cap, then jitter of
// raw*frac*uniform(-1,1) is applied. The result stays within [0, cap].
func (c *Calculator) Delay(attempt int, rateLimited bool) time.Duration {
	base, limit, frac := c.ReconnectBase, c.ReconnectMax, reconnectJitterFrac
	if rateLimited {
		base, limit, frac = c.RateLimitBase, c.RateLimitMax, rateLimitJitterFrac
	}
	if attempt < 0 {
		attempt = 0
	}

	raw := float64(base) * math.Pow(2, float64(attempt))
	if raw > float64(limit) || math.IsInf(raw, 1) {
		raw = float64(limit)
	}

	jitter := raw * frac * (2*c.rand() - 1)

	d := time.Duration(raw + jitter)
	if d < 0 {
		d = 0
	}
	if d > limit {
		d = limit
	}
	return d
}

func (c *Calculator) rand() float64 {
	if c.Rand != nil {
		return c.Rand()
	}
	return rand.Float64()
}
