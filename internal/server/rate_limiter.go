// Package server implements per-connection token bucket throttling that
// protects the coordinator from floods.
package server

import (
	"time"

	"golang.org/x/time/rate"
)

// newClientLimiter returns nil when limiting is off.
func newClientLimiter(cfg RateLimitConfig) *rate.Limiter {
	if cfg.Burst <= 0 {
		return nil
	}
	return newRateLimiter(cfg.Burst, cfg.RefillInterval)
}

// newRateLimiter allows capacity events per interval with bursts up to
// capacity. The bucket starts full.
func newRateLimiter(capacity int, interval time.Duration) *rate.Limiter {
	if capacity <= 0 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	perSecond := float64(capacity) / interval.Seconds()
	return rate.NewLimiter(rate.Limit(perSecond), capacity)
}
