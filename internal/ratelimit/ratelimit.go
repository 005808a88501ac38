// Package ratelimit provides per-connection rate limiting for inbound
// frames.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/switchboardhq/switchboard/internal/cherr"
)

// Default rate limit constants
const (
	DefaultFramesPerSecond = 20
	DefaultBurstSize       = 40
	DefaultStaleAfter      = 10 * time.Minute
)

// Config holds configuration for rate limiting.
type Config struct {
	FramesPerSecond float64
	BurstSize       int
	Enabled         bool
}

// Limiter applies a token bucket per connection key. Keys are connection
// ids, so two tabs of the same user are limited independently.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*connLimiter
	config   Config
}

// connLimiter wraps a rate limiter with last access time for cleanup.
type connLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// New creates a limiter with the given config. Zero values fall back to
// defaults.
func New(cfg Config) *Limiter {
	if cfg.FramesPerSecond == 0 {
		cfg.FramesPerSecond = DefaultFramesPerSecond
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = DefaultBurstSize
	}
	return &Limiter{
		limiters: make(map[string]*connLimiter),
		config:   cfg,
	}
}

// Allow checks whether one more frame from key should be processed.
// Returns nil if allowed, or a Backpressure error if the bucket is empty.
func (l *Limiter) Allow(key string) error {
	if !l.config.Enabled {
		return nil
	}

	if !l.getLimiter(key).Allow() {
		return cherr.New(cherr.Backpressure, "rate limit exceeded")
	}
	return nil
}

// Forget drops the bucket for a key. Called on connection teardown so a
// reconnect starts with a full bucket.
func (l *Limiter) Forget(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, key)
}

// CleanupStale removes buckets not touched within maxAge. Returns the
// number removed. maxAge <= 0 uses DefaultStaleAfter.
func (l *Limiter) CleanupStale(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = DefaultStaleAfter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for key, cl := range l.limiters {
		if cl.lastAccess.Before(cutoff) {
			delete(l.limiters, key)
			removed++
		}
	}
	return removed
}

// getLimiter returns or creates the bucket for a key.
func (l *Limiter) getLimiter(key string) *rate.Limiter {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if cl, ok := l.limiters[key]; ok {
		cl.lastAccess = now
		return cl.limiter
	}

	limiter := rate.NewLimiter(rate.Limit(l.config.FramesPerSecond), l.config.BurstSize)
	l.limiters[key] = &connLimiter{limiter: limiter, lastAccess: now}
	return limiter
}
