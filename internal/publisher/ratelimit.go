package publisher

import (
	"sync"
	"time"
)

// tokenBucket is a per-installation rate limiter, generalized from the
// teacher's server/ratelimit.go inMemoryRateLimiter: same mutex-guarded
// map-of-entries shape, but a refillable token bucket instead of a fixed
// window counter, since §4.5 calls for a refill rate derived from the
// provider's x-ratelimit-* headers rather than a flat per-minute cap.
type tokenBucket struct {
	mu    sync.Mutex
	state map[string]*bucketState
	now   func() time.Time
}

type bucketState struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

func newTokenBucket(now func() time.Time) *tokenBucket {
	if now == nil {
		now = time.Now
	}
	return &tokenBucket{state: make(map[string]*bucketState), now: now}
}

// Allow consumes one token for installationID, refilling first. Buckets
// are created lazily with a conservative default (5000 capacity, refilled
// over an hour); only UpdateLimits changes that default.
func (b *tokenBucket) Allow(installationID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.state[installationID]
	if !ok {
		s = &bucketState{tokens: 5000, capacity: 5000, refillRate: 5000.0 / 3600.0, lastRefill: b.now()}
		b.state[installationID] = s
	}
	b.refill(s)
	if s.tokens < 1 {
		return false
	}
	s.tokens--
	return true
}

// UpdateLimits reconciles the bucket with the provider's reported
// remaining/limit/reset. The Publisher never calls it (ghclient.Client does
// not surface response headers), so buckets in use keep the default rate
// set by Allow.
func (b *tokenBucket) UpdateLimits(installationID string, remaining, limit int, resetAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.state[installationID]
	if !ok {
		s = &bucketState{lastRefill: b.now()}
		b.state[installationID] = s
	}
	s.tokens = float64(remaining)
	s.capacity = float64(limit)
	if secondsLeft := resetAt.Sub(b.now()).Seconds(); secondsLeft > 0 && limit > 0 {
		s.refillRate = float64(limit) / secondsLeft
	}
	s.lastRefill = b.now()
}

func (b *tokenBucket) refill(s *bucketState) {
	now := b.now()
	elapsed := now.Sub(s.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	s.tokens += elapsed * s.refillRate
	if s.tokens > s.capacity {
		s.tokens = s.capacity
	}
	s.lastRefill = now
}
