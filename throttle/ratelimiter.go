package throttle

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig holds per-provider token bucket settings
type RateLimiterConfig struct {
	TokensPerMinute int
	Capacity        int
	MinInterval     time.Duration
	HourlyCap       int
}

// RateLimiter gatekeeps call frequency per provider with a token
// bucket, a minimum inter-request interval and a rolling hourly cap.
// Acquire never blocks and never errors; a denial means "retry later".
type RateLimiter struct {
	mu      sync.Mutex
	cfg     RateLimiterConfig
	buckets map[string]*rateBucket
	now     func() time.Time
}

// rateBucket tracks grant state for one provider
type rateBucket struct {
	limiter   *rate.Limiter
	lastGrant time.Time
	window    []time.Time
}

// NewRateLimiter creates a rate limiter with the given settings
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	return &RateLimiter{
		cfg:     cfg,
		buckets: make(map[string]*rateBucket),
		now:     time.Now,
	}
}

// bucket lazily creates per-provider state; caller must hold rl.mu
func (rl *RateLimiter) bucket(provider string) *rateBucket {
	b, ok := rl.buckets[provider]
	if !ok {
		b = &rateBucket{
			limiter: rate.NewLimiter(rate.Limit(float64(rl.cfg.TokensPerMinute)/60.0), rl.cfg.Capacity),
		}
		rl.buckets[provider] = b
	}
	return b
}

// Acquire attempts to take one token for the provider. It refills
// proportionally to elapsed time, then denies if the minimum interval
// has not elapsed since the last grant, denies if the hourly cap is
// reached, denies if no token is available, otherwise consumes one
// token and records the grant.
func (rl *RateLimiter) Acquire(provider string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b := rl.bucket(provider)
	b.pruneWindow(now)

	if !b.lastGrant.IsZero() && now.Sub(b.lastGrant) < rl.cfg.MinInterval {
		return false
	}
	if len(b.window) >= rl.cfg.HourlyCap {
		return false
	}
	if !b.limiter.AllowN(now, 1) {
		return false
	}

	b.lastGrant = now
	b.window = append(b.window, now)
	return true
}

// RemainingTokens returns the whole tokens currently available,
// clamped to [0, capacity]. Read-only; never forces a denial.
func (rl *RateLimiter) RemainingTokens(provider string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b := rl.bucket(provider)
	tokens := int(b.limiter.TokensAt(rl.now()))
	if tokens < 0 {
		tokens = 0
	}
	if tokens > rl.cfg.Capacity {
		tokens = rl.cfg.Capacity
	}
	return tokens
}

// TimeUntilNextToken reports how long a caller should wait before the
// next Acquire has a chance of succeeding.
func (rl *RateLimiter) TimeUntilNextToken(provider string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b := rl.bucket(provider)

	var wait time.Duration
	if tokens := b.limiter.TokensAt(now); tokens < 1 {
		perToken := time.Duration(float64(time.Minute) / float64(rl.cfg.TokensPerMinute))
		wait = time.Duration((1 - tokens) * float64(perToken))
	}
	if !b.lastGrant.IsZero() {
		if rest := rl.cfg.MinInterval - now.Sub(b.lastGrant); rest > wait {
			wait = rest
		}
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

// pruneWindow drops request timestamps older than the trailing hour
func (b *rateBucket) pruneWindow(now time.Time) {
	cutoff := now.Add(-time.Hour)
	i := 0
	for i < len(b.window) && !b.window[i].After(cutoff) {
		i++
	}
	if i > 0 {
		b.window = append(b.window[:0], b.window[i:]...)
	}
}
