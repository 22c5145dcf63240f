package limiter

import (
	"sync"
	"time"

	"github.com/Shugur-Network/roomchat/internal/config"
	"github.com/Shugur-Network/roomchat/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// idleExpiry is how long an unused key is kept before Cleanup drops it.
const idleExpiry = 10 * time.Minute

// counter tracks one key's bucket and ban state.
type counter struct {
	bucket     *rate.Limiter
	violations int
	bannedTill time.Time
	lastSeen   time.Time
}

// RateLimiter throttles WebSocket handshakes per client key (normally the
// client IP). Keys that keep exceeding their bucket are banned for a while.
type RateLimiter struct {
	limit        rate.Limit
	burst        int
	banThreshold int
	banDuration  time.Duration
	now          func() time.Time

	mu     sync.Mutex
	counts map[string]*counter
}

// NewRateLimiter builds a limiter from the handshake throttle settings.
func NewRateLimiter(cfg config.HandshakeLimitConfig) *RateLimiter {
	return &RateLimiter{
		limit:        rate.Limit(cfg.PerMinute) / 60,
		burst:        cfg.Burst,
		banThreshold: cfg.BanThreshold,
		banDuration:  cfg.BanDuration,
		now:          time.Now,
		counts:       make(map[string]*counter),
	}
}

// Allow reports whether key may open another connection now.
func (rl *RateLimiter) Allow(key string) bool {
	if key == "" {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	c, ok := rl.counts[key]
	if !ok {
		c = &counter{bucket: rate.NewLimiter(rl.limit, rl.burst)}
		rl.counts[key] = c
	}
	c.lastSeen = now

	if now.Before(c.bannedTill) {
		return false
	}
	if c.bucket.AllowN(now, 1) {
		return true
	}

	c.violations++
	if rl.banThreshold > 0 && c.violations >= rl.banThreshold {
		c.bannedTill = now.Add(rl.banDuration)
		c.violations = 0
		logger.Warn("Handshake rate exceeded, client banned",
			zap.String("key", key),
			zap.Duration("ban_duration", rl.banDuration))
		return false
	}

	logger.Debug("Handshake rate exceeded", zap.String("key", key), zap.Int("violations", c.violations))
	return false
}

// Banned reports whether key is currently banned.
func (rl *RateLimiter) Banned(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	c, ok := rl.counts[key]
	return ok && rl.now().Before(c.bannedTill)
}

// Reset forgets everything about key.
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.counts, key)
}

// Cleanup removes keys that are idle and not banned.
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for key, c := range rl.counts {
		if now.Sub(c.lastSeen) > idleExpiry && !now.Before(c.bannedTill) {
			delete(rl.counts, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.counts)
}

// Run calls Cleanup every interval until done is closed.
func (rl *RateLimiter) Run(done <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if n := rl.Cleanup(); n > 0 {
				logger.Debug("Cleaned expired handshake counters", zap.Int("removed", n))
			}
		}
	}
}
