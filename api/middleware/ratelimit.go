package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/use-agent/harvest/config"
	"github.com/use-agent/harvest/models"
)

const (
	limiterIdleTTL    = time.Hour
	limiterSweepEvery = 5 * time.Minute
)

// limiterPool hands out one token bucket per caller identity. Stale entries
// are swept inline during lookups rather than by a background goroutine, so
// the pool needs no lifecycle management and cannot leak a ticker per
// middleware instance.
type limiterPool struct {
	mu        sync.Mutex
	rps       float64
	burst     int
	entries   map[string]*limiterEntry
	nextSweep time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiterPool(cfg config.RateLimitConfig) *limiterPool {
	return &limiterPool{
		rps:       cfg.RequestsPerSecond,
		burst:     cfg.Burst,
		entries:   make(map[string]*limiterEntry),
		nextSweep: time.Now().Add(limiterSweepEvery),
	}
}

// get returns the bucket for identity, creating it on first sight.
func (p *limiterPool) get(identity string) *rate.Limiter {
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()

	if now.After(p.nextSweep) {
		p.sweepLocked(now)
		p.nextSweep = now.Add(limiterSweepEvery)
	}

	entry, ok := p.entries[identity]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(p.rps), p.burst)}
		p.entries[identity] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

func (p *limiterPool) sweepLocked(now time.Time) {
	cutoff := now.Add(-limiterIdleTTL)
	for id, entry := range p.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(p.entries, id)
		}
	}
}

// RateLimit returns per-identity (API key or IP) token-bucket rate limiting
// middleware powered by golang.org/x/time/rate. This guards the HTTP
// surface; pacing toward the scraped sites lives in the runner.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	pool := newLimiterPool(cfg)

	return func(c *gin.Context) {
		// Prefer API key as identity (set by auth middleware); fall back to IP.
		identity, exists := c.Get("api_key")
		if !exists {
			identity = c.ClientIP()
		}

		if !pool.get(identity.(string)).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ExtractResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Kind:    models.ErrKindRateLimitExceeded,
					Message: "rate limit exceeded, please slow down",
				},
			})
			return
		}

		c.Next()
	}
}
