package api

import (
	"math"
	"sync"
	"time"

	"selefli/internal/config"

	"golang.org/x/time/rate"
)

// Buckets untouched for this long are dropped on the next sweep.
const clientIdleTTL = 10 * time.Minute

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per client address.
type rateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*clientBucket
	limit     rate.Limit
	burst     int
	lastSweep time.Time
}

func newRateLimiter(cfg *config.APIConfig) *rateLimiter {
	burst := cfg.RateLimit.Burst
	if burst <= 0 {
		burst = max(5, int(math.Ceil(cfg.RateLimit.RPS)))
	}
	return &rateLimiter{
		clients: make(map[string]*clientBucket),
		limit:   rate.Limit(cfg.RateLimit.RPS),
		burst:   burst,
	}
}

func (l *rateLimiter) allow(key string) bool {
	now := time.Now()

	l.mu.Lock()
	if now.Sub(l.lastSweep) > clientIdleTTL {
		for k, b := range l.clients {
			if now.Sub(b.lastSeen) > clientIdleTTL {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}
	b, ok := l.clients[key]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}
