package repository

import (
	"context"
	"sync"
	"time"
)

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

// MemoryRateLimiter is the single-process counterpart of RedisRateLimiter.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*rateLimitEntry
	now     func() time.Time
}

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{entries: make(map[string]*rateLimitEntry), now: time.Now}
}

func (r *MemoryRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.entries[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.entries[key] = entry
		if len(r.entries) > 1024 {
			r.sweep(now)
		}
	}
	entry.count++
	return entry.count <= limit, nil
}

// sweep drops expired windows. Callers hold mu.
func (r *MemoryRateLimiter) sweep(now time.Time) {
	for k, e := range r.entries {
		if now.After(e.expiresAt) {
			delete(r.entries, k)
		}
	}
}
