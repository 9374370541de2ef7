package repository

import (
	"context"
	"sync/atomic"
	"time"

	"selefli/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverRateLimiter uses the primary limiter until it errors, then the
// fallback, probing the primary again once a minute.
type FailoverRateLimiter struct {
	primary   domain.RateLimiter
	fallback  domain.RateLimiter
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverRateLimiter(primary, fallback domain.RateLimiter, logger *zerolog.Logger) *FailoverRateLimiter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FailoverRateLimiter{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

func (r *FailoverRateLimiter) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("primary rate limiter failed, falling back to memory")
	}
	r.lastCheck.Store(r.now().UnixNano())
}

func (r *FailoverRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.isDown.Load() && r.now().Sub(time.Unix(0, r.lastCheck.Load())) > recoveryInterval {
		r.isDown.Store(false)
		r.logger.Info().Msg("probing primary rate limiter")
	}

	if !r.isDown.Load() {
		allowed, err := r.primary.Allow(ctx, key, limit, window)
		if err == nil {
			return allowed, nil
		}
		r.markDown(err)
	}

	return r.fallback.Allow(ctx, key, limit, window)
}
