package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func TestFailoverRateLimiter(t *testing.T) {
	primary := new(mockLimiter)
	fallback := new(mockLimiter)
	logger := zerolog.New(io.Discard)
	limiter := NewFailoverRateLimiter(primary, fallback, &logger)
	clock := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return clock }
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("Allow", ctx, "u-1", 10, time.Minute).Return(true, nil).Once()

		allowed, err := limiter.Allow(ctx, "u-1", 10, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		primary.On("Allow", ctx, "u-2", 10, time.Minute).Return(false, errors.New("fail")).Once()
		fallback.On("Allow", ctx, "u-2", 10, time.Minute).Return(false, nil).Once()

		allowed, err := limiter.Allow(ctx, "u-2", 10, time.Minute)
		assert.NoError(t, err)
		assert.False(t, allowed)
		assert.True(t, limiter.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("StaysOnFallbackWhileDown", func(t *testing.T) {
		fallback.On("Allow", ctx, "u-3", 10, time.Minute).Return(true, nil).Once()

		allowed, err := limiter.Allow(ctx, "u-3", 10, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		fallback.AssertExpectations(t)
		primary.AssertNotCalled(t, "Allow", ctx, "u-3", 10, time.Minute)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		clock = clock.Add(2 * time.Minute)
		primary.On("Allow", ctx, "u-4", 10, time.Minute).Return(true, nil).Once()

		allowed, err := limiter.Allow(ctx, "u-4", 10, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		assert.False(t, limiter.isDown.Load())
		primary.AssertExpectations(t)
	})
}
