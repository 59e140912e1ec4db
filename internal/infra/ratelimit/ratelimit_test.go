package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimiter(t *testing.T, limit int, window time.Duration) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "openai", limit, window), mr
}

func TestAllowWithinWindow(t *testing.T) {
	l, mr := newLimiter(t, 2, time.Minute)
	ctx := context.Background()

	for range 2 {
		ok, _, err := l.Allow(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, retryAfter, err := l.Allow(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Greater(t, retryAfter, time.Duration(0))
	assert.LessOrEqual(t, retryAfter, time.Minute)

	mr.FastForward(time.Minute)
	ok, _, err = l.Allow(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestZeroLimitDisablesLimiting(t *testing.T) {
	l, mr := newLimiter(t, 0, time.Minute)
	for range 10 {
		ok, _, err := l.Allow(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.False(t, mr.Exists("ratelimit:openai"))
}

func TestWaitGivesUpPastMaxWait(t *testing.T) {
	l, _ := newLimiter(t, 1, time.Hour)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, time.Second))
	err := l.Wait(ctx, time.Second)
	assert.ErrorIs(t, err, ErrLimited)
}

func TestAllowReportsRedisErrors(t *testing.T) {
	l, mr := newLimiter(t, 1, time.Minute)
	mr.Close()

	_, _, err := l.Allow(context.Background())
	assert.Error(t, err)
}
