// Package ratelimit is a fixed-window counter shared through Redis, so every
// process talking to the same downstream API draws from one budget.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrLimited = errors.New("rate limit exceeded")

// hitScript increments the window counter and starts the window on the first
// hit. It returns the new count and the milliseconds left in the window.
var hitScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

type Limiter struct {
	client redis.Scripter
	key    string
	limit  int
	window time.Duration
}

// New allows limit hits per window under key. A limit <= 0 disables limiting.
func New(client redis.Scripter, key string, limit int, window time.Duration) *Limiter {
	return &Limiter{client: client, key: "ratelimit:" + key, limit: limit, window: window}
}

// Allow records a hit. When the window is full it returns false and how long
// until the window resets.
func (l *Limiter) Allow(ctx context.Context) (bool, time.Duration, error) {
	if l.limit <= 0 {
		return true, 0, nil
	}

	res, err := hitScript.Run(ctx, l.client, []string{l.key}, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit %s: %w", l.key, err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("rate limit %s: unexpected script reply %v", l.key, res)
	}

	if res[0] > int64(l.limit) {
		return false, time.Duration(res[1]) * time.Millisecond, nil
	}
	return true, 0, nil
}

// Wait blocks until a hit is allowed, up to maxWait. It returns ErrLimited
// when the window will not reset in time.
func (l *Limiter) Wait(ctx context.Context, maxWait time.Duration) error {
	deadline := time.Now().Add(maxWait)
	for {
		ok, retryAfter, err := l.Allow(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().Add(retryAfter).After(deadline) {
			return fmt.Errorf("%w: retry in %s", ErrLimited, retryAfter.Round(time.Millisecond))
		}

		t := time.NewTimer(retryAfter)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
