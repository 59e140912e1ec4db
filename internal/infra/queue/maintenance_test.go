package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaintainExpiresWaitingJobs(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore()
	q := New(store, WithClock(clock), WithExpireAfter(time.Hour))

	h := &deadRecorder{HandlerFunc: func(context.Context, *Job) error { return nil }}
	require.NoError(t, q.RegisterWorker("send-message", Team{Size: 1}, h))

	id, err := q.Enqueue(context.Background(), "send-message", nil)
	require.NoError(t, err)
	clock.Advance(30 * time.Minute)
	fresh, err := q.Enqueue(context.Background(), "send-message", nil)
	require.NoError(t, err)

	clock.Advance(45 * time.Minute)
	report, err := q.Maintain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Expired)

	job, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, job.Status)

	job, err = store.Get(context.Background(), fresh)
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, job.Status)

	require.Equal(t, 1, h.calls())
	assert.ErrorIs(t, h.causes[0], ErrJobExpired)
}

func TestMaintainRequeuesStaleClaims(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore()
	q := New(store, WithClock(clock), WithActiveTimeout(15*time.Minute), WithRetryPolicy(RetryPolicy{MaxAttempts: 2}))

	h := &deadRecorder{HandlerFunc: func(context.Context, *Job) error { return nil }}
	require.NoError(t, q.RegisterWorker("send-message", Team{Size: 1}, h))

	id, err := q.Enqueue(context.Background(), "send-message", nil)
	require.NoError(t, err)

	_, err = q.claim(context.Background(), "send-message")
	require.NoError(t, err)
	clock.Advance(20 * time.Minute)

	report, err := q.Maintain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Requeued)
	job, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusRetry, job.Status)

	_, err = q.claim(context.Background(), "send-message")
	require.NoError(t, err)
	clock.Advance(20 * time.Minute)

	report, err = q.Maintain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	job, err = store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, 2, job.Attempts)

	require.Equal(t, 1, h.calls())
	assert.ErrorIs(t, h.causes[0], ErrStaleClaim)
}

func TestMaintainPurgesOldCompletedJobs(t *testing.T) {
	clock := newFakeClock()
	store := NewMemoryStore()
	q := New(store, WithClock(clock), WithRetainCompleted(7*24*time.Hour))

	done, err := q.Enqueue(context.Background(), "send-message", nil)
	require.NoError(t, err)
	claimed, err := q.claim(context.Background(), "send-message")
	require.NoError(t, err)
	require.NoError(t, store.Complete(context.Background(), claimed.ID, clock.Now()))

	failed, err := q.Enqueue(context.Background(), "send-message", nil, WithJobRetry(RetryPolicy{MaxAttempts: 1}))
	require.NoError(t, err)
	claimed, err = q.claim(context.Background(), "send-message")
	require.NoError(t, err)
	_, err = store.Fail(context.Background(), FailRequest{ID: claimed.ID, Error: "nope", Now: clock.Now()})
	require.NoError(t, err)

	clock.Advance(8 * 24 * time.Hour)
	report, err := q.Maintain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Purged)

	_, err = store.Get(context.Background(), done)
	assert.ErrorIs(t, err, ErrJobNotFound)

	job, err := store.Get(context.Background(), failed)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, job.Status, "failed jobs stay for inspection")
}

func TestRetryPolicyNextDelay(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, Delay: time.Second, Backoff: true}
	assert.Equal(t, time.Second, p.NextDelay(1))
	assert.Equal(t, 2*time.Second, p.NextDelay(2))
	assert.Equal(t, 4*time.Second, p.NextDelay(3))
	assert.Equal(t, maxRetryDelay, p.NextDelay(40))

	flat := RetryPolicy{MaxAttempts: 3, Delay: 5 * time.Second}
	assert.Equal(t, 5*time.Second, flat.NextDelay(3))

	assert.Equal(t, 3, RetryPolicy{}.withDefaults().MaxAttempts)
}
