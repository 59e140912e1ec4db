package queue

import (
	"context"
	"time"
)

// ClaimRequest narrows which job a slot may take.
type ClaimRequest struct {
	Kind string
	Now  time.Time
	// CreatedAfter hides jobs past the expiry horizon even before maintenance marks them.
	CreatedAfter time.Time
}

// FailRequest records a failed attempt.
type FailRequest struct {
	ID      string
	Error   string
	RetryAt time.Time
	// Dead fails the job regardless of attempts left.
	Dead bool
	Now  time.Time
}

// Store persists queue rows. Claim must hand a given job to exactly one caller
// across every process sharing the store.
type Store interface {
	Insert(ctx context.Context, job *Job) error
	Claim(ctx context.Context, req ClaimRequest) (*Job, error)
	Complete(ctx context.Context, id string, now time.Time) error
	// Fail returns the status the job ended in: StatusRetry or StatusFailed.
	Fail(ctx context.Context, req FailRequest) (Status, error)
	Get(ctx context.Context, id string) (*Job, error)
	// Expire marks created/retry jobs created at or before cutoff as expired.
	Expire(ctx context.Context, cutoff, now time.Time) ([]*Job, error)
	// RequeueStale hands active jobs started at or before cutoff back to the
	// retry path, or fails them when no attempts are left.
	RequeueStale(ctx context.Context, cutoff, now time.Time) ([]*Job, error)
	// Purge deletes completed jobs finished at or before cutoff.
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

// Waker delivers kinds that just received work. An empty kind wakes every slot.
type Waker interface {
	Wakeups() <-chan string
}
