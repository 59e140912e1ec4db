package queue

import "context"

// Handler processes one claimed job. A returned error (or a panic) fails the
// attempt and hands the job back to the retry policy.
type Handler interface {
	Handle(ctx context.Context, job *Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *Job) error

func (fn HandlerFunc) Handle(ctx context.Context, job *Job) error {
	return fn(ctx, job)
}

// DeadLetterHandler is implemented by handlers that must react once a job of
// their kind will never run again (retries exhausted, permanent failure,
// expiry or an abandoned claim on the last attempt).
type DeadLetterHandler interface {
	HandleDead(ctx context.Context, job *Job, cause error)
}

// DeadLetterFunc is a process-wide hook for dead jobs of any kind.
type DeadLetterFunc func(ctx context.Context, job *Job, cause error)

// FailureAction tells the queue what to do with a failed attempt.
type FailureAction int

const (
	// FailureRetry follows the job's retry policy.
	FailureRetry FailureAction = iota
	// FailureDead fails the job for good regardless of attempts left.
	FailureDead
)

// FailureClassifier decides whether a failure is retryable.
type FailureClassifier func(job *Job, err error) FailureAction

func defaultFailureClassifier(*Job, error) FailureAction {
	return FailureRetry
}

// Team describes how many workers serve a kind and how many jobs each runs
// at once. Size*Concurrency is the hard ceiling of simultaneous handlers.
type Team struct {
	Size        int
	Concurrency int
}

func (t Team) Slots() int {
	size, conc := t.Size, t.Concurrency
	if size <= 0 {
		size = 1
	}
	if conc <= 0 {
		conc = 1
	}
	return size * conc
}
