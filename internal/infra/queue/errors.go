package queue

import "errors"

var (
	// ErrNoJob signals that nothing is due for the requested kind.
	ErrNoJob = errors.New("queue has no due jobs")
	// ErrJobNotFound is returned by Store.Get for unknown ids.
	ErrJobNotFound = errors.New("queue job not found")
	// ErrJobNotActive is returned when completing or failing a job that is no longer claimed.
	ErrJobNotActive = errors.New("queue job is not active")
	// ErrKindRequired is returned when enqueueing or registering without a kind.
	ErrKindRequired = errors.New("queue job kind is required")
	// ErrWorkerRegistered is returned when a kind already has a worker.
	ErrWorkerRegistered = errors.New("queue worker already registered for kind")
	// ErrStarted is returned when registering after Start or starting twice.
	ErrStarted = errors.New("queue already started")
	// ErrClosed is returned when using a queue after Stop.
	ErrClosed = errors.New("queue is closed")
	// ErrHandlerPanic wraps a recovered handler panic.
	ErrHandlerPanic = errors.New("queue handler panic")
	// ErrJobExpired is the cause handed to dead-letter hooks for expired jobs.
	ErrJobExpired = errors.New("queue job expired")
	// ErrStaleClaim is the cause handed to dead-letter hooks when a claimed job was abandoned.
	ErrStaleClaim = errors.New("queue job claim went stale")
)
