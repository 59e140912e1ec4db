// Package queue is a durable job queue with at-least-once delivery, per-job
// retry policies, expiry and bounded per-kind concurrency. Handlers must be
// idempotent.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sync"
	"time"

	"github.com/xavierca1/conduit/internal/entity"
)

type registration struct {
	kind    string
	team    Team
	handler Handler
	wake    chan struct{}
}

// signal wakes one idle slot of the kind without blocking.
func (r *registration) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

type Queue struct {
	store Store
	cfg   config

	mu      sync.Mutex
	workers map[string]*registration
	running bool
	closed  bool
	// wakerClosed and drained let a Stop that timed out be called again.
	wakerClosed bool
	drained     bool
	cancel      context.CancelFunc
	wg      sync.WaitGroup
}

func New(store Store, opts ...Option) *Queue {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.withDefaults()

	return &Queue{
		store:   store,
		cfg:     cfg,
		workers: make(map[string]*registration),
	}
}

// Enqueue persists a job and returns its id. The payload is JSON encoded
// unless it already is a json.RawMessage.
func (q *Queue) Enqueue(ctx context.Context, kind string, payload any, opts ...EnqueueOption) (string, error) {
	if kind == "" {
		return "", ErrKindRequired
	}
	q.mu.Lock()
	closed := q.closed
	reg := q.workers[kind]
	q.mu.Unlock()
	if closed {
		return "", fmt.Errorf("%w: %w", entity.ErrQueueUnavailable, ErrClosed)
	}

	raw, err := encodePayload(payload)
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", kind, err)
	}

	ec := enqueueConfig{retry: q.cfg.retry}
	for _, opt := range opts {
		opt(&ec)
	}

	now := q.cfg.clock.Now()
	job := &Job{
		Kind:         kind,
		Payload:      raw,
		Status:       StatusCreated,
		MaxAttempts:  ec.retry.MaxAttempts,
		RetryDelay:   ec.retry.Delay,
		RetryBackoff: ec.retry.Backoff,
		StartAfter:   now.Add(ec.startAfter),
		CreatedAt:    now,
	}
	if err := q.store.Insert(ctx, job); err != nil {
		return "", fmt.Errorf("%w: insert %s job: %w", entity.ErrQueueUnavailable, kind, err)
	}

	q.cfg.metrics.JobEnqueued(kind)
	q.cfg.logger.Debug("job enqueued", "job_id", job.ID, "kind", kind, "max_attempts", job.MaxAttempts)
	if reg != nil {
		reg.signal()
	}
	return job.ID, nil
}

// Job returns the stored state of a job.
func (q *Queue) Job(ctx context.Context, id string) (*Job, error) {
	return q.store.Get(ctx, id)
}

// RegisterWorker binds a handler to a kind. At most team.Slots() jobs of the
// kind run at once in this process.
func (q *Queue) RegisterWorker(kind string, team Team, h Handler) error {
	if kind == "" {
		return ErrKindRequired
	}
	if h == nil {
		return fmt.Errorf("queue: nil handler for %s", kind)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return ErrStarted
	}
	if _, ok := q.workers[kind]; ok {
		return fmt.Errorf("%w: %s", ErrWorkerRegistered, kind)
	}
	q.workers[kind] = &registration{kind: kind, team: team, handler: h, wake: make(chan struct{}, 1)}
	return nil
}

// Start launches the worker slots. It returns immediately.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if q.running {
		return ErrStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.running = true

	for _, reg := range q.workers {
		slots := reg.team.Slots()
		for i := 0; i < slots; i++ {
			q.wg.Add(1)
			go q.runSlot(runCtx, reg, i)
		}
		q.cfg.logger.Info("queue worker started", "kind", reg.kind, "slots", slots)
	}

	if q.cfg.waker != nil {
		q.wg.Add(1)
		go q.forwardWakeups(runCtx)
	}
	return nil
}

// Stop stops claiming, waits for in-flight handlers and closes the store.
// If ctx ends first only the waker is closed; the store stays open for the
// handlers still running and a later Stop finishes the job.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.drained {
		q.mu.Unlock()
		return nil
	}
	if q.cancel != nil {
		q.cancel()
	}
	q.running = false
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	var errs []error
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, q.closeWaker())
		errs = append(errs, fmt.Errorf("queue drain: %w", ctx.Err()))
		return errors.Join(errs...)
	}

	q.mu.Lock()
	if q.drained {
		q.mu.Unlock()
		return nil
	}
	q.drained = true
	q.mu.Unlock()

	errs = append(errs, q.closeWaker())
	errs = append(errs, q.store.Close())
	q.cfg.logger.Info("queue stopped")
	return errors.Join(errs...)
}

func (q *Queue) closeWaker() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.wakerClosed {
		return nil
	}
	q.wakerClosed = true
	if c, ok := q.cfg.waker.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (q *Queue) runSlot(ctx context.Context, reg *registration, slot int) {
	defer q.wg.Done()
	log := q.cfg.logger.With("kind", reg.kind, "slot", slot)

	for {
		if ctx.Err() != nil {
			return
		}

		job, err := q.claim(ctx, reg.kind)
		switch {
		case err == nil:
			// More work may be waiting; let a sibling look while this slot is busy.
			reg.signal()
			q.process(ctx, reg, job)
			continue
		case errors.Is(err, ErrNoJob):
		default:
			log.Error("claim failed", "error", err)
		}

		timer := time.NewTimer(q.cfg.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-reg.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// claim runs detached from the slot context so a job the store already
// handed out is never dropped by a concurrent Stop.
func (q *Queue) claim(ctx context.Context, kind string) (*Job, error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.cfg.storeTimeout)
	defer cancel()

	now := q.cfg.clock.Now()
	return q.store.Claim(cctx, ClaimRequest{
		Kind:         kind,
		Now:          now,
		CreatedAfter: now.Add(-q.cfg.expireAfter),
	})
}

func (q *Queue) process(parent context.Context, reg *registration, job *Job) {
	ctx := context.WithoutCancel(parent)
	log := q.cfg.logger.With("job_id", job.ID, "kind", job.Kind, "attempt", job.Attempts, "max_attempts", job.MaxAttempts)

	start := q.cfg.clock.Now()
	err := q.invoke(ctx, reg.handler, job)
	took := q.cfg.clock.Now().Sub(start)

	if err == nil {
		if cerr := q.store.Complete(ctx, job.ID, q.cfg.clock.Now()); cerr != nil {
			log.Error("complete job failed", "error", cerr)
			return
		}
		q.cfg.metrics.JobFinished(job.Kind, OutcomeCompleted, took)
		log.Debug("job completed", "took", took)
		return
	}

	now := q.cfg.clock.Now()
	dead := q.cfg.classifier(job, err) == FailureDead
	retryAt := now.Add(job.Policy().NextDelay(job.Attempts))

	status, ferr := q.store.Fail(ctx, FailRequest{
		ID:      job.ID,
		Error:   truncate(err.Error(), maxErrorLength),
		RetryAt: retryAt,
		Dead:    dead,
		Now:     now,
	})
	if ferr != nil {
		// The claim stays active; maintenance will requeue it.
		log.Error("record job failure failed", "error", ferr, "cause", err)
		return
	}

	if status == StatusRetry {
		q.cfg.metrics.JobFinished(job.Kind, OutcomeRetry, took)
		log.Warn("job failed, will retry", "error", err, "retry_at", retryAt)
		return
	}

	q.cfg.metrics.JobFinished(job.Kind, OutcomeFailed, took)
	log.Error("job failed permanently", "error", err, "permanent", dead)
	job.Status = StatusFailed
	job.LastError = err.Error()
	q.dead(ctx, reg, job, err)
}

func (q *Queue) invoke(ctx context.Context, h Handler, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.cfg.logger.Error("queue handler panic", "job_id", job.ID, "kind", job.Kind, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h.Handle(ctx, job)
}

func (q *Queue) dead(ctx context.Context, reg *registration, job *Job, cause error) {
	if reg != nil {
		if dh, ok := reg.handler.(DeadLetterHandler); ok {
			q.safeDead(dh.HandleDead, ctx, job, cause)
		}
	}
	for _, hook := range q.cfg.deadHooks {
		q.safeDead(hook, ctx, job, cause)
	}
}

func (q *Queue) safeDead(fn DeadLetterFunc, ctx context.Context, job *Job, cause error) {
	defer func() {
		if r := recover(); r != nil {
			q.cfg.logger.Error("dead-letter hook panic", "job_id", job.ID, "kind", job.Kind, "panic", r)
		}
	}()
	fn(ctx, job, cause)
}

func (q *Queue) forwardWakeups(ctx context.Context) {
	defer q.wg.Done()
	ch := q.cfg.waker.Wakeups()

	for {
		select {
		case <-ctx.Done():
			return
		case kind, ok := <-ch:
			if !ok {
				return
			}
			q.mu.Lock()
			if kind == "" {
				for _, reg := range q.workers {
					reg.signal()
				}
			} else if reg, ok := q.workers[kind]; ok {
				reg.signal()
			}
			q.mu.Unlock()
		}
	}
}

func (q *Queue) lookup(kind string) *registration {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.workers[kind]
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		if !json.Valid(p) {
			return nil, errors.New("payload is not valid JSON")
		}
		return p, nil
	default:
		return json.Marshal(p)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
