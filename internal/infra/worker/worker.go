// Package worker holds the queue handlers that move messages out the door
// and the background loops that keep the queue healthy.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xavierca1/conduit/internal/config"
	"github.com/xavierca1/conduit/internal/entity"
	"github.com/xavierca1/conduit/internal/infra/ai"
	"github.com/xavierca1/conduit/internal/infra/channel"
	"github.com/xavierca1/conduit/internal/infra/queue"
	"github.com/xavierca1/conduit/internal/usecase"
)

// ErrBadPayload marks a job whose payload cannot be decoded. It is never retried.
var ErrBadPayload = errors.New("malformed job payload")

// Dispatcher sends through a channel. *channel.Dispatcher implements it.
type Dispatcher interface {
	Send(ctx context.Context, ch entity.Channel, d channel.Delivery) error
}

// Classify fails a job for good when no retry can change the outcome.
func Classify(_ *queue.Job, err error) queue.FailureAction {
	switch {
	case errors.Is(err, ErrBadPayload),
		errors.Is(err, entity.ErrNotFound),
		errors.Is(err, entity.ErrValidation),
		channel.IsPermanent(err),
		ai.IsPermanent(err):
		return queue.FailureDead
	}
	return queue.FailureRetry
}

// Register binds both handlers to q with the team sizes from cfg.
func Register(q *queue.Queue, cfg config.Queue, send *SendMessageWorker, reply *AIReplyWorker) error {
	if err := q.RegisterWorker(entity.JobSendMessage, queue.Team{Size: cfg.SendTeamSize, Concurrency: cfg.SendTeamConcurrency}, send); err != nil {
		return fmt.Errorf("register %s: %w", entity.JobSendMessage, err)
	}
	if err := q.RegisterWorker(entity.JobGenerateAIReply, queue.Team{Size: cfg.AITeamSize, Concurrency: cfg.AITeamConcurrency}, reply); err != nil {
		return fmt.Errorf("register %s: %w", entity.JobGenerateAIReply, err)
	}
	return nil
}

func decode(job *queue.Job, v any) error {
	if err := job.Decode(v); err != nil {
		return fmt.Errorf("%w: %s job %s: %w", ErrBadPayload, job.Kind, job.ID, err)
	}
	return nil
}

// auditor writes the entity.Job shadow of each attempt. Failures to write it
// are logged and never fail the job.
type auditor struct {
	jobs   usecase.JobRepository
	logger *slog.Logger
	now    func() time.Time
}

func newAuditor(jobs usecase.JobRepository, logger *slog.Logger) auditor {
	return auditor{jobs: jobs, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

func (a auditor) begin(ctx context.Context, leadID string, job *queue.Job) *entity.Job {
	rec := &entity.Job{
		LeadID:      leadID,
		QueueJobID:  job.ID,
		Name:        job.Kind,
		Status:      entity.JobStatusActive,
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
	}
	if err := a.jobs.Create(ctx, rec); err != nil {
		a.logger.Error("failed to record job start", "job_id", job.ID, "lead_id", leadID, "error", err)
		return nil
	}
	return rec
}

// run brackets fn with the audit record. A panic still closes the record
// before it propagates to the queue's recovery.
func (a auditor) run(ctx context.Context, leadID string, job *queue.Job, fn func() error) (err error) {
	rec := a.begin(ctx, leadID, job)
	defer func() {
		if r := recover(); r != nil {
			a.finish(ctx, rec, job, fmt.Errorf("%w: %v", queue.ErrHandlerPanic, r))
			panic(r)
		}
	}()

	err = fn()
	a.finish(ctx, rec, job, err)
	return err
}

// finish closes the attempt: completed on success, retry when the queue will
// try again and failed when it will not.
func (a auditor) finish(ctx context.Context, rec *entity.Job, job *queue.Job, err error) {
	if rec == nil {
		return
	}

	switch {
	case err == nil:
		rec.Status = entity.JobStatusCompleted
		now := a.now()
		rec.CompletedAt = &now
	case job.FinalAttempt() || Classify(job, err) == queue.FailureDead:
		rec.Status = entity.JobStatusFailed
		rec.Error = err.Error()
		now := a.now()
		rec.CompletedAt = &now
	default:
		rec.Status = entity.JobStatusRetry
		rec.Error = err.Error()
	}

	if uerr := a.jobs.Update(ctx, rec); uerr != nil {
		a.logger.Error("failed to record job outcome", "job_id", job.ID, "status", rec.Status, "error", uerr)
	}
}
