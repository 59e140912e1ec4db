package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// NotifyChannel is the Postgres channel announcing new jobs. The payload is the job kind.
const NotifyChannel = "conduit_jobs"

// Schema creates the queue table. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS queue_jobs (
	id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	kind           TEXT NOT NULL,
	payload        JSONB NOT NULL,
	status         TEXT NOT NULL DEFAULT 'created',
	attempts       INTEGER NOT NULL DEFAULT 0,
	max_attempts   INTEGER NOT NULL,
	retry_delay_ms BIGINT NOT NULL DEFAULT 0,
	retry_backoff  BOOLEAN NOT NULL DEFAULT FALSE,
	start_after    TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	started_at     TIMESTAMPTZ,
	completed_at   TIMESTAMPTZ,
	updated_at     TIMESTAMPTZ NOT NULL,
	last_error     TEXT
);
CREATE INDEX IF NOT EXISTS queue_jobs_claim_idx ON queue_jobs (kind, status, start_after, created_at);
CREATE INDEX IF NOT EXISTS queue_jobs_active_idx ON queue_jobs (started_at) WHERE status = 'active';
`

const jobColumns = `id, kind, payload, status, attempts, max_attempts, retry_delay_ms, retry_backoff,
	start_after, created_at, started_at, completed_at, last_error`

const (
	insertJobQuery = `
		INSERT INTO queue_jobs (kind, payload, status, max_attempts, retry_delay_ms, retry_backoff, start_after, created_at, updated_at)
		VALUES ($1, $2::jsonb, 'created', $3, $4, $5, $6, $7, $7)
		RETURNING id`

	notifyQuery = `SELECT pg_notify($1, $2)`

	// SKIP LOCKED lets concurrent claimers pass over a row another
	// transaction is taking instead of blocking on it.
	claimJobQuery = `
		UPDATE queue_jobs
		SET status = 'active', attempts = attempts + 1, started_at = $2, updated_at = $2
		WHERE id = (
			SELECT id FROM queue_jobs
			WHERE kind = $1
			  AND status IN ('created', 'retry')
			  AND start_after <= $2
			  AND created_at > $3
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		AND status IN ('created', 'retry')
		RETURNING ` + jobColumns

	completeJobQuery = `
		UPDATE queue_jobs
		SET status = 'completed', completed_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'active'`

	failJobQuery = `
		UPDATE queue_jobs
		SET status       = CASE WHEN $3::boolean OR attempts >= max_attempts THEN 'failed' ELSE 'retry' END,
		    start_after  = CASE WHEN $3::boolean OR attempts >= max_attempts THEN start_after ELSE $4 END,
		    completed_at = CASE WHEN $3::boolean OR attempts >= max_attempts THEN $5 ELSE NULL END,
		    last_error   = $2,
		    updated_at   = $5
		WHERE id = $1 AND status = 'active'
		RETURNING status`

	getJobQuery = `SELECT ` + jobColumns + ` FROM queue_jobs WHERE id = $1`

	expireJobsQuery = `
		UPDATE queue_jobs
		SET status = 'expired', completed_at = $2, updated_at = $2, last_error = COALESCE(last_error, 'expired')
		WHERE status IN ('created', 'retry') AND created_at <= $1
		RETURNING ` + jobColumns

	requeueStaleQuery = `
		UPDATE queue_jobs
		SET status       = CASE WHEN attempts >= max_attempts THEN 'failed' ELSE 'retry' END,
		    start_after  = $2,
		    completed_at = CASE WHEN attempts >= max_attempts THEN $2 ELSE NULL END,
		    last_error   = $3,
		    updated_at   = $2
		WHERE status = 'active' AND started_at <= $1
		RETURNING ` + jobColumns

	purgeJobsQuery = `DELETE FROM queue_jobs WHERE status = 'completed' AND completed_at <= $1`
)

// PostgresStore keeps jobs in the queue_jobs table. The *sql.DB is shared with
// the repositories and stays owned by the caller.
type PostgresStore struct {
	DB     *sql.DB
	logger *slog.Logger
}

func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{DB: db, logger: logger}
}

// Migrate creates the queue table when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate queue_jobs: %w", err)
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, job *Job) error {
	err := s.DB.QueryRowContext(ctx, insertJobQuery,
		job.Kind,
		string(job.Payload),
		job.MaxAttempts,
		job.RetryDelay.Milliseconds(),
		job.RetryBackoff,
		job.StartAfter,
		job.CreatedAt,
	).Scan(&job.ID)
	if err != nil {
		return err
	}
	job.Status = StatusCreated

	// Listeners only shorten the wait; pollers find the job anyway.
	if _, err := s.DB.ExecContext(ctx, notifyQuery, NotifyChannel, job.Kind); err != nil {
		s.logger.Warn("queue notify failed", "kind", job.Kind, "error", err)
	}
	return nil
}

func (s *PostgresStore) Claim(ctx context.Context, req ClaimRequest) (*Job, error) {
	row := s.DB.QueryRowContext(ctx, claimJobQuery, req.Kind, req.Now, req.CreatedAfter)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoJob
	}
	return job, err
}

func (s *PostgresStore) Complete(ctx context.Context, id string, now time.Time) error {
	res, err := s.DB.ExecContext(ctx, completeJobQuery, id, now)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrJobNotActive
	}
	return nil
}

func (s *PostgresStore) Fail(ctx context.Context, req FailRequest) (Status, error) {
	var status string
	err := s.DB.QueryRowContext(ctx, failJobQuery, req.ID, req.Error, req.Dead, req.RetryAt, req.Now).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrJobNotActive
	}
	if err != nil {
		return "", err
	}
	return Status(status), nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Job, error) {
	job, err := scanJob(s.DB.QueryRowContext(ctx, getJobQuery, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	return job, err
}

func (s *PostgresStore) Expire(ctx context.Context, cutoff, now time.Time) ([]*Job, error) {
	return s.queryJobs(ctx, expireJobsQuery, cutoff, now)
}

func (s *PostgresStore) RequeueStale(ctx context.Context, cutoff, now time.Time) ([]*Job, error) {
	return s.queryJobs(ctx, requeueStaleQuery, cutoff, now, staleClaimError)
}

func (s *PostgresStore) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, purgeJobsQuery, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close is a no-op; the pool is closed by whoever opened it.
func (s *PostgresStore) Close() error {
	return nil
}

func (s *PostgresStore) queryJobs(ctx context.Context, query string, args ...any) ([]*Job, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	var (
		j           Job
		payload     []byte
		status      string
		delayMS     int64
		startedAt   sql.NullTime
		completedAt sql.NullTime
		lastError   sql.NullString
	)
	err := row.Scan(
		&j.ID, &j.Kind, &payload, &status, &j.Attempts, &j.MaxAttempts, &delayMS, &j.RetryBackoff,
		&j.StartAfter, &j.CreatedAt, &startedAt, &completedAt, &lastError,
	)
	if err != nil {
		return nil, err
	}

	j.Payload = payload
	j.Status = Status(status)
	j.RetryDelay = time.Duration(delayMS) * time.Millisecond
	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	j.LastError = lastError.String
	return &j, nil
}
