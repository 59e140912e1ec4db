package database

import (
	"context"
	"database/sql"

	"github.com/xavierca1/conduit/internal/entity"
)

// JobRepository stores the per-attempt audit records shown in a lead's timeline.
type JobRepository struct {
	DB *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{DB: db}
}

func (r *JobRepository) Create(ctx context.Context, j *entity.Job) error {
	query := `
		INSERT INTO jobs (lead_id, queue_job_id, job_name, status, attempts, max_attempts)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := r.DB.QueryRowContext(ctx, query, j.LeadID, j.QueueJobID, j.Name, j.Status, j.Attempts, j.MaxAttempts).
		Scan(&j.ID, &j.CreatedAt)
	if err != nil {
		return writeError("insert job", err)
	}
	return nil
}

func (r *JobRepository) Update(ctx context.Context, j *entity.Job) error {
	query := `
		UPDATE jobs
		SET status = $2, attempts = $3, error = $4, completed_at = $5
		WHERE id = $1
	`

	res, err := r.DB.ExecContext(ctx, query, j.ID, j.Status, j.Attempts, nullString(j.Error), j.CompletedAt)
	if err != nil {
		return entity.NewStorageError("update job", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return entity.NewStorageError("update job", err)
	}
	if n == 0 {
		return entity.ErrNotFound
	}
	return nil
}

func (r *JobRepository) ListByLead(ctx context.Context, leadID string) ([]*entity.Job, error) {
	query := `
		SELECT id, lead_id, COALESCE(queue_job_id::text, ''), job_name, status, attempts, max_attempts, error, created_at, completed_at
		FROM jobs
		WHERE lead_id = $1
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.DB.QueryContext(ctx, query, leadID)
	if err != nil {
		return nil, entity.NewStorageError("list jobs", err)
	}
	defer rows.Close()

	jobs := []*entity.Job{}
	for rows.Next() {
		var (
			j           entity.Job
			status      string
			errText     sql.NullString
			completedAt sql.NullTime
		)
		err := rows.Scan(&j.ID, &j.LeadID, &j.QueueJobID, &j.Name, &status, &j.Attempts, &j.MaxAttempts, &errText, &j.CreatedAt, &completedAt)
		if err != nil {
			return nil, entity.NewStorageError("scan job", err)
		}
		j.Status = entity.JobStatus(status)
		j.Error = errText.String
		if completedAt.Valid {
			t := completedAt.Time
			j.CompletedAt = &t
		}
		jobs = append(jobs, &j)
	}
	if err := rows.Err(); err != nil {
		return nil, entity.NewStorageError("list jobs", err)
	}
	return jobs, nil
}
