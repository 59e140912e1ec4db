package queue

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a queue row.
type Status string

const (
	StatusCreated   Status = "created"
	StatusRetry     Status = "retry"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
)

// Terminal reports whether the job will never be claimed again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusExpired
}

// Job is a durable queue entry as seen by handlers.
type Job struct {
	ID           string
	Kind         string
	Payload      json.RawMessage
	Status       Status
	Attempts     int
	MaxAttempts  int
	RetryDelay   time.Duration
	RetryBackoff bool
	StartAfter   time.Time
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	LastError    string
}

// Decode unmarshals the payload into v.
func (j *Job) Decode(v any) error {
	return json.Unmarshal(j.Payload, v)
}

// FinalAttempt reports whether a failure of the current attempt exhausts the job.
func (j *Job) FinalAttempt() bool {
	return j.Attempts >= j.MaxAttempts
}

func (j *Job) Policy() RetryPolicy {
	return RetryPolicy{MaxAttempts: j.MaxAttempts, Delay: j.RetryDelay, Backoff: j.RetryBackoff}
}

func (j *Job) clone() *Job {
	cp := *j
	cp.Payload = append(json.RawMessage(nil), j.Payload...)
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
