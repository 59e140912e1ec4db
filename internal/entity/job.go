package entity

import "time"

// Job kinds understood by the worker process.
const (
	JobSendMessage     = "send-message"
	JobGenerateAIReply = "generate-ai-reply"
)

type JobStatus string

const (
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetry     JobStatus = "retry"
)

// Job is the audit record of one dispatch attempt. The queue keeps its own
// row with the real retry counter; this one only mirrors what a worker saw.
type Job struct {
	ID          string     `json:"id"`
	LeadID      string     `json:"lead_id"`
	QueueJobID  string     `json:"queue_job_id,omitempty"`
	Name        string     `json:"job_name"`
	Status      JobStatus  `json:"status"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// SendMessageJob is the send-message payload. The wire shape is stable across retries.
type SendMessageJob struct {
	MessageID string  `json:"message_id"`
	LeadID    string  `json:"lead_id"`
	Channel   Channel `json:"channel"`
	Content   string  `json:"content"`
}

type GenerateAIReplyJob struct {
	LeadID  string  `json:"lead_id"`
	Channel Channel `json:"channel"`
	Context string  `json:"context,omitempty"`
}
