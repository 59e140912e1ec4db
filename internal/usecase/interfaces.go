package usecase

import (
	"context"
	"time"

	"github.com/xavierca1/conduit/internal/entity"
	"github.com/xavierca1/conduit/internal/infra/queue"
)

type LeadRepository interface {
	// Create inserts the lead and fills ID and timestamps from the stored row.
	Create(ctx context.Context, lead *entity.Lead) error
	FindByID(ctx context.Context, id string) (*entity.Lead, error)
	// UpdateStatus moves the lead from one status to another. It reports false
	// without error when the stored status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to entity.LeadStatus) (bool, error)
}

type MessageRepository interface {
	Create(ctx context.Context, m *entity.Message) error
	FindByID(ctx context.Context, id string) (*entity.Message, error)
	// MarkSent and MarkFailed only touch queued messages and report whether a row changed.
	MarkSent(ctx context.Context, id string, sentAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, id, errText string) (bool, error)
	// ListByLead returns newest first. limit <= 0 means no limit.
	ListByLead(ctx context.Context, leadID string, limit int) ([]*entity.Message, error)
}

type JobRepository interface {
	Create(ctx context.Context, j *entity.Job) error
	Update(ctx context.Context, j *entity.Job) error
	ListByLead(ctx context.Context, leadID string) ([]*entity.Job, error)
}

type EventRepository interface {
	Create(ctx context.Context, e *entity.Event) error
	ListByLead(ctx context.Context, leadID string) ([]*entity.Event, error)
}

// Enqueuer is the part of the job queue callers need. *queue.Queue implements it.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind string, payload any, opts ...queue.EnqueueOption) (string, error)
}

// EventPublisher fans audit events out to other systems.
type EventPublisher interface {
	PublishEvent(ctx context.Context, e *entity.Event) error
}
