package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/xavierca1/conduit/internal/entity"
	"github.com/xavierca1/conduit/internal/infra/queue"
)

const publishTimeout = 5 * time.Second

type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher fans audit events out on the events exchange and copies dead
// queue jobs to q.dead_jobs.
type Publisher struct {
	ch     amqpPublisher
	logger *slog.Logger
}

func NewPublisher(ch amqpPublisher, logger *slog.Logger) *Publisher {
	return &Publisher{ch: ch, logger: logger}
}

// PublishEvent routes on event.<type> so consumers can bind to just the events they want.
func (p *Publisher) PublishEvent(ctx context.Context, e *entity.Event) error {
	return p.publish(ctx, EventsExchange, eventKeyPrefix+string(e.Type), e.ID, e)
}

type deadJob struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error"`
	Cause     string          `json:"cause"`
	CreatedAt time.Time       `json:"created_at"`
}

// PublishDeadJob is a queue.DeadLetterFunc.
func (p *Publisher) PublishDeadJob(ctx context.Context, job *queue.Job, cause error) {
	msg := deadJob{
		ID:        job.ID,
		Kind:      job.Kind,
		Payload:   job.Payload,
		Attempts:  job.Attempts,
		LastError: job.LastError,
		CreatedAt: job.CreatedAt,
	}
	if cause != nil {
		msg.Cause = cause.Error()
	}

	if err := p.publish(ctx, DLXName, DeadJobRoutingKey, job.ID, msg); err != nil {
		p.logger.Error("failed to publish dead job", "job_id", job.ID, "kind", job.Kind, "error", err)
	}
}

func (p *Publisher) publish(ctx context.Context, exchange, key, id string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", key, err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.ch.PublishWithContext(ctx, exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    id,
		Timestamp:    time.Now().UTC(),
		Body:         body,
		DeliveryMode: amqp.Persistent,
	})
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", key, exchange, err)
	}
	return nil
}
