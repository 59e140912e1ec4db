package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/xavierca1/conduit/internal/entity"
	"github.com/xavierca1/conduit/internal/usecase"
)

// ReplyHandler stores an inbound reply. *usecase.MessageService implements it.
type ReplyHandler interface {
	HandleReply(ctx context.Context, input usecase.ReplyInput) (*entity.Message, error)
}

type amqpConsumer interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// ReplyConsumer feeds replies from q.replies into the message tracker.
type ReplyConsumer struct {
	ch      amqpConsumer
	replies ReplyHandler
	logger  *slog.Logger
}

func NewReplyConsumer(ch amqpConsumer, replies ReplyHandler, logger *slog.Logger) *ReplyConsumer {
	return &ReplyConsumer{ch: ch, replies: replies, logger: logger}
}

// Start consumes until ctx is done or the channel closes.
func (c *ReplyConsumer) Start(ctx context.Context) error {
	msgs, err := c.ch.Consume(RepliesQueue, "conduit-replies", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", RepliesQueue, err)
	}
	c.logger.Info("reply consumer started", "queue", RepliesQueue)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("reply consumer stopped")
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("reply consumer: delivery channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

func (c *ReplyConsumer) handle(ctx context.Context, d amqp.Delivery) {
	var input usecase.ReplyInput
	if err := json.Unmarshal(d.Body, &input); err != nil {
		c.logger.Error("invalid reply payload", "message_id", d.MessageId, "error", err)
		c.nack(d, false)
		return
	}

	msg, err := c.replies.HandleReply(ctx, input)
	switch {
	case err == nil:
		c.logger.Info("reply consumed", "lead_id", input.LeadID, "message_id", msg.ID)
		if aerr := d.Ack(false); aerr != nil {
			c.logger.Error("ack reply failed", "error", aerr)
		}
	case errors.Is(err, entity.ErrValidation), errors.Is(err, entity.ErrNotFound):
		// No retry will make this reply valid; send it to the DLQ.
		c.logger.Warn("reply rejected", "lead_id", input.LeadID, "error", err)
		c.nack(d, false)
	default:
		// Requeue once, then let the DLQ keep it.
		c.logger.Error("reply handling failed", "lead_id", input.LeadID, "redelivered", d.Redelivered, "error", err)
		c.nack(d, !d.Redelivered)
	}
}

func (c *ReplyConsumer) nack(d amqp.Delivery, requeue bool) {
	if err := d.Nack(false, requeue); err != nil {
		c.logger.Error("nack reply failed", "error", err)
	}
}
