package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xavierca1/conduit/internal/entity"
	"github.com/xavierca1/conduit/internal/infra/channel"
	"github.com/xavierca1/conduit/internal/infra/queue"
	"github.com/xavierca1/conduit/internal/usecase"
)

// SendMessageWorker delivers one queued outbound message.
type SendMessageWorker struct {
	Messages *usecase.MessageService
	Leads    *usecase.LeadService
	Channels Dispatcher
	Logger   *slog.Logger
	audit    auditor
}

func NewSendMessageWorker(messages *usecase.MessageService, leads *usecase.LeadService, channels Dispatcher, jobs usecase.JobRepository, logger *slog.Logger) *SendMessageWorker {
	return &SendMessageWorker{
		Messages: messages,
		Leads:    leads,
		Channels: channels,
		Logger:   logger,
		audit:    newAuditor(jobs, logger),
	}
}

func (w *SendMessageWorker) Handle(ctx context.Context, job *queue.Job) error {
	var p entity.SendMessageJob
	if err := decode(job, &p); err != nil {
		return err
	}
	log := w.Logger.With("job_id", job.ID, "message_id", p.MessageID, "lead_id", p.LeadID, "channel", p.Channel)
	log.Info("processing send-message job", "attempt", job.Attempts)

	err := w.audit.run(ctx, p.LeadID, job, func() error { return w.send(ctx, p, log) })
	if err != nil {
		log.Error("send-message job failed", "attempt", job.Attempts, "error", err)
		return err
	}
	return nil
}

func (w *SendMessageWorker) send(ctx context.Context, p entity.SendMessageJob, log *slog.Logger) error {
	msg, err := w.Messages.Get(ctx, p.MessageID)
	if err != nil {
		return fmt.Errorf("load message: %w", err)
	}
	switch msg.Status {
	case entity.MessageStatusSent:
		// A previous attempt delivered it but did not finish the lead update.
		log.Info("message already sent, skipping dispatch")
	case entity.MessageStatusQueued:
		lead, err := w.Leads.Get(ctx, p.LeadID)
		if err != nil {
			return fmt.Errorf("load lead: %w", err)
		}
		if err := w.Channels.Send(ctx, p.Channel, channel.Delivery{MessageID: p.MessageID, Lead: lead, Content: p.Content}); err != nil {
			return err
		}
		if err := w.Messages.MarkSent(ctx, p.MessageID); err != nil {
			return err
		}
	default:
		log.Info("message already settled, skipping send", "status", msg.Status)
		return nil
	}

	if _, err := w.Leads.Advance(ctx, p.LeadID, []entity.LeadStatus{entity.LeadStatusNew}, entity.LeadStatusContacted, "First message sent"); err != nil {
		return err
	}

	log.Info("message sent")
	return nil
}

// HandleDead settles the message as failed once the queue gives up on it.
func (w *SendMessageWorker) HandleDead(ctx context.Context, job *queue.Job, cause error) {
	var p entity.SendMessageJob
	if err := decode(job, &p); err != nil {
		w.Logger.Error("dead send-message job has unreadable payload", "job_id", job.ID, "error", err)
		return
	}

	if err := w.Messages.MarkFailed(ctx, p.MessageID, cause.Error()); err != nil {
		w.Logger.Error("failed to mark message failed", "job_id", job.ID, "message_id", p.MessageID, "error", err)
		return
	}
	w.Logger.Warn("message marked failed", "job_id", job.ID, "message_id", p.MessageID, "lead_id", p.LeadID, "cause", cause)
}
