package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xavierca1/conduit/internal/entity"
	"github.com/xavierca1/conduit/internal/infra/ai"
	"github.com/xavierca1/conduit/internal/infra/queue"
	"github.com/xavierca1/conduit/internal/usecase"
)

// AIReplyWorker writes a reply with the configured generator and queues it
// for delivery.
type AIReplyWorker struct {
	Messages  *usecase.MessageService
	Leads     *usecase.LeadService
	Events    *usecase.EventService
	Generator ai.Generator
	Logger    *slog.Logger
	audit     auditor
}

func NewAIReplyWorker(messages *usecase.MessageService, leads *usecase.LeadService, events *usecase.EventService, generator ai.Generator, jobs usecase.JobRepository, logger *slog.Logger) *AIReplyWorker {
	return &AIReplyWorker{
		Messages:  messages,
		Leads:     leads,
		Events:    events,
		Generator: generator,
		Logger:    logger,
		audit:     newAuditor(jobs, logger),
	}
}

func (w *AIReplyWorker) Handle(ctx context.Context, job *queue.Job) error {
	var p entity.GenerateAIReplyJob
	if err := decode(job, &p); err != nil {
		return err
	}
	log := w.Logger.With("job_id", job.ID, "lead_id", p.LeadID, "channel", p.Channel)
	log.Info("processing generate-ai-reply job", "attempt", job.Attempts)

	err := w.audit.run(ctx, p.LeadID, job, func() error { return w.reply(ctx, p, log) })
	if err != nil {
		log.Error("generate-ai-reply job failed", "attempt", job.Attempts, "error", err)
		return err
	}
	return nil
}

func (w *AIReplyWorker) reply(ctx context.Context, p entity.GenerateAIReplyJob, log *slog.Logger) error {
	if _, err := w.Leads.Get(ctx, p.LeadID); err != nil {
		return fmt.Errorf("load lead: %w", err)
	}

	recent, err := w.Messages.ListByLead(ctx, p.LeadID, ai.DefaultConversationSize)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}

	text, err := w.Generator.Generate(ctx, ai.Request{
		LeadID:       p.LeadID,
		Channel:      p.Channel,
		Conversation: recent,
		Context:      p.Context,
	})
	if err != nil {
		return fmt.Errorf("generate reply: %w", err)
	}

	w.Events.Log(ctx, p.LeadID, entity.EventAIReplyGenerated, map[string]any{
		"channel":       p.Channel,
		"reply_preview": usecase.Preview(text),
		"used_openai":   w.Generator.Backend() == "openai",
	})
	log.Info("ai reply generated", "reply_length", len(text), "backend", w.Generator.Backend())

	out, err := w.Messages.EnqueueSend(ctx, usecase.SendMessageInput{
		LeadID:  p.LeadID,
		Channel: p.Channel,
		Content: text,
	})
	if err != nil {
		return err
	}

	if _, err := w.Leads.Advance(ctx, p.LeadID, []entity.LeadStatus{entity.LeadStatusReplied}, entity.LeadStatusEngaged, "AI reply generated and queued"); err != nil {
		return err
	}

	log.Info("ai reply queued for delivery", "message_id", out.MessageID, "send_job_id", out.JobID)
	return nil
}

// HandleDead only reports: a reply that was never generated leaves nothing to settle.
func (w *AIReplyWorker) HandleDead(_ context.Context, job *queue.Job, cause error) {
	w.Logger.Error("generate-ai-reply job dead", "job_id", job.ID, "attempts", job.Attempts, "cause", cause)
}
