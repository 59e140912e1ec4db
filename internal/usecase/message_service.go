package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xavierca1/conduit/internal/entity"
)

const previewLength = 100

// MessageService tracks messages through queued -> sent|failed. Inbound
// messages are stored as delivered and never change.
type MessageService struct {
	Repo   MessageRepository
	Leads  *LeadService
	Queue  Enqueuer
	Events *EventService
	Logger *slog.Logger
	Now    func() time.Time
}

func NewMessageService(repo MessageRepository, leads *LeadService, queue Enqueuer, events *EventService, logger *slog.Logger) *MessageService {
	return &MessageService{
		Repo:   repo,
		Leads:  leads,
		Queue:  queue,
		Events: events,
		Logger: logger,
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a message for an existing lead and records message_queued.
func (s *MessageService) Create(ctx context.Context, leadID string, channel entity.Channel, direction entity.Direction, content string) (*entity.Message, error) {
	if !channel.Valid() {
		return nil, ValidationErrors{{Field: "channel", Message: fmt.Sprintf("unknown channel %q", channel)}}
	}
	if !direction.Valid() {
		return nil, ValidationErrors{{Field: "direction", Message: fmt.Sprintf("unknown direction %q", direction)}}
	}
	if _, err := s.Leads.Get(ctx, leadID); err != nil {
		return nil, err
	}

	msg := entity.NewMessage(leadID, channel, direction, content)
	if err := s.Repo.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	s.Events.Log(ctx, leadID, entity.EventMessageQueued, map[string]any{
		"message_id": msg.ID,
		"channel":    channel,
		"direction":  direction,
	})
	s.Logger.Info("message created", "message_id", msg.ID, "lead_id", leadID, "channel", channel, "direction", direction)
	return msg, nil
}

func (s *MessageService) Get(ctx context.Context, id string) (*entity.Message, error) {
	return s.Repo.FindByID(ctx, id)
}

// MarkSent records a successful send. On a message that already left the
// queued state it does nothing and writes no event, so retries are safe.
func (s *MessageService) MarkSent(ctx context.Context, id string) error {
	msg, err := s.Repo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	changed, err := s.Repo.MarkSent(ctx, id, s.Now())
	if err != nil {
		return fmt.Errorf("mark message sent: %w", err)
	}
	if !changed {
		s.Logger.Debug("message already terminal, skipping sent", "message_id", id)
		return nil
	}

	s.Events.Log(ctx, msg.LeadID, entity.EventMessageSent, map[string]any{
		"message_id": id,
		"channel":    msg.Channel,
	})
	return nil
}

// MarkFailed records a send that will not be retried. Like MarkSent it
// ignores messages that are already terminal.
func (s *MessageService) MarkFailed(ctx context.Context, id, errText string) error {
	msg, err := s.Repo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	changed, err := s.Repo.MarkFailed(ctx, id, errText)
	if err != nil {
		return fmt.Errorf("mark message failed: %w", err)
	}
	if !changed {
		s.Logger.Debug("message already terminal, skipping failed", "message_id", id)
		return nil
	}

	s.Events.Log(ctx, msg.LeadID, entity.EventMessageFailed, map[string]any{
		"message_id": id,
		"channel":    msg.Channel,
		"error":      errText,
	})
	return nil
}

// ListByLead returns the lead's messages newest first; limit <= 0 returns all.
func (s *MessageService) ListByLead(ctx context.Context, leadID string, limit int) ([]*entity.Message, error) {
	return s.Repo.ListByLead(ctx, leadID, limit)
}

// EnqueueSend creates an outbound message and queues its delivery.
func (s *MessageService) EnqueueSend(ctx context.Context, input SendMessageInput) (*SendMessageOutput, error) {
	if err := ValidateSendMessageInput(input); err != nil {
		return nil, err
	}

	msg, err := s.Create(ctx, input.LeadID, input.Channel, entity.DirectionOutbound, input.Content)
	if err != nil {
		return nil, err
	}

	jobID, err := s.Queue.Enqueue(ctx, entity.JobSendMessage, entity.SendMessageJob{
		MessageID: msg.ID,
		LeadID:    msg.LeadID,
		Channel:   msg.Channel,
		Content:   msg.Content,
	})
	if err != nil {
		return nil, fmt.Errorf("queue send-message: %w", err)
	}

	s.Logger.Info("queued send-message job", "job_id", jobID, "message_id", msg.ID, "lead_id", msg.LeadID)
	return &SendMessageOutput{MessageID: msg.ID, JobID: jobID, Status: string(entity.MessageStatusQueued)}, nil
}

// HandleReply stores an inbound reply, moves a new or contacted lead to
// replied and records reply_received.
func (s *MessageService) HandleReply(ctx context.Context, input ReplyInput) (*entity.Message, error) {
	if err := ValidateReplyInput(input); err != nil {
		return nil, err
	}
	s.Logger.Info("handling inbound reply", "lead_id", input.LeadID, "channel", input.Channel)

	// The lead moves first: Advance is a no-op on redelivery, so a failure
	// here never leaves a duplicate inbound message behind.
	_, err := s.Leads.Advance(ctx, input.LeadID,
		[]entity.LeadStatus{entity.LeadStatusNew, entity.LeadStatusContacted},
		entity.LeadStatusReplied, "Prospect replied")
	if err != nil {
		return nil, err
	}

	msg, err := s.Create(ctx, input.LeadID, input.Channel, entity.DirectionInbound, input.Content)
	if err != nil {
		return nil, err
	}

	s.Events.Log(ctx, input.LeadID, entity.EventReplyReceived, map[string]any{
		"message_id":      msg.ID,
		"channel":         input.Channel,
		"content_preview": Preview(input.Content),
	})
	return msg, nil
}

// RequestAIReply queues generation of an AI reply for an existing lead.
func (s *MessageService) RequestAIReply(ctx context.Context, input AIReplyInput) (*AIReplyOutput, error) {
	if err := ValidateAIReplyInput(input); err != nil {
		return nil, err
	}
	if _, err := s.Leads.Get(ctx, input.LeadID); err != nil {
		return nil, err
	}

	jobID, err := s.Queue.Enqueue(ctx, entity.JobGenerateAIReply, entity.GenerateAIReplyJob{
		LeadID:  input.LeadID,
		Channel: input.Channel,
		Context: input.Context,
	})
	if err != nil {
		return nil, fmt.Errorf("queue generate-ai-reply: %w", err)
	}

	s.Logger.Info("queued generate-ai-reply job", "job_id", jobID, "lead_id", input.LeadID)
	return &AIReplyOutput{JobID: jobID, Status: "queued", Message: "AI reply generation queued"}, nil
}

// Preview shortens text for event payloads.
func Preview(s string) string {
	r := []rune(s)
	if len(r) <= previewLength {
		return s
	}
	return string(r[:previewLength])
}
