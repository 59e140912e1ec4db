package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/xavierca1/conduit/internal/entity"
)

// EventService appends to the audit trail. Writes are best effort: a failure
// is logged and never reaches the caller.
type EventService struct {
	Repo      EventRepository
	Publisher EventPublisher
	Logger    *slog.Logger
	Now       func() time.Time
}

func NewEventService(repo EventRepository, publisher EventPublisher, logger *slog.Logger) *EventService {
	return &EventService{Repo: repo, Publisher: publisher, Logger: logger, Now: func() time.Time { return time.Now().UTC() }}
}

// Log records one event. It returns the stored event, or nil when the write failed.
func (s *EventService) Log(ctx context.Context, leadID string, typ entity.EventType, payload map[string]any) *entity.Event {
	if payload == nil {
		payload = map[string]any{}
	}
	ev := &entity.Event{
		LeadID:    leadID,
		Type:      typ,
		Payload:   payload,
		Timestamp: s.Now(),
	}

	if err := s.Repo.Create(ctx, ev); err != nil {
		s.Logger.Error("failed to log event", "lead_id", leadID, "event_type", typ, "error", err)
		return nil
	}
	s.Logger.Info("event logged", "lead_id", leadID, "event_type", typ)

	if s.Publisher != nil {
		if err := s.Publisher.PublishEvent(ctx, ev); err != nil {
			s.Logger.Warn("failed to publish event", "event_id", ev.ID, "event_type", typ, "error", err)
		}
	}
	return ev
}

func (s *EventService) ListByLead(ctx context.Context, leadID string) ([]*entity.Event, error) {
	return s.Repo.ListByLead(ctx, leadID)
}
