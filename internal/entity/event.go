package entity

import "time"

type EventType string

const (
	EventLeadCreated       EventType = "lead_created"
	EventLeadStatusChanged EventType = "lead_status_changed"
	EventMessageQueued     EventType = "message_queued"
	EventMessageSent       EventType = "message_sent"
	EventMessageFailed     EventType = "message_failed"
	EventReplyReceived     EventType = "reply_received"
	EventAIReplyGenerated  EventType = "ai_reply_generated"
)

func (t EventType) Valid() bool {
	switch t {
	case EventLeadCreated, EventLeadStatusChanged, EventMessageQueued, EventMessageSent,
		EventMessageFailed, EventReplyReceived, EventAIReplyGenerated:
		return true
	}
	return false
}

// Event is an append-only audit entry. It is never updated or deleted.
type Event struct {
	ID        string         `json:"id"`
	LeadID    string         `json:"lead_id"`
	Type      EventType      `json:"event_type"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}
