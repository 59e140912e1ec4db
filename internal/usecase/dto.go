package usecase

import "github.com/xavierca1/conduit/internal/entity"

type CreateLeadInput struct {
	Name     string         `json:"name"`
	Email    string         `json:"email"`
	Phone    string         `json:"phone"`
	Metadata map[string]any `json:"metadata"`
}

type SendMessageInput struct {
	LeadID  string         `json:"lead_id"`
	Channel entity.Channel `json:"channel"`
	Content string         `json:"content"`
}

type SendMessageOutput struct {
	MessageID string `json:"message_id"`
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
}

type ReplyInput struct {
	LeadID  string         `json:"lead_id"`
	Channel entity.Channel `json:"channel"`
	Content string         `json:"content"`
}

type AIReplyInput struct {
	LeadID  string         `json:"lead_id"`
	Channel entity.Channel `json:"channel"`
	Context string         `json:"context,omitempty"`
}

type AIReplyOutput struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Timeline is everything known about a lead, each list newest first.
type Timeline struct {
	Lead     *entity.Lead      `json:"lead"`
	Messages []*entity.Message `json:"messages"`
	Jobs     []*entity.Job     `json:"jobs"`
	Events   []*entity.Event   `json:"events"`
}
