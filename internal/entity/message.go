package entity

import "time"

type Channel string

const (
	ChannelEmail               Channel = "email"
	ChannelChat                Channel = "chat"
	ChannelVoice               Channel = "voice"
	ChannelProfessionalNetwork Channel = "professional_network"
	ChannelAds                 Channel = "ads"
)

// Channels lists every supported channel in a stable order.
var Channels = []Channel{
	ChannelEmail,
	ChannelChat,
	ChannelVoice,
	ChannelProfessionalNetwork,
	ChannelAds,
}

func (c Channel) Valid() bool {
	for _, ch := range Channels {
		if ch == c {
			return true
		}
	}
	return false
}

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

func (d Direction) Valid() bool {
	return d == DirectionInbound || d == DirectionOutbound
}

type MessageStatus string

const (
	MessageStatusQueued    MessageStatus = "queued"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusFailed    MessageStatus = "failed"
	MessageStatusDelivered MessageStatus = "delivered"
)

// Terminal reports whether no further status write is accepted.
func (s MessageStatus) Terminal() bool {
	return s != MessageStatusQueued
}

type Message struct {
	ID        string        `json:"id"`
	LeadID    string        `json:"lead_id"`
	Channel   Channel       `json:"channel"`
	Direction Direction     `json:"direction"`
	Content   string        `json:"content"`
	Status    MessageStatus `json:"status"`
	Error     string        `json:"error,omitempty"`
	SentAt    *time.Time    `json:"sent_at,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// NewMessage returns an unsaved message. Outbound messages wait in the queue,
// inbound ones already arrived.
func NewMessage(leadID string, channel Channel, direction Direction, content string) *Message {
	status := MessageStatusQueued
	if direction == DirectionInbound {
		status = MessageStatusDelivered
	}
	return &Message{
		LeadID:    leadID,
		Channel:   channel,
		Direction: direction,
		Content:   content,
		Status:    status,
	}
}
