package channel

import (
	"log/slog"
	"time"

	"github.com/xavierca1/conduit/internal/config"
	"github.com/xavierca1/conduit/internal/entity"
)

const mockLatency = 100 * time.Millisecond

// NewFromConfig builds the dispatcher for CHANNEL_MODE: log-only senders in
// mock mode, real integrations in live mode.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Dispatcher {
	if cfg.ChannelMode != config.ChannelModeLive {
		senders := make(map[entity.Channel]Sender, len(entity.Channels))
		for _, ch := range entity.Channels {
			senders[ch] = &LogSender{Channel: ch, Latency: mockLatency, Logger: logger}
		}
		return NewDispatcher(senders)
	}

	return NewDispatcher(map[entity.Channel]Sender{
		entity.ChannelEmail: NewEmailSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.From),
		entity.ChannelChat:  NewChatSender(cfg.WhatsApp.AccessToken, cfg.WhatsApp.PhoneID, cfg.WhatsApp.BaseURL),
		entity.ChannelVoice: NewVoiceSender(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber),
		entity.ChannelProfessionalNetwork: NewLinkedInSender(cfg.LinkedIn.AccessToken, cfg.LinkedIn.BaseURL),
		entity.ChannelAds:                 NewAdsSender(cfg.Ads.WebhookURL, cfg.Ads.APIKey),
	})
}
