package channel

import (
	"context"
	"fmt"
	"net/http"

	"github.com/xavierca1/conduit/internal/entity"
)

// AdsSender pushes the lead and creative text to an ad platform audience
// webhook, which targets them with a sponsored message.
type AdsSender struct {
	webhookURL string
	apiKey     string
	client     *http.Client
}

func NewAdsSender(webhookURL, apiKey string) *AdsSender {
	return &AdsSender{webhookURL: webhookURL, apiKey: apiKey, client: newHTTPClient()}
}

func (s *AdsSender) Send(ctx context.Context, d Delivery) error {
	if s.webhookURL == "" {
		return Permanent(entity.ChannelAds, fmt.Errorf("ads webhook is not configured"))
	}
	if d.Lead == nil || (d.Lead.Email == "" && d.Lead.Phone == "") {
		return Permanent(entity.ChannelAds, ErrMissingRecipient)
	}

	payload := map[string]any{
		"external_id": d.Lead.ID,
		"message_id":  d.MessageID,
		"email":       d.Lead.Email,
		"phone":       d.Lead.Phone,
		"creative":    d.Content,
	}
	headers := map[string]string{}
	if s.apiKey != "" {
		headers["X-API-Key"] = s.apiKey
	}
	_, err := postJSON(ctx, s.client, entity.ChannelAds, s.webhookURL, headers, payload)
	return err
}
