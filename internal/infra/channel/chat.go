package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/xavierca1/conduit/internal/entity"
)

type whatsappResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// ChatSender delivers free-form text through the WhatsApp Cloud API.
type ChatSender struct {
	accessToken string
	phoneID     string
	baseURL     string
	client      *http.Client
}

func NewChatSender(accessToken, phoneID, baseURL string) *ChatSender {
	return &ChatSender{
		accessToken: accessToken,
		phoneID:     phoneID,
		baseURL:     baseURL,
		client:      newHTTPClient(),
	}
}

func (s *ChatSender) Send(ctx context.Context, d Delivery) error {
	if s.accessToken == "" || s.phoneID == "" {
		return Permanent(entity.ChannelChat, fmt.Errorf("whatsapp is not configured"))
	}
	if d.Lead == nil || d.Lead.Phone == "" {
		return Permanent(entity.ChannelChat, ErrMissingRecipient)
	}

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                digitsOnly(d.Lead.Phone),
		"type":              "text",
		"text": map[string]any{
			"preview_url": false,
			"body":        d.Content,
		},
	}

	url := fmt.Sprintf("%s/%s/messages", s.baseURL, s.phoneID)
	body, err := postJSON(ctx, s.client, entity.ChannelChat, url, map[string]string{
		"Authorization": "Bearer " + s.accessToken,
	}, payload)
	if err != nil {
		return err
	}

	var result whatsappResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return Retryable(entity.ChannelChat, fmt.Errorf("decode whatsapp response: %w", err))
	}
	if result.Error != nil {
		return Permanent(entity.ChannelChat, fmt.Errorf("whatsapp: %s (code %d)", result.Error.Message, result.Error.Code))
	}
	return nil
}

func digitsOnly(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			out = append(out, s[i])
		}
	}
	return string(out)
}
