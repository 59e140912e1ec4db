package channel

import (
	"context"
	"fmt"
	"net/http"

	"github.com/xavierca1/conduit/internal/entity"
)

// LinkedInURNKey is the lead metadata key holding the member URN.
const LinkedInURNKey = "linkedin_urn"

// LinkedInSender posts to the LinkedIn messaging API.
type LinkedInSender struct {
	accessToken string
	baseURL     string
	client      *http.Client
}

func NewLinkedInSender(accessToken, baseURL string) *LinkedInSender {
	return &LinkedInSender{accessToken: accessToken, baseURL: baseURL, client: newHTTPClient()}
}

func (s *LinkedInSender) Send(ctx context.Context, d Delivery) error {
	if s.accessToken == "" {
		return Permanent(entity.ChannelProfessionalNetwork, fmt.Errorf("linkedin is not configured"))
	}
	urn, _ := metadataString(d.Lead, LinkedInURNKey)
	if urn == "" {
		return Permanent(entity.ChannelProfessionalNetwork, ErrMissingRecipient)
	}

	payload := map[string]any{
		"recipients": []string{urn},
		"subject":    "",
		"body":       d.Content,
	}
	_, err := postJSON(ctx, s.client, entity.ChannelProfessionalNetwork, s.baseURL+"/messages", map[string]string{
		"Authorization":             "Bearer " + s.accessToken,
		"X-Restli-Protocol-Version": "2.0.0",
	}, payload)
	return err
}

func metadataString(lead *entity.Lead, key string) (string, bool) {
	if lead == nil || lead.Metadata == nil {
		return "", false
	}
	v, ok := lead.Metadata[key].(string)
	return v, ok
}
