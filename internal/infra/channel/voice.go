package channel

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/xavierca1/conduit/internal/entity"
)

type callCreator interface {
	CreateCall(params *twilioApi.CreateCallParams) (*twilioApi.ApiV2010Call, error)
}

// VoiceSender places a call that reads the message with text-to-speech.
type VoiceSender struct {
	from  string
	calls callCreator
}

func NewVoiceSender(accountSID, authToken, from string) *VoiceSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &VoiceSender{from: from, calls: client.Api}
}

func (s *VoiceSender) Send(_ context.Context, d Delivery) error {
	if d.Lead == nil || d.Lead.Phone == "" {
		return Permanent(entity.ChannelVoice, ErrMissingRecipient)
	}

	twiml, err := sayTwiML(d.Content)
	if err != nil {
		return Permanent(entity.ChannelVoice, err)
	}

	params := &twilioApi.CreateCallParams{}
	params.SetTo(d.Lead.Phone)
	params.SetFrom(s.from)
	params.SetTwiml(twiml)

	if _, err := s.calls.CreateCall(params); err != nil {
		var restErr *twilioclient.TwilioRestError
		if errors.As(err, &restErr) && restErr.Status >= 400 && restErr.Status < 500 && restErr.Status != 429 {
			return Permanent(entity.ChannelVoice, fmt.Errorf("twilio %d: %s", restErr.Code, restErr.Message))
		}
		return Retryable(entity.ChannelVoice, fmt.Errorf("twilio: %w", err))
	}
	return nil
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Say     twimlSay `xml:"Say"`
}

type twimlSay struct {
	Voice string `xml:"voice,attr"`
	Text  string `xml:",chardata"`
}

func sayTwiML(text string) (string, error) {
	out, err := xml.Marshal(twimlResponse{Say: twimlSay{Voice: "alice", Text: text}})
	if err != nil {
		return "", fmt.Errorf("build twiml: %w", err)
	}
	return string(out), nil
}
