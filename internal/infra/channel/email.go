package channel

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/textproto"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/xavierca1/conduit/internal/entity"
)

//go:embed templates/outreach.html
var templatesFS embed.FS

var outreachTemplate = template.Must(template.ParseFS(templatesFS, "templates/outreach.html"))

type outreachData struct {
	Name       string
	Paragraphs []string
}

type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailSender delivers over SMTP.
type EmailSender struct {
	From    string
	Subject string
	dialer  mailDialer
}

func NewEmailSender(host string, port int, user, password, from string) *EmailSender {
	return &EmailSender{
		From:    from,
		Subject: "Following up",
		dialer:  gomail.NewDialer(host, port, user, password),
	}
}

func (s *EmailSender) Send(_ context.Context, d Delivery) error {
	if d.Lead == nil || d.Lead.Email == "" {
		return Permanent(entity.ChannelEmail, ErrMissingRecipient)
	}

	var body bytes.Buffer
	data := outreachData{Name: firstName(d.Lead.Name), Paragraphs: paragraphs(d.Content)}
	if err := outreachTemplate.Execute(&body, data); err != nil {
		return Permanent(entity.ChannelEmail, fmt.Errorf("render email: %w", err))
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", d.Lead.Email)
	m.SetHeader("Subject", s.Subject)
	if d.MessageID != "" {
		m.SetHeader("X-Conduit-Message-ID", d.MessageID)
	}
	m.SetBody("text/plain", d.Content)
	m.AddAlternative("text/html", body.String())

	if err := s.dialer.DialAndSend(m); err != nil {
		// 5xx SMTP replies (unknown mailbox, rejected content) will not change on retry.
		var tpErr *textproto.Error
		if errors.As(err, &tpErr) && tpErr.Code >= 500 {
			return Permanent(entity.ChannelEmail, fmt.Errorf("smtp: %w", err))
		}
		return Retryable(entity.ChannelEmail, fmt.Errorf("smtp: %w", err))
	}
	return nil
}

func firstName(name string) string {
	if f := strings.Fields(name); len(f) > 0 {
		return f[0]
	}
	return "there"
}

func paragraphs(content string) []string {
	var out []string
	for _, p := range strings.Split(content, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
