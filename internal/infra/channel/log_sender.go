package channel

import (
	"context"
	"log/slog"
	"time"

	"github.com/xavierca1/conduit/internal/entity"
)

// LogSender pretends to deliver: it logs the message and waits Latency.
type LogSender struct {
	Channel entity.Channel
	Latency time.Duration
	Logger  *slog.Logger
}

func (s *LogSender) Send(ctx context.Context, d Delivery) error {
	if s.Latency > 0 {
		t := time.NewTimer(s.Latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return Retryable(s.Channel, ctx.Err())
		case <-t.C:
		}
	}

	s.Logger.Info("mock send", "channel", s.Channel, "message_id", d.MessageID, "content", d.Content)
	return nil
}
