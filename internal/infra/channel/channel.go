// Package channel delivers outbound messages. Every channel implements the
// same Sender contract and the Dispatcher picks one by entity.Channel.
package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xavierca1/conduit/internal/entity"
)

var (
	ErrUnsupportedChannel = errors.New("no sender for channel")
	ErrMissingRecipient   = errors.New("lead has no address for this channel")
)

// Delivery is one outbound message and the lead it is for.
type Delivery struct {
	MessageID string
	Lead      *entity.Lead
	Content   string
}

type Sender interface {
	Send(ctx context.Context, d Delivery) error
}

// Error is a transport failure. errors.Is(err, entity.ErrChannel) holds for it.
type Error struct {
	Channel   entity.Channel
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("channel %s: %v", e.Channel, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == entity.ErrChannel
}

func Retryable(ch entity.Channel, err error) *Error {
	return &Error{Channel: ch, Retryable: true, Err: err}
}

func Permanent(ch entity.Channel, err error) *Error {
	return &Error{Channel: ch, Retryable: false, Err: err}
}

// IsPermanent reports whether err is a channel error that no retry can fix.
func IsPermanent(err error) bool {
	var cerr *Error
	return errors.As(err, &cerr) && !cerr.Retryable
}

// Dispatcher routes a delivery to the sender registered for its channel.
type Dispatcher struct {
	senders map[entity.Channel]Sender
	sends   *prometheus.CounterVec
}

func NewDispatcher(senders map[entity.Channel]Sender) *Dispatcher {
	return &Dispatcher{senders: senders}
}

// WithMetrics counts sends per channel and outcome on reg.
func (d *Dispatcher) WithMetrics(reg prometheus.Registerer) *Dispatcher {
	d.sends = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "conduit_channel_sends_total",
		Help: "Outbound sends by channel and outcome",
	}, []string{"channel", "outcome"})
	reg.MustRegister(d.sends)
	return d
}

func (d *Dispatcher) Send(ctx context.Context, ch entity.Channel, del Delivery) error {
	s, ok := d.senders[ch]
	if !ok {
		d.count(ch, "unsupported")
		return Permanent(ch, ErrUnsupportedChannel)
	}

	err := s.Send(ctx, del)
	if err == nil {
		d.count(ch, "sent")
		return nil
	}

	var cerr *Error
	if !errors.As(err, &cerr) {
		// Unclassified failures are assumed transient.
		cerr = Retryable(ch, err)
	}
	if cerr.Retryable {
		d.count(ch, "retryable_error")
	} else {
		d.count(ch, "permanent_error")
	}
	return cerr
}

func (d *Dispatcher) count(ch entity.Channel, outcome string) {
	if d.sends != nil {
		d.sends.WithLabelValues(string(ch), outcome).Inc()
	}
}
