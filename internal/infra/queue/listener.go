package queue

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/xavierca1/conduit/internal/entity"
)

// PQListener turns Postgres NOTIFY messages on NotifyChannel into queue wake-ups.
type PQListener struct {
	listener *pq.Listener
	out      chan string
	done     chan struct{}
	once     sync.Once
}

func NewPQListener(dsn string, logger *slog.Logger) (*PQListener, error) {
	if logger == nil {
		logger = slog.Default()
	}

	report := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("queue listener event", "event", int(ev), "error", err)
		}
	}
	l := pq.NewListener(dsn, 500*time.Millisecond, time.Minute, report)
	if err := l.Listen(NotifyChannel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("%w: listen %s: %v", entity.ErrQueueUnavailable, NotifyChannel, err)
	}

	p := &PQListener{
		listener: l,
		out:      make(chan string, 64),
		done:     make(chan struct{}),
	}
	go p.pump()
	return p, nil
}

func (p *PQListener) Wakeups() <-chan string {
	return p.out
}

func (p *PQListener) pump() {
	defer close(p.out)
	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-p.done:
			return
		case n, ok := <-p.listener.Notify:
			if !ok {
				return
			}
			// nil means the connection was re-established and notifications
			// may have been missed.
			kind := ""
			if n != nil {
				kind = n.Extra
			}
			select {
			case p.out <- kind:
			default:
			}
		case <-ping.C:
			go func() { _ = p.listener.Ping() }()
		}
	}
}

func (p *PQListener) Close() error {
	var err error
	p.once.Do(func() {
		close(p.done)
		err = p.listener.Close()
	})
	return err
}
