// Package broker connects Conduit to RabbitMQ: audit events and dead jobs are
// published for other systems, and inbound replies pushed by channel webhooks
// are consumed from q.replies.
package broker

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	EventsExchange  = "ex.conduit.events"
	InboundExchange = "ex.conduit.inbound"
	DLXName         = "ex.dlx"

	RepliesQueue  = "q.replies"
	DeadJobsQueue = "q.dead_jobs"
	RepliesDLQ    = "q.replies.dlq"

	ReplyRoutingKey   = "k.reply"
	DeadJobRoutingKey = "k.dead_job"
	eventKeyPrefix    = "event."
)

type RabbitMQ struct {
	Conn *amqp.Connection
	Ch   *amqp.Channel
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	if err := setupTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare rabbitmq topology: %w", err)
	}

	return &RabbitMQ{Conn: conn, Ch: ch}, nil
}

func (r *RabbitMQ) Close() error {
	if err := r.Ch.Close(); err != nil {
		r.Conn.Close()
		return err
	}
	return r.Conn.Close()
}

type topologyDeclarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

func setupTopology(ch topologyDeclarer) error {
	for _, ex := range []struct{ name, kind string }{
		{DLXName, amqp.ExchangeDirect},
		{EventsExchange, amqp.ExchangeTopic},
		{InboundExchange, amqp.ExchangeDirect},
	} {
		if err := ch.ExchangeDeclare(ex.name, ex.kind, true, false, false, false, nil); err != nil {
			return err
		}
	}

	// Rejected replies land in the DLQ instead of looping.
	if _, err := ch.QueueDeclare(RepliesDLQ, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(RepliesDLQ, ReplyRoutingKey, DLXName, false, nil); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(DeadJobsQueue, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(DeadJobsQueue, DeadJobRoutingKey, DLXName, false, nil); err != nil {
		return err
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    DLXName,
		"x-dead-letter-routing-key": ReplyRoutingKey,
	}
	if _, err := ch.QueueDeclare(RepliesQueue, true, false, false, false, args); err != nil {
		return err
	}
	return ch.QueueBind(RepliesQueue, ReplyRoutingKey, InboundExchange, false, nil)
}
