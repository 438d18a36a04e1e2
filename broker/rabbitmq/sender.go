// Package rabbitmq implements event.Sender over RabbitMQ, grounded in the
// teacher's data/rabbitmq publish path (confirm-mode publishing with a
// topic exchange and a durable queue bound to it).
package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ncobase/modulith/event"
)

// Sender publishes to a RabbitMQ exchange, parsing RoutingTarget.Target()
// as "exchange/routingKey" (falling back to a single "default" exchange
// when no slash is present).
type Sender struct {
	conn           *amqp.Connection
	publishTimeout time.Duration
}

// NewSender wraps an established RabbitMQ connection.
func NewSender(conn *amqp.Connection, publishTimeout time.Duration) *Sender {
	if publishTimeout <= 0 {
		publishTimeout = 30 * time.Second
	}
	return &Sender{conn: conn, publishTimeout: publishTimeout}
}

func (s *Sender) Send(ctx context.Context, target event.RoutingTarget, payload []byte, headers map[string]string) (event.Ack, error) {
	exchange, routingKey := splitTarget(target.Target())

	ch, err := s.conn.Channel()
	if err != nil {
		return event.Ack{}, fmt.Errorf("rabbitmq: open channel: %w", err)
	}
	defer ch.Close()

	if err := s.ensureExchangeAndQueue(ch, exchange, routingKey); err != nil {
		return event.Ack{}, err
	}

	if err := ch.Confirm(false); err != nil {
		return event.Ack{}, fmt.Errorf("rabbitmq: confirm mode: %w", err)
	}
	confirms := ch.NotifyPublish(make(chan amqp.Confirmation, 1))

	publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()

	amqpHeaders := amqp.Table{}
	for k, v := range headers {
		amqpHeaders[k] = v
	}

	if key, ok := target.Key(); ok {
		amqpHeaders["x-routing-key"] = key
	}

	err = ch.PublishWithContext(publishCtx, exchange, routingKey, true, false, amqp.Publishing{
		ContentType:  "application/octet-stream",
		DeliveryMode: amqp.Persistent,
		Headers:      amqpHeaders,
		Body:         payload,
	})
	if err != nil {
		return event.Ack{}, fmt.Errorf("rabbitmq: publish: %w", err)
	}

	select {
	case confirmed, ok := <-confirms:
		if !ok {
			return event.Ack{}, fmt.Errorf("rabbitmq: confirmation channel closed")
		}
		if !confirmed.Ack {
			return event.Ack{}, fmt.Errorf("rabbitmq: broker nacked publish")
		}
		return event.Ack{MessageID: fmt.Sprintf("%d", confirmed.DeliveryTag)}, nil
	case <-publishCtx.Done():
		return event.Ack{}, fmt.Errorf("rabbitmq: publish confirmation timed out: %w", publishCtx.Err())
	}
}

func (s *Sender) ensureExchangeAndQueue(ch *amqp.Channel, exchange, routingKey string) error {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq: declare exchange: %w", err)
	}
	q, err := ch.QueueDeclare(routingKey, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq: declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, routingKey, exchange, false, nil); err != nil {
		return fmt.Errorf("rabbitmq: bind queue: %w", err)
	}
	return nil
}

func splitTarget(target string) (exchange, routingKey string) {
	for i := 0; i < len(target); i++ {
		if target[i] == '/' {
			return target[:i], target[i+1:]
		}
	}
	return "default", target
}

var _ event.Sender = (*Sender)(nil)
