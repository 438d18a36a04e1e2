package broker

import (
	"context"
	"errors"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncobase/modulith/event"
)

type recordingSender struct {
	target  event.RoutingTarget
	payload []byte
	headers map[string]string
	err     error
	calls   int
}

func (s *recordingSender) Send(ctx context.Context, target event.RoutingTarget, payload []byte, headers map[string]string) (event.Ack, error) {
	s.calls++
	s.target, s.payload, s.headers = target, payload, headers
	if s.err != nil {
		return event.Ack{}, s.err
	}
	return event.Ack{MessageID: "1"}, nil
}

func TestCompositeSenderDispatchesByScheme(t *testing.T) {
	amqpSender := &recordingSender{}
	kafkaSender := &recordingSender{}

	c := NewCompositeSender()
	c.Register(SchemeAMQP, amqpSender)
	c.Register(SchemeKafka, kafkaSender)

	target := event.ForTarget("amqp://orders.exchange/shipping").AndKey("o-1")
	_, err := c.Send(context.Background(), target, []byte("payload"), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, amqpSender.calls)
	assert.Equal(t, 0, kafkaSender.calls)
	assert.Equal(t, "orders.exchange/shipping", amqpSender.target.Target())
	key, ok := amqpSender.target.Key()
	require.True(t, ok)
	assert.Equal(t, "o-1", key)
}

func TestCompositeSenderUnknownSchemeErrors(t *testing.T) {
	c := NewCompositeSender()
	_, err := c.Send(context.Background(), event.ForTarget("sqs://queue"), nil, nil)
	require.Error(t, err)
}

func TestCompositeSenderOpensBreakerAfterRepeatedFailures(t *testing.T) {
	failing := &recordingSender{err: errors.New("broker unreachable")}
	c := NewCompositeSender()
	c.Register(SchemeKafka, failing)

	target := event.ForTarget("kafka://orders")

	for i := 0; i < 3; i++ {
		_, err := c.Send(context.Background(), target, nil, nil)
		require.Error(t, err)
	}

	_, err := c.Send(context.Background(), target, nil, nil)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, failing.calls, "an open breaker must not call the delegate")
}
