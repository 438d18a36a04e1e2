package event

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncobase/modulith/merr"
)

type routedOrder struct {
	OrderID string
	Region  string
}

// fakeEvaluator resolves "Region" to the event's Region field and nothing
// else, enough to exercise expression-driven routing without depending on
// the sibling expr package (which event must not import to avoid a cycle).
type fakeEvaluator struct{}

func (fakeEvaluator) Evaluate(expression string, root any) (string, error) {
	order, ok := root.(routedOrder)
	if !ok {
		return "", errors.New("unsupported root")
	}
	if expression == "Region" {
		return "orders." + order.Region, nil
	}
	return "", errors.New("unknown expression " + expression)
}

type fakeSender struct {
	target  RoutingTarget
	payload []byte
	headers map[string]string
	err     error
}

func (s *fakeSender) Send(ctx context.Context, target RoutingTarget, payload []byte, headers map[string]string) (Ack, error) {
	s.target, s.payload, s.headers = target, payload, headers
	if s.err != nil {
		return Ack{}, s.err
	}
	return Ack{MessageID: "1"}, nil
}

type fakeOutbox struct {
	scheduled []OutboxEntry
}

func (o *fakeOutbox) Schedule(ctx context.Context, entry OutboxEntry) error {
	o.scheduled = append(o.scheduled, entry)
	return nil
}

func marker(event any) (string, bool) {
	order, ok := event.(routedOrder)
	if !ok {
		return "", false
	}
	return "#{Region}::" + order.OrderID, true
}

func TestRouterSupportsOnlyMarkedEvents(t *testing.T) {
	router := NewRouter(RouterConfig{Enabled: true, Mode: ModeImmediate}, marker, fakeEvaluator{}, nil, &fakeSender{}, nil)

	assert.True(t, router.Supports(routedOrder{OrderID: "o-1", Region: "eu"}))
	assert.False(t, router.Supports("not an order"))
}

func TestRouterResolvesExpressionAndSendsImmediate(t *testing.T) {
	sender := &fakeSender{}
	router := NewRouter(RouterConfig{Enabled: true, Mode: ModeImmediate}, marker, fakeEvaluator{}, nil, sender, nil)

	err := router.ListenerFunc(context.Background(), routedOrder{OrderID: "o-2", Region: "us"})
	require.NoError(t, err)

	assert.Equal(t, "orders.us", sender.target.Target())
	key, ok := sender.target.Key()
	require.True(t, ok)
	assert.Equal(t, "o-2", key)
}

func TestRouterScheduleOutboxModeDoesNotCallSender(t *testing.T) {
	sender := &fakeSender{}
	outbox := &fakeOutbox{}
	router := NewRouter(RouterConfig{Enabled: true, Mode: ModeOutbox}, marker, fakeEvaluator{}, nil, sender, outbox)

	err := router.ListenerFunc(context.Background(), routedOrder{OrderID: "o-3", Region: "ap"})
	require.NoError(t, err)

	require.Len(t, outbox.scheduled, 1)
	assert.Equal(t, "orders.ap", outbox.scheduled[0].Target.Target())
	assert.Empty(t, sender.target.Target(), "immediate sender must not be invoked in outbox mode")
}

func TestRouterOutboxModeWithoutOutboxConfiguredErrors(t *testing.T) {
	router := NewRouter(RouterConfig{Enabled: true, Mode: ModeOutbox}, marker, fakeEvaluator{}, nil, nil, nil)

	err := router.ListenerFunc(context.Background(), routedOrder{OrderID: "o-4", Region: "eu"})
	require.Error(t, err)
}

func TestRouterHeadersAugmentWithoutOverwriting(t *testing.T) {
	sender := &fakeSender{}
	router := NewRouter(RouterConfig{Enabled: true, Mode: ModeImmediate}, marker, fakeEvaluator{}, nil, sender, nil).
		WithHeaders(func(event any) map[string]string {
			return map[string]string{"content-type": "application/json", "x-source": "orders"}
		})

	require.NoError(t, router.ListenerFunc(context.Background(), routedOrder{OrderID: "o-5", Region: "eu"}))

	assert.Equal(t, "application/json", sender.headers["content-type"])
	assert.Equal(t, "orders", sender.headers["x-source"])
}

func TestRouterSendFailureIsWrappedAsTransportError(t *testing.T) {
	sender := &fakeSender{err: errors.New("broker down")}
	router := NewRouter(RouterConfig{Enabled: true, Mode: ModeImmediate}, marker, fakeEvaluator{}, nil, sender, nil)

	err := router.ListenerFunc(context.Background(), routedOrder{OrderID: "o-6", Region: "eu"})
	require.Error(t, err)
	var transportErr *merr.TransportError
	assert.ErrorAs(t, err, &transportErr)
}
