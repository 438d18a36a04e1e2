package event

import "context"

// Ack is the broker's acknowledgement of a successfully delivered message.
type Ack struct {
	// MessageID is the broker-assigned identifier of the delivered message,
	// when the broker provides one.
	MessageID string
}

// Sender delivers a single message to an external broker destination
// described by target. Implementations live under the sibling broker/
// packages (rabbitmq, kafka) and are broker-agnostic from the Router's
// point of view.
//
// Send blocks until the broker has accepted the message (or the context
// is cancelled); brokers that only acknowledge asynchronously surface that
// through ctx deadlines rather than through the return value.
type Sender interface {
	Send(ctx context.Context, target RoutingTarget, payload []byte, headers map[string]string) (Ack, error)
}

// SenderFunc adapts a function to a Sender.
type SenderFunc func(ctx context.Context, target RoutingTarget, payload []byte, headers map[string]string) (Ack, error)

func (f SenderFunc) Send(ctx context.Context, target RoutingTarget, payload []byte, headers map[string]string) (Ack, error) {
	return f(ctx, target, payload, headers)
}
