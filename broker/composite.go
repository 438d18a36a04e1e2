// Package broker dispatches Sender calls to the concrete broker package
// (rabbitmq, kafka) selected by a RoutingTarget's scheme, wrapping each
// per-target destination in its own circuit breaker so a failing broker
// opens its breaker rather than retry-storming the dispatch worker pool;
// grounded in the teacher's gobreaker usage in ext/manager.
package broker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/ncobase/modulith/event"
)

// Scheme is the "amqp"/"kafka" prefix a RoutingTarget.Target() carries,
// e.g. "amqp://exchange/routingKey" or "kafka://topic".
type Scheme string

const (
	SchemeAMQP  Scheme = "amqp"
	SchemeKafka Scheme = "kafka"
)

// CompositeSender dispatches by RoutingTarget scheme to one of several
// registered Senders, wrapping each call in a per-target circuit breaker.
type CompositeSender struct {
	senders map[Scheme]event.Sender

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewCompositeSender builds a CompositeSender with no registered
// delegates; call Register for each scheme in use.
func NewCompositeSender() *CompositeSender {
	return &CompositeSender{
		senders:  make(map[Scheme]event.Sender),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Register associates scheme with a concrete Sender delegate.
func (c *CompositeSender) Register(scheme Scheme, sender event.Sender) {
	c.senders[scheme] = sender
}

func (c *CompositeSender) Send(ctx context.Context, target event.RoutingTarget, payload []byte, headers map[string]string) (event.Ack, error) {
	scheme, rest := splitScheme(target.Target())
	sender, ok := c.senders[scheme]
	if !ok {
		return event.Ack{}, fmt.Errorf("broker: no sender registered for scheme %q", scheme)
	}

	unscoped := event.ForTarget(rest)
	if key, ok := target.Key(); ok {
		unscoped = unscoped.AndKey(key)
	}

	breaker := c.breakerFor(string(scheme) + ":" + rest)
	result, err := breaker.Execute(func() (any, error) {
		return sender.Send(ctx, unscoped, payload, headers)
	})
	if err != nil {
		return event.Ack{}, err
	}
	return result.(event.Ack), nil
}

func (c *CompositeSender) breakerFor(name string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.breakers[name]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
	})
	c.breakers[name] = b
	return b
}

func splitScheme(target string) (Scheme, string) {
	idx := strings.Index(target, "://")
	if idx < 0 {
		return "", target
	}
	return Scheme(target[:idx]), target[idx+3:]
}

var _ event.Sender = (*CompositeSender)(nil)
