// Package kafka implements event.Sender over Kafka using segmentio/kafka-go,
// grounded in the teacher's data/kafka driver's broker-dialing setup.
package kafka

import (
	"context"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/ncobase/modulith/event"
)

// Sender publishes to a Kafka topic named by RoutingTarget.Target(),
// reusing one writer per topic.
type Sender struct {
	brokers []string

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewSender builds a Sender dialing brokers lazily, one writer per topic
// seen.
func NewSender(brokers []string) *Sender {
	return &Sender{brokers: brokers, writers: make(map[string]*kafka.Writer)}
}

func (s *Sender) Send(ctx context.Context, target event.RoutingTarget, payload []byte, headers map[string]string) (event.Ack, error) {
	topic := target.Target()
	writer := s.writerFor(topic)

	msg := kafka.Message{Value: payload}
	if key, ok := target.Key(); ok {
		msg.Key = []byte(key)
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		return event.Ack{}, fmt.Errorf("kafka: write message to %s: %w", topic, err)
	}
	return event.Ack{}, nil
}

func (s *Sender) writerFor(topic string) *kafka.Writer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.writers[topic]; ok {
		return w
	}
	w := &kafka.Writer{
		Addr:     kafka.TCP(s.brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}
	s.writers[topic] = w
	return w
}

// Close closes every writer opened by this Sender.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, w := range s.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ event.Sender = (*Sender)(nil)
