package event

import (
	"context"

	"github.com/ncobase/modulith/logging"
)

// PoolOutbox is a process-local Outbox: Schedule hands the send off to a
// Dispatcher (the worker pool) instead of sending inline, giving the
// Router's "outbox" mode a later, separately-driven pass without a
// surrounding business transaction having to wait on the broker. It does
// not persist entries across a process restart; a deployment that needs
// that durability supplies its own Outbox backed by a durable table
// instead (the Schedule contract is unchanged either way).
type PoolOutbox struct {
	dispatcher Dispatcher
	sender     Sender
}

// NewPoolOutbox builds a PoolOutbox draining through dispatcher and
// delivering via sender.
func NewPoolOutbox(dispatcher Dispatcher, sender Sender) *PoolOutbox {
	return &PoolOutbox{dispatcher: dispatcher, sender: sender}
}

func (o *PoolOutbox) Schedule(ctx context.Context, entry OutboxEntry) error {
	sendCtx := context.WithoutCancel(ctx)
	return o.dispatcher.Submit(func(taskCtx context.Context) {
		if _, err := o.sender.Send(sendCtx, entry.Target, entry.Payload, entry.Headers); err != nil {
			logging.Errorf(sendCtx, "outbox: send to %s failed: %v", entry.Target, err)
		}
	})
}

var _ Outbox = (*PoolOutbox)(nil)
