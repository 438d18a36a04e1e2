package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncDispatcher runs tasks inline on Submit, enough to exercise the
// async-dispatch branch without a real worker pool.
type syncDispatcher struct {
	mu    sync.Mutex
	calls int
}

func (d *syncDispatcher) Submit(task func(ctx context.Context)) error {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	task(context.Background())
	return nil
}

func TestMulticasterPublishInvokesSyncListenerWithOriginalEvent(t *testing.T) {
	store := NewMemStore()
	registry := NewRegistry(store, nil)
	m := NewMulticaster(registry, nil)

	var received any
	target, err := NewPublicationTargetIdentifier("shipping.Listener")
	require.NoError(t, err)

	m.Subscribe(Listener{
		Target: target,
		Fn: func(ctx context.Context, event any) error {
			received = event
			return nil
		},
	})

	evt := orderPlaced{OrderID: "o-10"}
	require.NoError(t, m.Publish(context.Background(), evt))

	assert.Equal(t, evt, received, "listener must receive the original domain event, not the publication wrapper")

	incomplete, err := store.FindIncomplete(context.Background())
	require.NoError(t, err)
	assert.Empty(t, incomplete, "successful sync listener must complete its publication")
}

func TestMulticasterLeavesPublicationIncompleteOnListenerError(t *testing.T) {
	store := NewMemStore()
	registry := NewRegistry(store, nil)
	m := NewMulticaster(registry, nil)

	target, err := NewPublicationTargetIdentifier("billing.Listener")
	require.NoError(t, err)

	m.Subscribe(Listener{
		Target: target,
		Fn: func(ctx context.Context, event any) error {
			return errors.New("billing unavailable")
		},
	})

	require.NoError(t, m.Publish(context.Background(), orderPlaced{OrderID: "o-11"}))

	incomplete, err := store.FindIncomplete(context.Background())
	require.NoError(t, err)
	assert.Len(t, incomplete, 1)
}

func TestMulticasterDispatchesAsyncListenersThroughDispatcher(t *testing.T) {
	store := NewMemStore()
	registry := NewRegistry(store, nil)
	dispatcher := &syncDispatcher{}
	m := NewMulticaster(registry, dispatcher)

	target, err := NewPublicationTargetIdentifier("analytics.Listener")
	require.NoError(t, err)

	var received any
	m.Subscribe(Listener{
		Target: target,
		Async:  true,
		Fn: func(ctx context.Context, event any) error {
			received = event
			return nil
		},
	})

	evt := orderPlaced{OrderID: "o-12"}
	require.NoError(t, m.Publish(context.Background(), evt))

	assert.Equal(t, 1, dispatcher.calls)
	assert.Equal(t, evt, received)
}

func TestMulticasterAsyncWithoutDispatcherFallsBackInline(t *testing.T) {
	store := NewMemStore()
	registry := NewRegistry(store, nil)
	m := NewMulticaster(registry, nil)

	target, err := NewPublicationTargetIdentifier("analytics.Listener")
	require.NoError(t, err)

	invoked := false
	m.Subscribe(Listener{
		Target: target,
		Async:  true,
		Fn: func(ctx context.Context, event any) error {
			invoked = true
			return nil
		},
	})

	require.NoError(t, m.Publish(context.Background(), orderPlaced{OrderID: "o-13"}))
	assert.True(t, invoked)
}

func TestMulticasterPredicateSkipsNonMatchingEventsEntirely(t *testing.T) {
	store := NewMemStore()
	registry := NewRegistry(store, nil)
	m := NewMulticaster(registry, nil)

	target, err := NewPublicationTargetIdentifier("routing.Listener")
	require.NoError(t, err)

	invoked := false
	m.Subscribe(Listener{
		Target: target,
		Predicate: func(event any) bool {
			p, ok := event.(orderPlaced)
			return ok && p.OrderID == "never-matches"
		},
		Fn: func(ctx context.Context, event any) error {
			invoked = true
			return nil
		},
	})

	require.NoError(t, m.Publish(context.Background(), orderPlaced{OrderID: "o-15"}))
	assert.False(t, invoked, "predicate rejecting the event must skip listener invocation")

	incomplete, err := store.FindIncomplete(context.Background())
	require.NoError(t, err)
	assert.Empty(t, incomplete, "a rejected predicate must not create a publication at all")
}

func TestMulticasterPublishWithNoListenersIsNoop(t *testing.T) {
	store := NewMemStore()
	registry := NewRegistry(store, nil)
	m := NewMulticaster(registry, nil)

	require.NoError(t, m.Publish(context.Background(), orderPlaced{OrderID: "o-14"}))

	incomplete, err := store.FindIncomplete(context.Background())
	require.NoError(t, err)
	assert.Empty(t, incomplete)
}
