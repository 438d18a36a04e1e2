package event

import (
	"context"

	"github.com/ncobase/modulith/logging"
)

// ListenerFunc handles one event delivery. Returning a non-nil error leaves
// the publication incomplete for the Supervisor to retry.
type ListenerFunc func(ctx context.Context, event any) error

// Listener is a registered destination for published events.
type Listener struct {
	// Target identifies this listener for publication bookkeeping,
	// typically the fully qualified method reference the Module Model
	// would report for it.
	Target PublicationTargetIdentifier
	// Async, when true, hands the invocation to the Dispatcher once every
	// publication for the event has been stored, instead of running it
	// inline; no caller transaction is waited on. Without a Dispatcher the
	// listener runs inline with Publish.
	Async bool
	// Predicate, if non-nil, restricts this listener to events it returns
	// true for. An event a listener rejects never gets a publication
	// created for that listener at all, rather than one created and
	// immediately discarded.
	Predicate func(event any) bool
	Fn        ListenerFunc
}

// Dispatcher runs asynchronous listener tasks off the publishing goroutine. The worker
// package's Pool satisfies this.
type Dispatcher interface {
	Submit(task func(ctx context.Context)) error
}

// Multicaster intercepts event publication: it persists one publication
// per matching listener via the Registry, invokes synchronous listeners
// inline, and hands asynchronous listeners to the Dispatcher.
type Multicaster struct {
	registry   *Registry
	dispatcher Dispatcher

	listeners []Listener
}

func NewMulticaster(registry *Registry, dispatcher Dispatcher) *Multicaster {
	return &Multicaster{registry: registry, dispatcher: dispatcher}
}

// Subscribe registers a listener. Not safe to call concurrently with
// Publish; listener registration happens at wiring time, before events
// flow.
func (m *Multicaster) Subscribe(l Listener) {
	m.listeners = append(m.listeners, l)
}

// Publish resolves the listener set, creates publications for every
// listener, dispatches synchronous listeners inline and asynchronous ones
// through the Dispatcher, and completes or leaves-incomplete each
// publication according to listener outcome.
//
// Re-entrancy: if a synchronous listener itself calls Publish, that nested
// call creates and dispatches its own publications at once, inside the
// listener's call and before the listener returns; nested publications are
// not held back until the triggering listener has returned.
func (m *Multicaster) Publish(ctx context.Context, event any) error {
	matched := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		if l.Predicate != nil && !l.Predicate(event) {
			continue
		}
		matched = append(matched, l)
	}
	if len(matched) == 0 {
		return nil
	}

	targets := make([]PublicationTargetIdentifier, 0, len(matched))
	for _, l := range matched {
		targets = append(targets, l.Target)
	}

	pubs, err := m.registry.Store(ctx, event, targets)
	if err != nil {
		return err
	}

	byTarget := make(map[string]*EventPublication, len(pubs))
	for _, p := range pubs {
		byTarget[p.Target.String()] = p
	}

	for _, l := range matched {
		l := l
		pub := byTarget[l.Target.String()]
		if pub == nil {
			continue
		}

		if !l.Async {
			m.invoke(ctx, l, event, pub)
			continue
		}

		if m.dispatcher == nil {
			m.invoke(ctx, l, event, pub)
			continue
		}
		dispatchCtx := context.WithoutCancel(ctx)
		if err := m.dispatcher.Submit(func(taskCtx context.Context) {
			m.invoke(dispatchCtx, l, event, pub)
			_ = taskCtx
		}); err != nil {
			logging.Errorf(ctx, "multicaster: failed to enqueue async listener %s: %v", l.Target, err)
		}
	}

	return nil
}

func (m *Multicaster) invoke(ctx context.Context, l Listener, event any, pub *EventPublication) {
	if err := l.Fn(ctx, event); err != nil {
		logging.Warnf(ctx, "multicaster: listener %s failed, leaving publication %s incomplete: %v", l.Target, pub.ID, err)
		return
	}
	if err := m.registry.Complete(ctx, pub.SerializedEvent, pub.Target); err != nil {
		logging.Errorf(ctx, "multicaster: failed to complete publication %s: %v", pub.ID, err)
	}
}
