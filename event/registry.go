package event

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ncobase/modulith/logging"
	"github.com/ncobase/modulith/merr"
)

// cacheKey is the in-progress cache's key: (serialized event, target).
type cacheKey struct {
	event  string
	target string
}

// Registry fronts a Store, adding the in-progress cache, independent-
// transaction completion, staleness sweeps and a shutdown diagnostic.
type Registry struct {
	store      Store
	serializer Serializer

	mu    sync.RWMutex
	cache map[cacheKey]*EventPublication

	sequence atomic.Uint64
}

// NewRegistry constructs a Registry over store, serializing events with
// serializer (JSONSerializer if nil).
func NewRegistry(store Store, serializer Serializer) *Registry {
	if serializer == nil {
		serializer = JSONSerializer{}
	}
	return &Registry{
		store:      store,
		serializer: serializer,
		cache:      make(map[cacheKey]*EventPublication),
	}
}

// Store publishes event to every listener in targets, creating one
// publication per (event, listener) pair. All n publications are
// persisted, or none are (testable property 3: atomic publish-set):
// Create failures abort the whole call and any already-created
// publications for this call are best-effort removed from the Store.
//
// Publications are stamped with a monotonically increasing sequence
// number so that publishedAt ties between publications created in one
// call (and thus nominally one transaction) break in listener-enumeration
// order (testable property 4).
func (r *Registry) Store(ctx context.Context, event any, targets []PublicationTargetIdentifier) ([]*EventPublication, error) {
	serialized, err := r.serializer.Serialize(event)
	if err != nil {
		return nil, merr.NewStorageError("serialize", err)
	}

	now := time.Now()
	eventType := eventTypeName(event)

	created := make([]*EventPublication, 0, len(targets))
	for _, target := range targets {
		pub := NewEventPublication(uuid.New(), eventType, serialized, target, now, r.sequence.Add(1))
		if err := r.store.Create(ctx, pub); err != nil {
			r.rollback(ctx, created)
			return nil, merr.NewStorageError("create", err)
		}
		created = append(created, pub)
		r.put(pub)
	}

	return created, nil
}

func (r *Registry) rollback(ctx context.Context, created []*EventPublication) {
	if len(created) == 0 {
		return
	}
	ids := make([]uuid.UUID, 0, len(created))
	for _, p := range created {
		ids = append(ids, p.ID)
		r.evict(p)
	}
	if err := r.store.DeleteByIDs(ctx, ids); err != nil {
		logging.Errorf(ctx, "registry: failed to roll back partially created publications: %v", err)
	}
}

// eventTypeName derives a stable discriminator for the persisted
// event_type column from event's dynamic type.
func eventTypeName(event any) string {
	type typed interface{ EventType() string }
	if t, ok := event.(typed); ok {
		return t.EventType()
	}
	return goTypeName(event)
}

func goTypeName(v any) string {
	return fmt.Sprintf("%T", v)
}

// put inserts pub into the in-progress cache.
func (r *Registry) put(pub *EventPublication) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[cacheKey{event: pub.SerializedEvent, target: pub.Target.String()}] = pub
}

// evict removes pub from the in-progress cache.
func (r *Registry) evict(pub *EventPublication) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, cacheKey{event: pub.SerializedEvent, target: pub.Target.String()})
}

// Lookup finds a publication in the process-local in-progress cache
// without a Store round-trip, used by synchronous listeners to find their
// own publication.
func (r *Registry) Lookup(serializedEvent string, target PublicationTargetIdentifier) (*EventPublication, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pub, ok := r.cache[cacheKey{event: serializedEvent, target: target.String()}]
	return pub, ok
}

// Complete marks the publication for (serializedEvent, target) completed.
// It runs against the Store independently of any surrounding business
// transaction context, so the completion commit survives a later rollback
// of the business transaction that triggered the listener (§4.5
// "independent transaction").
func (r *Registry) Complete(ctx context.Context, serializedEvent string, target PublicationTargetIdentifier) error {
	completionCtx := context.WithoutCancel(ctx)
	at := time.Now()

	if err := r.store.MarkCompleted(completionCtx, serializedEvent, target, at); err != nil {
		return merr.NewStorageError("markCompleted", err)
	}

	if pub, ok := r.Lookup(serializedEvent, target); ok {
		pub.MarkCompleted(at)
		r.evict(pub)
	}
	return nil
}

// FindIncomplete returns every incomplete publication from the Store.
func (r *Registry) FindIncomplete(ctx context.Context) ([]*EventPublication, error) {
	return r.store.FindIncomplete(ctx)
}

// MarkStalePublicationsFailed transitions to FAILED every publication
// whose PublishedAt+threshold has elapsed and which has not reached a
// terminal state, recording attempts.
func (r *Registry) MarkStalePublicationsFailed(ctx context.Context, threshold time.Duration) (int, error) {
	now := time.Now()
	stale, err := r.store.FindIncompletePublishedBefore(ctx, now.Add(-threshold))
	if err != nil {
		return 0, merr.NewStorageError("findIncompletePublishedBefore", err)
	}

	count := 0
	for _, pub := range stale {
		if pub.Status.IsTerminal() {
			continue
		}
		if err := r.store.MarkFailed(ctx, pub.ID, now, "staleness threshold exceeded"); err != nil {
			logging.Errorf(ctx, "registry: failed to mark publication %s stale: %v", pub.ID, err)
			continue
		}
		r.evict(pub)
		count++
	}
	return count, nil
}

// DeleteCompletedPublicationsOlderThan purges completed publications whose
// CompletedAt predates now-age.
func (r *Registry) DeleteCompletedPublicationsOlderThan(ctx context.Context, age time.Duration) error {
	return r.store.DeleteCompletedBefore(ctx, time.Now().Add(-age))
}

// Shutdown logs the count and identities of still-incomplete publications
// without deleting them, per the shutdown diagnostic in §4.5.
func (r *Registry) Shutdown(ctx context.Context) {
	incomplete, err := r.store.FindIncomplete(ctx)
	if err != nil {
		logging.Errorf(ctx, "registry: shutdown diagnostic failed: %v", err)
		return
	}
	if len(incomplete) == 0 {
		logging.Infof(ctx, "registry: shutdown with no incomplete publications")
		return
	}
	ids := make([]string, 0, len(incomplete))
	for _, p := range incomplete {
		ids = append(ids, p.ID.String())
	}
	logging.Warnf(ctx, "registry: shutting down with %d incomplete publication(s): %v", len(incomplete), ids)
}
