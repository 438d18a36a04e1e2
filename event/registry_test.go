package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderPlaced struct {
	OrderID string `json:"orderId"`
}

func targets(t *testing.T, names ...string) []PublicationTargetIdentifier {
	t.Helper()
	out := make([]PublicationTargetIdentifier, 0, len(names))
	for _, n := range names {
		id, err := NewPublicationTargetIdentifier(n)
		require.NoError(t, err)
		out = append(out, id)
	}
	return out
}

func TestRegistryStoreCreatesOnePublicationPerTarget(t *testing.T) {
	store := NewMemStore()
	r := NewRegistry(store, nil)

	pubs, err := r.Store(context.Background(), orderPlaced{OrderID: "o-1"}, targets(t, "shipping.Listener", "billing.Listener"))
	require.NoError(t, err)
	require.Len(t, pubs, 2)

	for _, p := range pubs {
		assert.Equal(t, StatusPublished, p.Status)
	}
	assert.NotEqual(t, pubs[0].Sequence(), pubs[1].Sequence())
}

// failingStore creates successfully up to failAfter times, then fails, to
// exercise the atomic publish-set rollback path.
type failingStore struct {
	*MemStore
	failAfter int
	created   int
}

func (s *failingStore) Create(ctx context.Context, pub *EventPublication) error {
	if s.created >= s.failAfter {
		return errors.New("boom")
	}
	s.created++
	return s.MemStore.Create(ctx, pub)
}

func TestRegistryStoreRollsBackOnPartialFailure(t *testing.T) {
	backing := &failingStore{MemStore: NewMemStore(), failAfter: 1}
	r := NewRegistry(backing, nil)

	_, err := r.Store(context.Background(), orderPlaced{OrderID: "o-2"}, targets(t, "shipping.Listener", "billing.Listener"))
	require.Error(t, err)

	incomplete, err := backing.FindIncomplete(context.Background())
	require.NoError(t, err)
	assert.Empty(t, incomplete, "partially created publications must be rolled back")
}

func TestRegistryCompleteIsIdempotent(t *testing.T) {
	store := NewMemStore()
	r := NewRegistry(store, nil)

	target := targets(t, "shipping.Listener")
	pubs, err := r.Store(context.Background(), orderPlaced{OrderID: "o-3"}, target)
	require.NoError(t, err)

	serialized := pubs[0].SerializedEvent

	require.NoError(t, r.Complete(context.Background(), serialized, target[0]))
	require.NoError(t, r.Complete(context.Background(), serialized, target[0]))

	_, cached := r.Lookup(serialized, target[0])
	assert.False(t, cached, "completed publication must be evicted from the in-progress cache")
}

func TestRegistryCompleteSurvivesCancelledContext(t *testing.T) {
	store := NewMemStore()
	r := NewRegistry(store, nil)

	target := targets(t, "shipping.Listener")
	pubs, err := r.Store(context.Background(), orderPlaced{OrderID: "o-4"}, target)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = r.Complete(ctx, pubs[0].SerializedEvent, target[0])
	require.NoError(t, err, "completion must run in a detached context independent of the caller's cancellation")
}

func TestRegistryMarkStalePublicationsFailed(t *testing.T) {
	store := NewMemStore()
	r := NewRegistry(store, nil)

	_, err := r.Store(context.Background(), orderPlaced{OrderID: "o-5"}, targets(t, "shipping.Listener"))
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	count, err := r.MarkStalePublicationsFailed(context.Background(), time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	incomplete, err := store.FindIncomplete(context.Background())
	require.NoError(t, err)
	require.Len(t, incomplete, 1, "a FAILED publication has no completion date and stays incomplete")
	assert.Equal(t, StatusFailed, incomplete[0].Status)
}

func TestRegistrySequenceUniqueAcrossRepeatedStoreCalls(t *testing.T) {
	store := NewMemStore()
	r := NewRegistry(store, nil)

	seen := map[uint64]bool{}
	for i := 0; i < 10; i++ {
		pubs, err := r.Store(context.Background(), orderPlaced{OrderID: "dup"}, targets(t, "shipping.Listener"))
		require.NoError(t, err)
		seq := pubs[0].Sequence()
		assert.False(t, seen[seq], "sequence numbers must be unique across Store calls")
		seen[seq] = true
	}
}
