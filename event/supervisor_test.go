package event

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncobase/modulith/merr"
)

type recordingRepublisher struct {
	mu        sync.Mutex
	republished []*EventPublication
}

func (r *recordingRepublisher) Republish(ctx context.Context, pub *EventPublication) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.republished = append(r.republished, pub)
	return nil
}

func (r *recordingRepublisher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.republished)
}

type alwaysLockedLock struct{}

func (alwaysLockedLock) ExecuteLocked(ctx context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	return merr.ErrLockUnavailable
}

type passThroughLock struct{ calls int }

func (l *passThroughLock) ExecuteLocked(ctx context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	l.calls++
	return fn(ctx)
}

func TestSupervisorResubmitsIncompleteOnStart(t *testing.T) {
	store := NewMemStore()
	registry := NewRegistry(store, nil)
	target, err := NewPublicationTargetIdentifier("shipping.Listener")
	require.NoError(t, err)
	_, err = registry.Store(context.Background(), orderPlaced{OrderID: "o-20"}, []PublicationTargetIdentifier{target})
	require.NoError(t, err)

	rep := &recordingRepublisher{}
	sup := NewSupervisor(SupervisorConfig{RepublishOnRestart: true}, registry, rep, nil)

	require.NoError(t, sup.Start(context.Background()))
	assert.Equal(t, 1, rep.count())
}

func TestSupervisorSkipsResubmissionSilentlyWhenLockUnavailable(t *testing.T) {
	store := NewMemStore()
	registry := NewRegistry(store, nil)
	target, err := NewPublicationTargetIdentifier("shipping.Listener")
	require.NoError(t, err)
	_, err = registry.Store(context.Background(), orderPlaced{OrderID: "o-21"}, []PublicationTargetIdentifier{target})
	require.NoError(t, err)

	rep := &recordingRepublisher{}
	sup := NewSupervisor(SupervisorConfig{RepublishOnRestart: true}, registry, rep, alwaysLockedLock{})

	require.NoError(t, sup.Start(context.Background()))
	assert.Equal(t, 0, rep.count(), "lock-unavailable must skip the pass without error")
}

func TestSupervisorResubmitsUnderAcquiredLock(t *testing.T) {
	store := NewMemStore()
	registry := NewRegistry(store, nil)
	target, err := NewPublicationTargetIdentifier("shipping.Listener")
	require.NoError(t, err)
	_, err = registry.Store(context.Background(), orderPlaced{OrderID: "o-22"}, []PublicationTargetIdentifier{target})
	require.NoError(t, err)

	rep := &recordingRepublisher{}
	lock := &passThroughLock{}
	sup := NewSupervisor(SupervisorConfig{RepublishOnRestart: true}, registry, rep, lock)

	require.NoError(t, sup.Start(context.Background()))
	assert.Equal(t, 1, lock.calls)
	assert.Equal(t, 1, rep.count())
}

func TestSupervisorStalenessLoopMarksStalePublications(t *testing.T) {
	store := NewMemStore()
	registry := NewRegistry(store, nil)
	target, err := NewPublicationTargetIdentifier("shipping.Listener")
	require.NoError(t, err)
	_, err = registry.Store(context.Background(), orderPlaced{OrderID: "o-23"}, []PublicationTargetIdentifier{target})
	require.NoError(t, err)

	sup := NewSupervisor(SupervisorConfig{
		StalenessMonitorEnabled: true,
		CheckInterval:           5 * time.Millisecond,
		StalenessThreshold:      time.Millisecond,
	}, registry, &recordingRepublisher{}, nil)

	require.NoError(t, sup.Start(context.Background()))

	require.Eventually(t, func() bool {
		incomplete, err := store.FindIncomplete(context.Background())
		return err == nil && len(incomplete) == 1 && incomplete[0].Status == StatusFailed
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sup.Stop(ctx))
}

func TestSupervisorStartWithNoLoopsEnabledReturnsImmediately(t *testing.T) {
	store := NewMemStore()
	registry := NewRegistry(store, nil)
	sup := NewSupervisor(SupervisorConfig{}, registry, &recordingRepublisher{}, nil)

	require.NoError(t, sup.Start(context.Background()))
	require.NoError(t, sup.Stop(context.Background()))
}
