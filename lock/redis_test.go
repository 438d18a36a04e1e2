package lock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ncobase/modulith/merr"
)

// newTestClient connects to a Redis instance named by REDIS_TEST_ADDR, or
// skips the test: the lock's correctness depends on real SET NX PX and
// Lua EVAL semantics that an in-process fake would not exercise
// faithfully.
func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set, skipping Redis-backed lock test")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisLockExecutesFnWhileHeld(t *testing.T) {
	client := newTestClient(t)
	defer client.Close()
	l := NewRedisLock(client)

	var ran bool
	err := l.ExecuteLocked(context.Background(), t.Name(), time.Second, func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)
}

func TestRedisLockSecondAcquireFailsWhileHeld(t *testing.T) {
	client := newTestClient(t)
	defer client.Close()
	l := NewRedisLock(client)

	holding := make(chan struct{})
	release := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- l.ExecuteLocked(context.Background(), t.Name(), 2*time.Second, func(ctx context.Context) error {
			close(holding)
			<-release
			return nil
		})
	}()

	<-holding
	err := l.ExecuteLocked(context.Background(), t.Name(), 100*time.Millisecond, func(ctx context.Context) error {
		t.Fatal("should not acquire lock already held")
		return nil
	})
	require.ErrorIs(t, err, merr.ErrLockUnavailable)

	close(release)
	require.NoError(t, <-errCh)
}
