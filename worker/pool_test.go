package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsSubmittedTasks(t *testing.T) {
	pool := NewPool(&Config{MaxWorkers: 4, QueueSize: 16, TaskTimeout: time.Second})
	pool.Start()
	defer pool.Stop(context.Background())

	var ran atomic.Int64
	for i := 0; i < 10; i++ {
		err := pool.Submit(func(ctx context.Context) { ran.Add(1) })
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return ran.Load() == 10 }, time.Second, time.Millisecond)
}

func TestPoolSubmitFailsWhenQueueFull(t *testing.T) {
	pool := NewPool(&Config{MaxWorkers: 1, QueueSize: 1, TaskTimeout: time.Second})
	block := make(chan struct{})
	pool.Start()
	defer close(block)
	defer pool.Stop(context.Background())

	require.NoError(t, pool.Submit(func(ctx context.Context) { <-block }))

	var lastErr error
	for i := 0; i < 5; i++ {
		if err := pool.Submit(func(ctx context.Context) {}); err != nil {
			lastErr = err
			break
		}
	}
	assert.ErrorIs(t, lastErr, ErrQueueFull)
}

func TestPoolTaskTimeoutCountsAsFailed(t *testing.T) {
	pool := NewPool(&Config{MaxWorkers: 1, QueueSize: 1, TaskTimeout: 10 * time.Millisecond})
	pool.Start()
	defer pool.Stop(context.Background())

	require.NoError(t, pool.Submit(func(ctx context.Context) {
		<-ctx.Done()
	}))

	require.Eventually(t, func() bool {
		return pool.GetMetrics()["failed_tasks"] >= 1
	}, time.Second, time.Millisecond)
}
