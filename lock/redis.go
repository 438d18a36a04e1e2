// Package lock provides the Redis-backed DistributedLock the Staleness/
// Restart Supervisor uses to ensure only one node in a cluster performs
// restart resubmission, grounded in the teacher's data/redis client setup.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ncobase/modulith/merr"
)

// RedisLock implements event.DistributedLock with Redis's SET NX PX
// pattern: the lock key is only set if absent, with an expiry matching
// the caller's timeout, and released with a token check so a lock holder
// can never release a lock it no longer owns (e.g. after its own timeout
// already expired it and someone else acquired it).
type RedisLock struct {
	client *redis.Client
}

// NewRedisLock wraps an existing *redis.Client.
func NewRedisLock(client *redis.Client) *RedisLock {
	return &RedisLock{client: client}
}

// releaseScript deletes key only if its value still matches token,
// avoiding a lock holder releasing a lock that expired and was
// reacquired by another node in the meantime.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// ExecuteLocked acquires name via SET NX PX with the given timeout as
// both the acquisition deadline and the key's expiry, runs fn while held,
// and releases it afterward. Returns merr.ErrLockUnavailable if the lock
// is already held by another node.
func (l *RedisLock) ExecuteLocked(ctx context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	token := uuid.NewString()
	key := "modulith:lock:" + name

	acquireCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ok, err := l.client.SetNX(acquireCtx, key, token, timeout).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return merr.ErrLockUnavailable
		}
		return merr.NewStorageError("redis lock acquire", err)
	}
	if !ok {
		return merr.ErrLockUnavailable
	}

	defer func() {
		releaseCtx, releaseCancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer releaseCancel()
		l.client.Eval(releaseCtx, releaseScript, []string{key}, token)
	}()

	return fn(ctx)
}
