// README: Redis run lock so only one instance executes a clearing cycle.
package clearing

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const runLockKey = "clearing:run_lock"

// RunLock serializes clearing cycles across API instances.
type RunLock struct {
	client *redis.Client
}

func NewRunLock(client *redis.Client) *RunLock {
	return &RunLock{client: client}
}

// Acquire attempts to take the run lock. Returns false when another
// instance holds it.
func (l *RunLock) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, runLockKey, "1", ttl).Result()
}

// Release drops the run lock.
func (l *RunLock) Release(ctx context.Context) error {
	return l.client.Del(ctx, runLockKey).Err()
}
