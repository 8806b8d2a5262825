package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotHeld is returned by Unlock when the lease expired or belongs to another holder
var ErrLockNotHeld = errors.New("lock not held")

const runLockPrefix = "lock:job:"

// Deletes the key only if it still holds our token, so an expired lease
// taken over by another process is left alone.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// RedisRunLock is a best-effort lease that keeps job runs in different
// processes from overlapping. A lease expires after its TTL even if the
// holder never releases it.
type RedisRunLock struct {
	client *redis.Client
}

// NewRedisRunLock creates a run lock on the given Redis connection
func NewRedisRunLock(cache *RedisCache) *RedisRunLock {
	return &RedisRunLock{client: cache.Client()}
}

// TryLock attempts to take the lease for job. It returns the holder token
// and true on success, or false when another holder has it.
func (l *RedisRunLock) TryLock(ctx context.Context, job string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, runLockPrefix+job, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire lock %s: %w", job, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Unlock releases the lease for job if token still holds it
func (l *RedisRunLock) Unlock(ctx context.Context, job string, token string) error {
	released, err := releaseScript.Run(ctx, l.client, []string{runLockPrefix + job}, token).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", job, err)
	}
	if released == 0 {
		return ErrLockNotHeld
	}
	return nil
}
