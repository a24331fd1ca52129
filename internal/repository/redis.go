package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces the lock keys
const KeyPrefix = "mantis2gitlab:lock:"

// releaseScript deletes the key only when it still holds our token, so an
// expired lock taken over by another run is left alone
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// RedisLock implements RunLock with SET NX PX
type RedisLock struct {
	client   *redis.Client
	newToken func() string
}

// NewRedisLock creates a new Redis backed run lock
func NewRedisLock(client *redis.Client) *RedisLock {
	return &RedisLock{
		client:   client,
		newToken: func() string { return uuid.New().String() },
	}
}

// LockKey returns the Redis key guarding project
func LockKey(project string) string {
	return KeyPrefix + project
}

// Acquire takes the lock for project. ErrLockHeld means another run owns it.
func (r *RedisLock) Acquire(ctx context.Context, project string, ttl time.Duration) (string, error) {
	key := LockKey(project)
	token := r.newToken()

	slog.Debug("Acquiring run lock", "key", key, "ttl", ttl)

	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		slog.Error("Failed to acquire run lock", "error", err, "key", key)
		return "", fmt.Errorf("error acquiring lock %s: %w", key, err)
	}

	if !ok {
		holder, err := r.client.Get(ctx, key).Result()
		if err != nil && err != redis.Nil {
			slog.Debug("Could not read lock holder", "error", err, "key", key)
		}
		slog.Warn("Run lock already held", "key", key, "holder", holder)
		return "", fmt.Errorf("%w: %s", ErrLockHeld, project)
	}

	slog.Info("Run lock acquired", "key", key, "token", token)
	return token, nil
}

// Release drops the lock if token still owns it
func (r *RedisLock) Release(ctx context.Context, project, token string) error {
	key := LockKey(project)

	deleted, err := r.client.Eval(ctx, releaseScript, []string{key}, token).Int64()
	if err != nil {
		slog.Error("Failed to release run lock", "error", err, "key", key)
		return fmt.Errorf("error releasing lock %s: %w", key, err)
	}

	if deleted == 0 {
		slog.Warn("Run lock expired or taken over before release", "key", key)
		return nil
	}

	slog.Debug("Run lock released", "key", key)
	return nil
}
