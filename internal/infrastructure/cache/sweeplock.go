package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/orris-inc/paygate/internal/application/payment/usecases"
	"github.com/orris-inc/paygate/internal/shared/logger"
)

const (
	// SweepLockKey guards the recovery sweep across instances.
	SweepLockKey = "paygate:lock:recovery_sweep"
	// DefaultSweepLockTTL outlives any sane sweep; a crashed holder frees it on expiry.
	DefaultSweepLockTTL = 10 * time.Minute
)

// releaseScript deletes the key only while it still holds our token, so a
// holder whose lock expired cannot release the next holder's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisSweepLock is a SetNX lock with an owner token.
type RedisSweepLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger logger.Interface
}

var _ usecases.SweepLocker = (*RedisSweepLock)(nil)

func NewRedisSweepLock(client *redis.Client, key string, ttl time.Duration, logger logger.Interface) *RedisSweepLock {
	if key == "" {
		key = SweepLockKey
	}
	if ttl <= 0 {
		ttl = DefaultSweepLockTTL
	}
	return &RedisSweepLock{client: client, key: key, ttl: ttl, logger: logger}
}

// Acquire returns ok=false when another holder owns the lock.
func (l *RedisSweepLock) Acquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()

	// SetNX is atomic: only sets if key doesn't exist
	acquired, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire sweep lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}

	release := func() {
		// The sweep's own context may already be done.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := releaseScript.Run(releaseCtx, l.client, []string{l.key}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			l.logger.Warnw("failed to release sweep lock, it will expire", "key", l.key, "error", err)
		}
	}
	return release, true, nil
}
