package redisstore

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultLockTTL   = 30 * time.Second
	defaultRetryWait = 25 * time.Millisecond
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a keyed lock shared by every service instance using the same redis.
type Locker struct {
	client    *redis.Client
	ttl       time.Duration
	retryWait time.Duration
	prefix    string
	logger    *zap.Logger
}

// NewLocker builds a locker. ttl bounds how long a crashed holder can block others.
func NewLocker(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Locker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locker{
		client:    client,
		ttl:       ttl,
		retryWait: defaultRetryWait,
		prefix:    "locks:",
		logger:    logger,
	}
}

// Lock acquires every key in sorted order, polling until ctx ends.
func (l *Locker) Lock(ctx context.Context, keys ...string) (func(), error) {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	token := uuid.NewString()
	held := make([]string, 0, len(sorted))
	for _, key := range sorted {
		if err := l.acquire(ctx, l.prefix+key, token); err != nil {
			l.release(held, token)
			return nil, err
		}
		held = append(held, l.prefix+key)
	}
	return func() { l.release(held, token) }, nil
}

func (l *Locker) acquire(ctx context.Context, key, token string) error {
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			return nil
		}

		timer := time.NewTimer(l.retryWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *Locker) release(keys []string, token string) {
	// the caller's context may already be done; releasing must still happen
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for i := len(keys) - 1; i >= 0; i-- {
		released, err := releaseScript.Run(ctx, l.client, []string{keys[i]}, token).Int()
		if err != nil {
			l.logger.Warn("failed to release lock, it is held until expiry",
				zap.String("key", keys[i]),
				zap.Duration("ttl", l.ttl),
				zap.Error(err),
			)
			continue
		}
		if released == 0 {
			l.logger.Warn("lock expired before release", zap.String("key", keys[i]))
		}
	}
}
