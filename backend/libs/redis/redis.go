package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultDialTimeout  = 5 * time.Second
	defaultReadTimeout  = 3 * time.Second
	defaultWriteTimeout = 3 * time.Second
)

// Options configures the redis client.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient returns a configured go-redis client and validates the connection with PING.
func NewRedisClient(opts Options) (*redis.Client, error) {
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		return nil, errors.New("redis: addr is empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  defaultDialTimeout,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultDialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}
