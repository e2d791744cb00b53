package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisTimeout = 500 * time.Millisecond

// RedisConfig describes the shared cache endpoint. Zero PoolSize keeps the
// go-redis default; zero Timeout uses 500ms for dial, read and write.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	Timeout  time.Duration
}

func (c RedisConfig) options() *redis.Options {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultRedisTimeout
	}
	return &redis.Options{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}
}

// NewRedisClient opens a traced client and pings it once. A cache that is
// configured but unreachable at startup is an error.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	opts := cfg.options()
	client := redis.NewClient(opts)
	client.AddHook(TracingHook{})

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout+opts.ReadTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}
