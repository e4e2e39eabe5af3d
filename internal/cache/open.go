package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Backend   string
	Capacity  int
	BadgerDir string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	RedisInstance string
	RedisTTL      time.Duration
}

// Open builds the configured backend. For redis the connection is verified
// with a short ping.
func Open(ctx context.Context, o Options) (Store, error) {
	switch o.Backend {
	case "", BackendMemory:
		return NewMemory(o.Capacity)
	case BackendBadger:
		return OpenBadger(o.BadgerDir, o.Capacity)
	case BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     o.RedisAddr,
			Password: o.RedisPassword,
			DB:       o.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		r := NewRedis(rdb,
			WithRedisPrefix(o.RedisPrefix),
			WithRedisInstance(o.RedisInstance),
			WithRedisTTL(o.RedisTTL),
			WithRedisCapacity(o.Capacity),
		)
		return &ownedRedis{Redis: r, client: rdb}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, o.Backend)
	}
}

// ownedRedis closes the client Open created.
type ownedRedis struct {
	*Redis
	client *redis.Client
}

func (o *ownedRedis) Close() error { return o.client.Close() }
