package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis stores outcomes under prefix+instance+":"+domain. The instance id
// scopes Purge: replicas with distinct ids never wipe each other's entries,
// and only replicas deliberately configured with the same id share a cache.
type Redis struct {
	rdb      redis.UniversalClient
	prefix   string
	instance string
	ttl      time.Duration
	capacity int

	mu sync.Mutex
	n  int
}

// RedisOption configures a Redis store; zero values keep the defaults.
type RedisOption func(*Redis)

func WithRedisPrefix(p string) RedisOption {
	return func(r *Redis) {
		if p != "" {
			r.prefix = p
		}
	}
}

// WithRedisInstance sets the instance id; by default each store gets a random one.
func WithRedisInstance(id string) RedisOption {
	return func(r *Redis) {
		if id != "" {
			r.instance = id
		}
	}
}

func WithRedisTTL(d time.Duration) RedisOption {
	return func(r *Redis) {
		if d > 0 {
			r.ttl = d
		}
	}
}

func WithRedisCapacity(n int) RedisOption {
	return func(r *Redis) {
		if n > 0 {
			r.capacity = n
		}
	}
}

func NewRedis(rdb redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		rdb:      rdb,
		prefix:   "avail:",
		instance: uuid.NewString(),
		ttl:      time.Hour,
		capacity: DefaultCapacity,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) namespace() string { return r.prefix + r.instance + ":" }

func (r *Redis) key(domain string) string { return r.namespace() + domain }

// pattern matches every key of this store. The namespace is escaped so glob
// metacharacters in a configured prefix match literally.
func (r *Redis) pattern() string { return globEscape(r.namespace()) + "*" }

func globEscape(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '^', '-', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (r *Redis) Get(ctx context.Context, domain string) (bool, bool, error) {
	v, err := r.rdb.Get(ctx, r.key(domain)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return byteBool(v), true, nil
}

func (r *Redis) Set(ctx context.Context, domain string, available bool) error {
	r.mu.Lock()
	full := r.n >= r.capacity
	r.mu.Unlock()
	if full {
		if err := r.Purge(ctx); err != nil {
			return err
		}
	}
	// GET returns the previous value, so only new keys count toward capacity.
	_, err := r.rdb.SetArgs(ctx, r.key(domain), boolByte(available), redis.SetArgs{TTL: r.ttl, Get: true}).Result()
	switch {
	case errors.Is(err, redis.Nil):
		r.mu.Lock()
		r.n++
		r.mu.Unlock()
		return nil
	case err != nil:
		return err
	}
	return nil
}

func (r *Redis) Purge(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, r.pattern(), 500).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	r.mu.Lock()
	r.n = 0
	r.mu.Unlock()
	return nil
}

func (r *Redis) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Close leaves the client open; its owner closes it.
func (r *Redis) Close() error { return nil }
