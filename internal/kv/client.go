// Package kv wraps a shared Redis-compatible key-value store behind the
// narrow surface the rate limiter and request queue need: atomic script
// execution, list/hash/string primitives with TTL, and blocking pops. It
// exists so callers depend on this interface instead of *redis.Client
// directly.
package kv

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client is the subset of Redis operations the admission pipeline needs.
type Client interface {
	// RunScript executes a Lua script atomically against keys/args and
	// decodes its return value. Scripts are the only way this interface
	// permits a read-then-write; a bare Get-then-Set is not exposed.
	RunScript(ctx context.Context, script *redis.Script, keys []string, args ...any) (any, error)

	LPush(ctx context.Context, key string, value string) error
	RPush(ctx context.Context, key string, value string) error
	LLen(ctx context.Context, key string) (int64, error)
	BLPop(ctx context.Context, timeout time.Duration, key string) (string, error)

	HSet(ctx context.Context, key, field, value string) error
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HDel(ctx context.Context, key, field string) error
	HLen(ctx context.Context, key string) (int64, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)

	Get(ctx context.Context, key string) (string, bool, error)
	SetEX(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error

	Ping(ctx context.Context) error
	Close() error
}

// RedisClient is the Client implementation backed by go-redis.
type RedisClient struct {
	rdb *redis.Client
}

// New wraps an existing *redis.Client.
func New(rdb *redis.Client) *RedisClient {
	return &RedisClient{rdb: rdb}
}

// NewFromURL parses a redis:// URL and dials it, capping the pool at
// maxConnections (0 leaves go-redis's default).
func NewFromURL(url string, maxConnections int) (*RedisClient, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if maxConnections > 0 {
		opts.PoolSize = maxConnections
	}
	return &RedisClient{rdb: redis.NewClient(opts)}, nil
}

func (c *RedisClient) RunScript(ctx context.Context, script *redis.Script, keys []string, args ...any) (any, error) {
	return script.Run(ctx, c.rdb, keys, args...).Result()
}

func (c *RedisClient) LPush(ctx context.Context, key string, value string) error {
	return c.rdb.LPush(ctx, key, value).Err()
}

func (c *RedisClient) RPush(ctx context.Context, key string, value string) error {
	return c.rdb.RPush(ctx, key, value).Err()
}

func (c *RedisClient) LLen(ctx context.Context, key string) (int64, error) {
	return c.rdb.LLen(ctx, key).Result()
}

// BLPop blocks up to timeout for a left element on key. Returns ("", nil)
// on timeout, not an error.
func (c *RedisClient) BLPop(ctx context.Context, timeout time.Duration, key string) (string, error) {
	result, err := c.rdb.BLPop(ctx, timeout, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	// BLPOP returns [key, value].
	if len(result) < 2 {
		return "", nil
	}
	return result[1], nil
}

func (c *RedisClient) HSet(ctx context.Context, key, field, value string) error {
	return c.rdb.HSet(ctx, key, field, value).Err()
}

func (c *RedisClient) HGet(ctx context.Context, key, field string) (string, bool, error) {
	v, err := c.rdb.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *RedisClient) HDel(ctx context.Context, key, field string) error {
	return c.rdb.HDel(ctx, key, field).Err()
}

func (c *RedisClient) HLen(ctx context.Context, key string) (int64, error) {
	return c.rdb.HLen(ctx, key).Result()
}

func (c *RedisClient) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.rdb.HGetAll(ctx, key).Result()
}

// HIncrBy atomically increments field by delta and returns the new value.
func (c *RedisClient) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	return c.rdb.HIncrBy(ctx, key, field, delta).Result()
}

func (c *RedisClient) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *RedisClient) SetEX(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// SetNX sets key only if absent, with ttl, returning whether it was set.
func (c *RedisClient) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, key, value, ttl).Result()
}

func (c *RedisClient) Del(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

func (c *RedisClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.rdb.Expire(ctx, key, ttl).Err()
}

func (c *RedisClient) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *RedisClient) Close() error {
	return c.rdb.Close()
}
