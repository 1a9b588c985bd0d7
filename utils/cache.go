package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultCacheTTL applies when a write does not name an expiration.
	DefaultCacheTTL = 24 * time.Hour

	scanBatchSize = 1000
)

// KVStore is the key-value surface the media cache needs.
// Get reports a missing key as (nil, false, nil); errors are reserved for store failures.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, keys ...string) (int64, error)
	// TTL returns the remaining lifetime of key, or zero when it is missing or has none.
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// RedisKV implements KVStore on top of a go-redis client.
type RedisKV struct {
	rdb redis.UniversalClient
}

// NewRedisKV wraps an existing client.
func NewRedisKV(rdb redis.UniversalClient) *RedisKV {
	return &RedisKV{rdb: rdb}
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return b, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if err := r.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Keys walks the whole keyspace with SCAN until the cursor wraps to 0 or ctx is done.
// SCAN may repeat keys, so results are deduplicated.
func (r *RedisKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	var cursor uint64
	for {
		if err := ctx.Err(); err != nil {
			return out, fmt.Errorf("redis scan %s*: %w", prefix, err)
		}
		keys, next, err := r.rdb.Scan(ctx, cursor, prefix+"*", scanBatchSize).Result()
		if err != nil {
			return out, fmt.Errorf("redis scan %s*: %w", prefix, err)
		}
		for _, k := range keys {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
		cursor = next
		if cursor == 0 {
			return out, nil
		}
	}
}

// Delete removes keys with one pipelined DEL per key so it also works across cluster slots.
func (r *RedisKV) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	pipe := r.rdb.Pipeline()
	cmds := make([]*redis.IntCmd, 0, len(keys))
	for _, k := range keys {
		cmds = append(cmds, pipe.Del(ctx, k))
	}
	_, err := pipe.Exec(ctx)
	var deleted int64
	for _, cmd := range cmds {
		deleted += cmd.Val()
	}
	if err != nil {
		return deleted, fmt.Errorf("redis del: %w", err)
	}
	return deleted, nil
}

func (r *RedisKV) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ttl %s: %w", key, err)
	}
	// -1 (no expiry) and -2 (missing) come back as raw negative durations
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}
