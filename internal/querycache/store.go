package querycache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "storefront:qc:"
	noEpoch          = "0"
)

// Store is a shared second-level cache for fetched payloads, so replicas can
// reuse each other's fresh results.
//
// Writes are fenced by a Generation taken before the fetch: once Delete or
// DeleteKinds has run for a key, a write carrying an older generation is
// refused.
type Store interface {
	Generation(ctx context.Context, key Key) (Generation, error)
	Get(ctx context.Context, key Key, dst any) (bool, error)
	Set(ctx context.Context, key Key, gen Generation, value any, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...Key) error
	DeleteKinds(ctx context.Context, kinds ...string) (int, error)
}

// Generation identifies the invalidation epoch a fetch started in.
type Generation struct {
	kind string
	key  string
}

func (g Generation) kindEpoch() string {
	if g.kind == "" {
		return noEpoch
	}
	return g.kind
}

func (g Generation) keyEpoch() string {
	if g.key == "" {
		return noEpoch
	}
	return g.key
}

// setIfCurrent writes KEYS[3] only while both epochs still match the caller's
// generation.
var setIfCurrent = redis.NewScript(`
local kind = redis.call('GET', KEYS[1]) or '0'
local key = redis.call('GET', KEYS[2]) or '0'
if kind ~= ARGV[1] or key ~= ARGV[2] then
	return 0
end
redis.call('SET', KEYS[3], ARGV[3], 'PX', ARGV[4])
return 1
`)

// RedisStore implements Store on Redis. Values are JSON and expire after the
// TTL given to Set. Epochs live under <prefix>epoch: and never expire.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a Redis-backed store. An empty prefix uses the
// default.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) redisKey(key Key) string {
	return s.prefix + key.Kind + ":" + key.Params
}

func (s *RedisStore) kindEpochKey(kind string) string {
	return s.prefix + "epoch:" + kind
}

func (s *RedisStore) keyEpochKey(key Key) string {
	return s.prefix + "epoch:" + key.Kind + ":" + key.Params
}

// Generation reads the current epochs of key and its kind.
func (s *RedisStore) Generation(ctx context.Context, key Key) (Generation, error) {
	vals, err := s.client.MGet(ctx, s.kindEpochKey(key.Kind), s.keyEpochKey(key)).Result()
	if err != nil {
		return Generation{}, fmt.Errorf("redis epoch %s: %w", key.Kind, err)
	}
	epoch := func(v any) string {
		if str, ok := v.(string); ok {
			return str
		}
		return noEpoch
	}
	return Generation{kind: epoch(vals[0]), key: epoch(vals[1])}, nil
}

// Get decodes the stored value for key into dst. It reports false when the
// key is absent or expired.
func (s *RedisStore) Get(ctx context.Context, key Key, dst any) (bool, error) {
	raw, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis get %s: %w", key.Kind, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key.Kind, err)
	}
	return true, nil
}

// Set stores value under key if key has not been invalidated since gen was
// read. It reports whether the value was written. A non-positive ttl stores
// nothing, since a value that is never fresh is not worth sharing.
func (s *RedisStore) Set(ctx context.Context, key Key, gen Generation, value any, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("marshal %s: %w", key.Kind, err)
	}
	ms := max(ttl.Milliseconds(), 1)
	written, err := setIfCurrent.Run(ctx, s.client,
		[]string{s.kindEpochKey(key.Kind), s.keyEpochKey(key), s.redisKey(key)},
		gen.kindEpoch(), gen.keyEpoch(), raw, ms,
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis set %s: %w", key.Kind, err)
	}
	return written == 1, nil
}

// Delete advances the epoch of each key and removes it.
func (s *RedisStore) Delete(ctx context.Context, keys ...Key) error {
	if len(keys) == 0 {
		return nil
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = s.redisKey(k)
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range keys {
			pipe.Incr(ctx, s.keyEpochKey(k))
		}
		pipe.Del(ctx, names...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// DeleteKinds advances the epoch of each kind, then removes every key of those
// kinds and returns how many were removed. Writes fenced by an older epoch
// are refused from the moment the epoch moves.
func (s *RedisStore) DeleteKinds(ctx context.Context, kinds ...string) (int, error) {
	removed := 0
	for _, kind := range kinds {
		if err := s.client.Incr(ctx, s.kindEpochKey(kind)).Err(); err != nil {
			return removed, fmt.Errorf("redis epoch %s: %w", kind, err)
		}
		var batch []string
		iter := s.client.Scan(ctx, 0, s.prefix+kind+":*", 100).Iterator()
		for iter.Next(ctx) {
			batch = append(batch, iter.Val())
			if len(batch) == 100 {
				n, err := s.client.Del(ctx, batch...).Result()
				if err != nil {
					return removed, fmt.Errorf("redis del %s: %w", kind, err)
				}
				removed += int(n)
				batch = batch[:0]
			}
		}
		if err := iter.Err(); err != nil {
			return removed, fmt.Errorf("redis scan %s: %w", kind, err)
		}
		if len(batch) > 0 {
			n, err := s.client.Del(ctx, batch...).Result()
			if err != nil {
				return removed, fmt.Errorf("redis del %s: %w", kind, err)
			}
			removed += int(n)
		}
	}
	return removed, nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
