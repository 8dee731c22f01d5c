package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrScript increments and starts the expiry on first use in one round trip
// so concurrent callers across processes never see a key without a ttl.
var incrScript = redis.NewScript(`
local v = redis.call('INCR', KEYS[1])
if v == 1 and tonumber(ARGV[1]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {v, redis.call('PTTL', KEYS[1])}
`)

type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

func pttl(ms int64) time.Duration {
	if ms < 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	res, err := incrScript.Run(ctx, s.client, []string{s.key(key)}, ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("redis incr %s: unexpected reply %v", key, res)
	}
	return res[0], pttl(res[1]), nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (int64, time.Duration, error) {
	pipe := s.client.Pipeline()
	getCmd := pipe.Get(ctx, s.key(key))
	ttlCmd := pipe.PTTL(ctx, s.key(key))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, 0, fmt.Errorf("redis get %s: %w", key, err)
	}

	value, err := getCmd.Int64()
	if errors.Is(err, redis.Nil) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("redis get %s: %w", key, err)
	}
	ttl, _ := ttlCmd.Result()
	if ttl < 0 {
		ttl = 0
	}
	return value, ttl, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value int64, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
