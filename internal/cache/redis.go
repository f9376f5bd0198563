package cache

import (
	"context"
	"time"

	"github.com/yourorg/listing-api/internal/redisx"
)

const redisPrefix = "shard:"

// RedisStore keeps entries in Redis under "shard:<domain>:<location>:<category>".
type RedisStore struct {
	rdb *redisx.Client
	ttl time.Duration
}

// NewRedisStore wraps c; ttl 0 keeps entries until explicitly cleared.
func NewRedisStore(c *redisx.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: c, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, key Key) (Entry, error) {
	b, err := s.rdb.Get(ctx, redisPrefix+key.String())
	if redisx.IsNil(err) {
		return Entry{}, ErrMiss
	}
	if err != nil {
		return Entry{}, unavailable("redis get", err)
	}
	return decodeEntry(b)
}

func (s *RedisStore) Put(ctx context.Context, key Key, e Entry) error {
	b, err := encodeEntry(e)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, redisPrefix+key.String(), b, s.ttl); err != nil {
		return unavailable("redis set", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	if err := s.rdb.Del(ctx, redisPrefix+key.String()); err != nil {
		return unavailable("redis del", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, domain string) error {
	pattern := redisPrefix + "*"
	if domain != "" {
		pattern = redisPrefix + domain + ":*"
	}
	if _, err := s.rdb.DelMatch(ctx, pattern); err != nil {
		return unavailable("redis clear", err)
	}
	return nil
}
