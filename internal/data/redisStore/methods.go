package redisStore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

func (s *Store) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return s.client.Set(ctx, key, value, expiration).Err()
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	return s.client.Get(ctx, key).Result()
}

func (s *Store) Del(ctx context.Context, keys ...string) error {
	return s.client.Del(ctx, keys...).Err()
}

func (s *Store) IsNil(err error) bool {
	return errors.Is(err, redis.Nil)
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	count, err := s.client.Exists(ctx, key).Result()
	return count > 0, err
}

// ScanKeys returns every key matching pattern, walking the keyspace with SCAN.
func (s *Store) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

func (s *Store) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, value, expiration).Result()
}

func (s *Store) RunScript(ctx context.Context, script *redis.Script, keys []string, args ...interface{}) (interface{}, error) {
	return script.Run(ctx, s.client, keys, args...).Result()
}

// Lists are used as FIFO queues: push on the left, take from the right.

func (s *Store) ListPush(ctx context.Context, key string, value interface{}) error {
	return s.client.LPush(ctx, key, value).Err()
}

// ListBlockingMove atomically takes the oldest entry of src and parks it on dst.
func (s *Store) ListBlockingMove(ctx context.Context, src string, dst string, timeout time.Duration) (string, error) {
	return s.client.BLMove(ctx, src, dst, "RIGHT", "LEFT", timeout).Result()
}

// ListMoveBack returns the oldest entry of src to the consuming end of dst.
func (s *Store) ListMoveBack(ctx context.Context, src string, dst string) (string, error) {
	return s.client.LMove(ctx, src, dst, "RIGHT", "RIGHT").Result()
}

func (s *Store) ListRemove(ctx context.Context, key string, value interface{}) (int64, error) {
	return s.client.LRem(ctx, key, 1, value).Result()
}

func (s *Store) ListLen(ctx context.Context, key string) (int64, error) {
	return s.client.LLen(ctx, key).Result()
}
