// Package redisstore adapts Redis to the five primitives the weight store
// needs: hash records, an ordered index per symbol, directory sets, scalar
// liveness timestamps, and atomic scripted execution with pub/sub
// notifications.
package redisstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// NewClient builds a client from a redis://, rediss:// or unix:// URL.
func NewClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opt), nil
}

// Store wraps a shared client. All methods are safe for concurrent use; the
// scripted batch execution is the only cross-process serialization point.
type Store struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error { return s.rdb.Close() }

// HSet writes named fields into the hash at key, creating it if absent.
func (s *Store) HSet(ctx context.Context, key string, fields map[string]any) error {
	return s.rdb.HSet(ctx, key, fields).Err()
}

// HGetAll returns the hash at key, or an empty map when the key is absent.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return s.rdb.HGetAll(ctx, key).Result()
}

// HGetAllMulti fetches several hashes in one pipelined round trip. The
// result is positional; absent keys yield empty maps.
func (s *Store) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.HGetAll(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	out := make([]map[string]string, len(keys))
	for i, cmd := range cmds {
		out[i] = cmd.Val()
	}
	return out, nil
}

// HMGetMulti fetches the same fields from several hashes in one pipelined
// round trip. Missing fields come back as nil.
func (s *Store) HMGetMulti(ctx context.Context, keys []string, fields ...string) ([][]any, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.SliceCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.HMGet(ctx, key, fields...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	out := make([][]any, len(keys))
	for i, cmd := range cmds {
		out[i] = cmd.Val()
	}
	return out, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	return n > 0, err
}

func (s *Store) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return s.rdb.Del(ctx, keys...).Result()
}

func (s *Store) SAdd(ctx context.Context, key string, members ...string) error {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.rdb.SAdd(ctx, key, args...).Err()
}

func (s *Store) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.rdb.SRem(ctx, key, args...).Result()
}

func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	return s.rdb.SMembers(ctx, key).Result()
}

// Get returns the scalar at key, or "" when absent.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.rdb.Set(ctx, key, value, 0).Err()
}

// ZRangeByScore returns index members with scores in [min, max], ascending.
func (s *Store) ZRangeByScore(ctx context.Context, key, min, max string) ([]string, error) {
	return s.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: min, Max: max}).Result()
}

// ZCard returns the length of the index at key.
func (s *Store) ZCard(ctx context.Context, key string) (int64, error) {
	return s.rdb.ZCard(ctx, key).Result()
}

// Eval runs a registered script with EVALSHA, falling back to EVAL on the
// first use.
func (s *Store) Eval(ctx context.Context, script *redis.Script, keys []string, args []any) (any, error) {
	return script.Run(ctx, s.rdb, keys, args...).Result()
}

// ScanKeys enumerates keys matching a glob pattern with cursored SCAN, never
// the blocking KEYS command. Reserved for wipes and cross-strategy listings;
// the publish path maintains directory sets precisely so that reads do not
// depend on pattern scans.
func (s *Store) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var (
		cursor uint64
		out    []string
	)
	for {
		batch, next, err := s.rdb.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}

// PSubscribe opens a pattern subscription on the notification channels. The
// caller owns the returned subscription and must close it.
func (s *Store) PSubscribe(ctx context.Context, pattern string) *redis.PubSub {
	return s.rdb.PSubscribe(ctx, pattern)
}
