// internal/common/kvstore/redis.go
package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps strings under "<prefix>:<namespace>:<key>" and lists
// under "<prefix>:<namespace>:list:<key>". Entries never expire.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) stringKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, namespace, key)
}

func (r *RedisStore) listKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s:list:%s", r.prefix, namespace, key)
}

func (r *RedisStore) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, r.stringKey(namespace, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s/%s: %w", namespace, key, err)
	}
	return val, true, nil
}

func (r *RedisStore) Set(ctx context.Context, namespace, key, value string) error {
	if err := r.client.Set(ctx, r.stringKey(namespace, key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (r *RedisStore) GetList(ctx context.Context, namespace, key string) ([]string, error) {
	vals, err := r.client.LRange(ctx, r.listKey(namespace, key), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis lrange %s/%s: %w", namespace, key, err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	return vals, nil
}

// SetList replaces the whole list atomically.
func (r *RedisStore) SetList(ctx context.Context, namespace, key string, values []string) error {
	k := r.listKey(namespace, key)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		if len(values) > 0 {
			args := make([]interface{}, len(values))
			for i, v := range values {
				args[i] = v
			}
			pipe.RPush(ctx, k, args...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set list %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Sync checks the server is still reachable. Writes are already durable on
// the server side once acknowledged.
func (r *RedisStore) Sync(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis sync: %w", err)
	}
	return nil
}
