package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// RedisRegistry shares cache handles between processes. Entries expire
// with the handle TTL.
type RedisRegistry struct {
	client backend.UniversalClient
	prefix string
}

// NewRedisRegistry creates a RedisRegistry. An empty prefix defaults to
// "contentflow:cache:".
func NewRedisRegistry(client backend.UniversalClient, prefix string) *RedisRegistry {
	if prefix == "" {
		prefix = "contentflow:cache:"
	}
	return &RedisRegistry{client: client, prefix: prefix}
}

// Get implements Registry.
func (r *RedisRegistry) Get(ctx context.Context, key string) (string, bool, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, backend.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get cache entry: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return "", false, fmt.Errorf("decode cache entry: %w", err)
	}
	return e.Name, true, nil
}

// Set implements Registry.
func (r *RedisRegistry) Set(ctx context.Context, key, name string, ttl time.Duration) error {
	data, err := json.Marshal(Entry{Key: key, Name: name, CreatedAt: time.Now().UTC(), TTL: ttl})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := r.client.Set(ctx, r.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set cache entry: %w", err)
	}
	return nil
}

// Delete implements Registry.
func (r *RedisRegistry) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete cache entry: %w", err)
	}
	return nil
}

// Clear implements Registry by deleting every key under the prefix.
func (r *RedisRegistry) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan cache entries: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis clear cache entries: %w", err)
	}
	return nil
}
