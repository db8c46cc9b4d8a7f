package runlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// RedisStore keeps each thread's log as a Redis list (RPUSH/LRANGE).
type RedisStore struct {
	client backend.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a RedisStore. A positive ttl expires a thread's
// log that long after its last append.
func NewRedisStore(client backend.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "contentflow:runlog:"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// Append implements Store.
func (r *RedisStore) Append(ctx context.Context, entry NodeRunLog) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal run log: %w", err)
	}
	key := r.prefix + entry.ThreadID
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append run log to redis: %w", err)
	}
	return nil
}

// List implements Store.
func (r *RedisStore) List(ctx context.Context, threadID string, filter Filter) ([]NodeRunLog, error) {
	vals, err := r.client.LRange(ctx, r.prefix+threadID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read run log from redis: %w", err)
	}
	out := make([]NodeRunLog, 0, len(vals))
	for _, v := range vals {
		var entry NodeRunLog
		if err := json.Unmarshal([]byte(v), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run log: %w", err)
		}
		if filter.matches(entry) {
			out = append(out, entry)
		}
	}
	return out, nil
}
