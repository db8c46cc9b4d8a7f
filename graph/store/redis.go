package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	backend "github.com/redis/go-redis/v9"
)

// RedisStore implements Store[S] with one sorted set per thread.
//
// Members are encoded checkpoints scored by step, so Latest is a single
// ZREVRANGE. Put removes any member already scored at the same step before
// adding, inside a MULTI/EXEC transaction.
type RedisStore[S any] struct {
	client backend.UniversalClient
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*redisConfig)

type redisConfig struct {
	prefix string
}

// WithKeyPrefix sets the key prefix. Default: "contentflow:checkpoint:".
func WithKeyPrefix(prefix string) RedisOption {
	return func(c *redisConfig) {
		c.prefix = prefix
	}
}

// NewRedisStore creates a checkpoint store on an existing Redis client.
func NewRedisStore[S any](client backend.UniversalClient, opts ...RedisOption) *RedisStore[S] {
	cfg := redisConfig{prefix: "contentflow:checkpoint:"}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &RedisStore[S]{client: client, prefix: cfg.prefix}
}

func (r *RedisStore[S]) key(threadID string) string {
	return r.prefix + threadID
}

// Put implements Store.
func (r *RedisStore[S]) Put(ctx context.Context, cp Checkpoint[S]) error {
	if err := validate(cp); err != nil {
		return err
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	step := strconv.Itoa(cp.Step)
	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, r.key(cp.ThreadID), step, step)
	pipe.ZAdd(ctx, r.key(cp.ThreadID), backend.Z{
		Score:  float64(cp.Step),
		Member: string(data),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save checkpoint to redis: %w", err)
	}
	return nil
}

// Latest implements Store.
func (r *RedisStore[S]) Latest(ctx context.Context, threadID string) (Checkpoint[S], error) {
	var zero Checkpoint[S]
	vals, err := r.client.ZRevRange(ctx, r.key(threadID), 0, 0).Result()
	if err != nil {
		return zero, fmt.Errorf("failed to read checkpoint from redis: %w", err)
	}
	if len(vals) == 0 {
		return zero, ErrNotFound
	}
	return decodeCheckpoint[S]([]byte(vals[0]))
}

// History implements Store.
func (r *RedisStore[S]) History(ctx context.Context, threadID string) ([]Checkpoint[S], error) {
	vals, err := r.client.ZRange(ctx, r.key(threadID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint history from redis: %w", err)
	}
	out := make([]Checkpoint[S], 0, len(vals))
	for _, v := range vals {
		cp, err := decodeCheckpoint[S]([]byte(v))
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}
