package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisRecorder keeps history in a Redis list, newest at the head.
type RedisRecorder struct {
	client *redis.Client
	key    string
	limit  int
}

// NewRedisRecorder connects to redisURL and verifies the connection.
func NewRedisRecorder(ctx context.Context, redisURL, key string, limit int) (*RedisRecorder, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisRecorderWithClient(client, key, limit), nil
}

// NewRedisRecorderWithClient wraps an existing client.
func NewRedisRecorderWithClient(client *redis.Client, key string, limit int) *RedisRecorder {
	if key == "" {
		key = "magpie:history"
	}
	return &RedisRecorder{client: client, key: key, limit: normalizeLimit(limit)}
}

// Record pushes r and trims the list inside one MULTI/EXEC block.
func (r *RedisRecorder) Record(ctx context.Context, rec Record) error {
	rec, err := normalize(rec)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode history record: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, r.key, payload)
		pipe.LTrim(ctx, r.key, 0, int64(r.limit-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("push history record: %w", err)
	}
	return nil
}

// List returns records newest first.
func (r *RedisRecorder) List(ctx context.Context) ([]Record, error) {
	values, err := r.client.LRange(ctx, r.key, 0, int64(r.limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	records := make([]Record, 0, len(values))
	for _, value := range values {
		var rec Record
		if err := json.Unmarshal([]byte(value), &rec); err != nil {
			return nil, fmt.Errorf("decode history record: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Clear deletes the list.
func (r *RedisRecorder) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (r *RedisRecorder) Close() error {
	return r.client.Close()
}
