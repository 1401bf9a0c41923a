package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/i474232898/agroclimate/internal/climate"
)

const redisKeyPrefix = "agroclimate:series:"

// RedisStore keeps series as JSON values with a TTL, so expiry is handled by
// Redis itself.
type RedisStore struct {
	redis  *redis.Client
	maxAge time.Duration
}

func NewRedisStore(client *redis.Client, maxAge time.Duration) *RedisStore {
	return &RedisStore{redis: client, maxAge: maxAge}
}

func (s *RedisStore) SaveSeries(ctx context.Context, key string, records []climate.DailyRecord) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal series: %w", err)
	}
	if err := s.redis.Set(ctx, redisKeyPrefix+key, data, s.maxAge).Err(); err != nil {
		return fmt.Errorf("failed to save series: %w", err)
	}
	return nil
}

func (s *RedisStore) GetSeries(ctx context.Context, key string) ([]climate.DailyRecord, error) {
	data, err := s.redis.Get(ctx, redisKeyPrefix+key).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get series: %w", err)
	}

	var records []climate.DailyRecord
	if err := json.Unmarshal([]byte(data), &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal series: %w", err)
	}
	return records, nil
}

// Prune is a no-op: entries expire through their TTL.
func (s *RedisStore) Prune(_ context.Context) (int, error) {
	return 0, nil
}

// Close closes the redis client.
func (s *RedisStore) Close() error {
	return s.redis.Close()
}
