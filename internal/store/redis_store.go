// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings for the redis history backend.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	MaxRecords int
}

// RedisStore keeps each job's history in a capped list, newest at the head.
type RedisStore struct {
	client *redis.Client
	max    int
}

// OpenRedisStore connects and pings the server.
func OpenRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("history store: redis connection failed: %w", err)
	}
	return NewRedisStore(client, cfg.MaxRecords), nil
}

// NewRedisStore wraps an existing client. max <= 0 keeps every record.
func NewRedisStore(client *redis.Client, max int) *RedisStore {
	return &RedisStore{client: client, max: max}
}

func redisKey(jobID string) string {
	return "vidsync:history:" + jobID
}

// Append implements Store.
func (s *RedisStore) Append(ctx context.Context, rec Record) error {
	buf, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("history store: encode: %w", err)
	}
	key := redisKey(rec.JobID)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, buf)
	if s.max > 0 {
		pipe.LTrim(ctx, key, 0, int64(s.max-1))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("history store: redis append: %w", err)
	}
	return nil
}

// History implements Store.
func (s *RedisStore) History(ctx context.Context, jobID string, limit int) ([]Record, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	vals, err := s.client.LRange(ctx, redisKey(jobID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("history store: redis read: %w", err)
	}
	out := make([]Record, 0, len(vals))
	for _, v := range vals {
		var rec Record
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return nil, fmt.Errorf("history store: decode: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Close implements Store.
func (s *RedisStore) Close() error { return s.client.Close() }
