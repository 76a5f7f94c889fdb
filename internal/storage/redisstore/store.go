// Package redisstore implements the persistent result cache tier on Redis.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bobmcallan/screener/internal/common"
	"github.com/bobmcallan/screener/internal/interfaces"
)

const scanCount = 200

// Store implements interfaces.CacheBackend on a Redis client.
type Store struct {
	client *redis.Client
	logger *common.Logger
}

// NewStore creates a Store with short socket timeouts so an unreachable
// server degrades quickly instead of stalling requests.
func NewStore(cfg common.RedisConfig, logger *common.Logger) *Store {
	timeout := cfg.GetDialTimeout()
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		MaxRetries:   1,
	})
	return NewStoreWithClient(client, logger)
}

// NewStoreWithClient wraps an existing client.
func NewStoreWithClient(client *redis.Client, logger *common.Logger) *Store {
	return &Store{client: client, logger: logger}
}

func (s *Store) Name() string {
	return "redis"
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

func (s *Store) SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// KeysMatching walks the keyspace with SCAN rather than KEYS.
func (s *Store) KeysMatching(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan %s: %w", pattern, err)
	}
	return keys, nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	s.logger.Debug().Int("keys", len(keys)).Msg("Redis keys deleted")
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

var _ interfaces.CacheBackend = (*Store)(nil)
