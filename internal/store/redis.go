package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSlot implements Slot on a single Redis string key.
type RedisSlot struct {
	client *redis.Client
	key    string
}

// NewRedisSlot connects to addr and checks the connection.
func NewRedisSlot(ctx context.Context, addr, key string) (*RedisSlot, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address is empty")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return &RedisSlot{client: client, key: key}, nil
}

// Load returns the stored watchlist.
func (s *RedisSlot) Load(ctx context.Context) ([]byte, bool, error) {
	b, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Save replaces the stored watchlist. The key never expires.
func (s *RedisSlot) Save(ctx context.Context, data []byte) error {
	return s.client.Set(ctx, s.key, data, 0).Err()
}

// Close closes the client.
func (s *RedisSlot) Close() error {
	return s.client.Close()
}
