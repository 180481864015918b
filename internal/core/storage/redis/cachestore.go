package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

var (
	errGetCached    = "failed to get cached value"
	errSetCached    = "failed to cache value"
	errDeleteCached = "failed to delete cached values"
)

// CacheRedisStorage keeps cache entries in Redis so that several service
// instances share provider results.
type CacheRedisStorage struct {
	client goredis.UniversalClient
}

func NewCacheRedisStorage(client goredis.UniversalClient) *CacheRedisStorage {
	return &CacheRedisStorage{client: client}
}

// Dial connects to addr and verifies the connection with PING.
func Dial(ctx context.Context, addr, password string, db int) (*CacheRedisStorage, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return NewCacheRedisStorage(client), nil
}

func (storage *CacheRedisStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := storage.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%s '%s': %w", errGetCached, key, err)
	}
	return value, true, nil
}

func (storage *CacheRedisStorage) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := storage.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%s '%s': %w", errSetCached, key, err)
	}
	return nil
}

func (storage *CacheRedisStorage) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := storage.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%s %v: %w", errDeleteCached, keys, err)
	}
	return nil
}

func (storage *CacheRedisStorage) Close() error {
	return storage.client.Close()
}
