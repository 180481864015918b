package mem

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const defaultCacheSize = 10_000

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// CacheMemStorage is a size-bounded in-process cache. maxTTL bounds every
// entry; Set may ask for a shorter ttl per key.
type CacheMemStorage struct {
	entries *expirable.LRU[string, cacheEntry]
	maxTTL  time.Duration
	now     func() time.Time
}

func NewCacheMemStorage(size int, maxTTL time.Duration) *CacheMemStorage {
	if size <= 0 {
		size = defaultCacheSize
	}
	return &CacheMemStorage{
		entries: expirable.NewLRU[string, cacheEntry](size, nil, maxTTL),
		maxTTL:  maxTTL,
		now:     time.Now,
	}
}

func (storage *CacheMemStorage) Get(_ context.Context, key string) ([]byte, bool, error) {
	entry, found := storage.entries.Get(key)
	if !found {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !storage.now().Before(entry.expiresAt) {
		storage.entries.Remove(key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (storage *CacheMemStorage) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := cacheEntry{value: value}
	if ttl > 0 && (storage.maxTTL <= 0 || ttl < storage.maxTTL) {
		entry.expiresAt = storage.now().Add(ttl)
	}
	storage.entries.Add(key, entry)
	return nil
}

func (storage *CacheMemStorage) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		storage.entries.Remove(key)
	}
	return nil
}

func (storage *CacheMemStorage) Len() int {
	return storage.entries.Len()
}
