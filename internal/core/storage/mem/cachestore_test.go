package mem

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type cacheMemStorageTestSuit struct {
	suite.Suite
	keys            []string
	now             time.Time
	cacheMemStorage *CacheMemStorage
}

func (suite *cacheMemStorageTestSuit) SetupSuite() {
	suite.keys = []string{"asn:ip:1.1.1.1", "asn:prefixes:13335", "asn:asn:13335"}
}

func (suite *cacheMemStorageTestSuit) SetupTest() {
	suite.now = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	storage := NewCacheMemStorage(100, time.Hour)
	storage.now = func() time.Time { return suite.now }
	for _, key := range suite.keys {
		storage.entries.Add(key, cacheEntry{value: []byte(key)})
	}
	suite.cacheMemStorage = storage
}

func (suite *cacheMemStorageTestSuit) TestSet() {
	storageConsumers := 10
	wg := sync.WaitGroup{}

	for i := 0; i < storageConsumers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := fmt.Sprint("asn:prefixes:", i)
			err := suite.cacheMemStorage.Set(context.Background(), key, []byte(key), time.Minute)
			require.NoError(suite.T(), err)
		}()
	}

	wg.Wait()
	require.Equal(suite.T(), len(suite.keys)+storageConsumers, suite.cacheMemStorage.Len())
}

func (suite *cacheMemStorageTestSuit) TestGet() {
	wg := sync.WaitGroup{}

	for _, key := range suite.keys {
		key := key
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, found, err := suite.cacheMemStorage.Get(context.Background(), key)
			require.NoError(suite.T(), err)
			require.True(suite.T(), found)
			require.Equal(suite.T(), []byte(key), value)
		}()
	}

	wg.Wait()

	value, found, err := suite.cacheMemStorage.Get(context.Background(), "asn:asn:15169")
	require.NoError(suite.T(), err)
	require.False(suite.T(), found)
	require.Nil(suite.T(), value)
}

func (suite *cacheMemStorageTestSuit) TestExpiry() {
	ctx := context.Background()
	require.NoError(suite.T(), suite.cacheMemStorage.Set(ctx, "short", []byte("v"), time.Minute))

	_, found, err := suite.cacheMemStorage.Get(ctx, "short")
	require.NoError(suite.T(), err)
	require.True(suite.T(), found)

	suite.now = suite.now.Add(time.Minute)
	_, found, err = suite.cacheMemStorage.Get(ctx, "short")
	require.NoError(suite.T(), err)
	require.False(suite.T(), found)
}

func (suite *cacheMemStorageTestSuit) TestDelete() {
	require.NoError(suite.T(), suite.cacheMemStorage.Delete(context.Background(), suite.keys[0], suite.keys[1], "missing"))
	require.Equal(suite.T(), len(suite.keys)-2, suite.cacheMemStorage.Len())

	_, found, err := suite.cacheMemStorage.Get(context.Background(), suite.keys[0])
	require.NoError(suite.T(), err)
	require.False(suite.T(), found)
}

func TestCacheMemStorage(t *testing.T) {
	suite.Run(t, new(cacheMemStorageTestSuit))
}

func TestCacheMemStorage_SizeBound(t *testing.T) {
	storage := NewCacheMemStorage(2, time.Hour)
	ctx := context.Background()
	require.NoError(t, storage.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, storage.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, storage.Set(ctx, "c", []byte("3"), 0))

	require.Equal(t, 2, storage.Len())
	_, found, _ := storage.Get(ctx, "a")
	require.False(t, found)
	value, found, _ := storage.Get(ctx, "c")
	require.True(t, found)
	require.Equal(t, []byte("3"), value)
}
