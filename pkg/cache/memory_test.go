package cache_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/illmade-knight/go-imageloader/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInMemoryLRUStore_Validation(t *testing.T) {
	_, err := cache.NewInMemoryLRUStore(&cache.InMemoryLRUStoreConfig{MaxEntries: 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "positive MaxEntries")
}

func TestInMemoryLRUStore_SaveAndLookup(t *testing.T) {
	ctx := context.Background()

	t.Run("Miss on an empty store", func(t *testing.T) {
		// Arrange
		store, err := cache.NewInMemoryLRUStore(nil)
		require.NoError(t, err)

		// Act
		_, err = store.Lookup(ctx, "absent")

		// Assert
		assert.ErrorIs(t, err, cache.ErrMiss)
	})

	t.Run("Save then Lookup returns the entry", func(t *testing.T) {
		// Arrange
		store, err := cache.NewInMemoryLRUStore(nil)
		require.NoError(t, err)
		saved := &cache.Entry{Data: []byte("image-bytes"), ContentType: "image/png", FetchedAt: time.Now()}

		// Act
		require.NoError(t, store.Save(ctx, "key-1", saved))
		got, err := store.Lookup(ctx, "key-1")

		// Assert
		require.NoError(t, err)
		assert.Equal(t, saved.Data, got.Data)
		assert.Equal(t, "image/png", got.ContentType)
	})

	t.Run("Save stamps a missing freshness horizon from the default TTL", func(t *testing.T) {
		// Arrange
		store, err := cache.NewInMemoryLRUStore(&cache.InMemoryLRUStoreConfig{MaxEntries: 4, DefaultTTL: time.Hour})
		require.NoError(t, err)
		fetched := time.Now()
		entry := &cache.Entry{Data: []byte("x"), FetchedAt: fetched}

		// Act
		require.NoError(t, store.Save(ctx, "key-1", entry))
		got, err := store.Lookup(ctx, "key-1")

		// Assert
		require.NoError(t, err)
		assert.Equal(t, fetched.Add(time.Hour), got.ExpiresAt)
	})

	t.Run("Save preserves an explicit freshness horizon", func(t *testing.T) {
		// Arrange
		store, err := cache.NewInMemoryLRUStore(&cache.InMemoryLRUStoreConfig{MaxEntries: 4, DefaultTTL: time.Hour})
		require.NoError(t, err)
		expires := time.Now().Add(time.Minute)
		entry := &cache.Entry{Data: []byte("x"), ExpiresAt: expires}

		// Act
		require.NoError(t, store.Save(ctx, "key-1", entry))
		got, err := store.Lookup(ctx, "key-1")

		// Assert
		require.NoError(t, err)
		assert.Equal(t, expires, got.ExpiresAt)
	})

	t.Run("Stale entries remain servable", func(t *testing.T) {
		// Arrange: retention here is capacity, not time, so an expired entry
		// must still come back for staleness-tolerant readers.
		store, err := cache.NewInMemoryLRUStore(nil)
		require.NoError(t, err)
		entry := &cache.Entry{Data: []byte("old"), ExpiresAt: time.Now().Add(-time.Hour)}
		require.NoError(t, store.Save(ctx, "stale-key", entry))

		// Act
		got, err := store.Lookup(ctx, "stale-key")

		// Assert
		require.NoError(t, err)
		assert.False(t, got.Fresh(time.Now()))
		assert.Equal(t, []byte("old"), got.Data)
	})
}

func TestInMemoryLRUStore_Eviction(t *testing.T) {
	ctx := context.Background()

	t.Run("Oldest entry is evicted at capacity", func(t *testing.T) {
		// Arrange
		store, err := cache.NewInMemoryLRUStore(&cache.InMemoryLRUStoreConfig{MaxEntries: 2})
		require.NoError(t, err)

		// Act
		for i := 1; i <= 3; i++ {
			key := fmt.Sprintf("key-%d", i)
			require.NoError(t, store.Save(ctx, key, &cache.Entry{Data: []byte(key)}))
		}

		// Assert
		assert.Equal(t, 2, store.Len())
		_, err = store.Lookup(ctx, "key-1")
		assert.ErrorIs(t, err, cache.ErrMiss, "the coldest entry should have been evicted")
		_, err = store.Lookup(ctx, "key-3")
		assert.NoError(t, err)
	})

	t.Run("Lookup refreshes recency", func(t *testing.T) {
		// Arrange
		store, err := cache.NewInMemoryLRUStore(&cache.InMemoryLRUStoreConfig{MaxEntries: 2})
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, "key-1", &cache.Entry{Data: []byte("1")}))
		require.NoError(t, store.Save(ctx, "key-2", &cache.Entry{Data: []byte("2")}))

		// Act: touch key-1 so key-2 becomes the coldest, then overflow.
		_, err = store.Lookup(ctx, "key-1")
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, "key-3", &cache.Entry{Data: []byte("3")}))

		// Assert
		_, err = store.Lookup(ctx, "key-1")
		assert.NoError(t, err, "recently used entry should survive eviction")
		_, err = store.Lookup(ctx, "key-2")
		assert.ErrorIs(t, err, cache.ErrMiss)
	})
}

func TestInMemoryLRUStore_Remove(t *testing.T) {
	// Arrange
	ctx := context.Background()
	store, err := cache.NewInMemoryLRUStore(nil)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, "key-1", &cache.Entry{Data: []byte("1")}))

	// Act
	require.NoError(t, store.Remove(ctx, "key-1"))

	// Assert
	_, err = store.Lookup(ctx, "key-1")
	assert.ErrorIs(t, err, cache.ErrMiss)
	assert.NoError(t, store.Remove(ctx, "key-1"), "removing an absent key is not an error")
}
