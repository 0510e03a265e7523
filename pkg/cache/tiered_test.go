package cache_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/illmade-knight/go-imageloader/pkg/cache"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockStore is a test double for the cache.Store interface.
type mockStore struct {
	LookupFunc func(ctx context.Context, key string) (*cache.Entry, error)
	SaveFunc   func(ctx context.Context, key string, entry *cache.Entry) error
	RemoveFunc func(ctx context.Context, key string) error
	CloseFunc  func() error
}

func (m *mockStore) Lookup(ctx context.Context, key string) (*cache.Entry, error) {
	if m.LookupFunc != nil {
		return m.LookupFunc(ctx, key)
	}
	return nil, cache.ErrMiss
}

func (m *mockStore) Save(ctx context.Context, key string, entry *cache.Entry) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, key, entry)
	}
	return nil
}

func (m *mockStore) Remove(ctx context.Context, key string) error {
	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, key)
	}
	return nil
}

func (m *mockStore) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

func newMemoryStore(t *testing.T) *cache.InMemoryLRUStore {
	t.Helper()
	store, err := cache.NewInMemoryLRUStore(nil)
	require.NoError(t, err)
	return store
}

func TestNewTieredStore_Validation(t *testing.T) {
	_, err := cache.NewTieredStore(nil, newMemoryStore(t), nil, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "front and a back store")
}

func TestTieredStore_Lookup(t *testing.T) {
	ctx := context.Background()

	t.Run("Front hit does not consult the back tier", func(t *testing.T) {
		// Arrange
		front := newMemoryStore(t)
		require.NoError(t, front.Save(ctx, "key-1", &cache.Entry{Data: []byte("front")}))
		var backCalls atomic.Int32
		back := &mockStore{
			LookupFunc: func(_ context.Context, _ string) (*cache.Entry, error) {
				backCalls.Add(1)
				return nil, cache.ErrMiss
			},
		}
		tiered, err := cache.NewTieredStore(nil, front, back, zerolog.Nop())
		require.NoError(t, err)

		// Act
		got, err := tiered.Lookup(ctx, "key-1")

		// Assert
		require.NoError(t, err)
		assert.Equal(t, []byte("front"), got.Data)
		assert.Equal(t, int32(0), backCalls.Load(), "back tier should not be consulted on a front hit")
	})

	t.Run("Back hit is served and promoted to the front tier", func(t *testing.T) {
		// Arrange
		front := newMemoryStore(t)
		back := &mockStore{
			LookupFunc: func(_ context.Context, key string) (*cache.Entry, error) {
				if key == "key-1" {
					return &cache.Entry{Data: []byte("back"), ExpiresAt: time.Now().Add(time.Hour)}, nil
				}
				return nil, cache.ErrMiss
			},
		}
		tiered, err := cache.NewTieredStore(nil, front, back, zerolog.Nop())
		require.NoError(t, err)

		// Act
		got, err := tiered.Lookup(ctx, "key-1")

		// Assert
		require.NoError(t, err)
		assert.Equal(t, []byte("back"), got.Data)
		require.Eventually(t, func() bool {
			promoted, promoteErr := front.Lookup(ctx, "key-1")
			return promoteErr == nil && string(promoted.Data) == "back"
		}, time.Second, 10*time.Millisecond, "back hit should be promoted to the front tier")
	})

	t.Run("Miss in both tiers", func(t *testing.T) {
		// Arrange
		tiered, err := cache.NewTieredStore(nil, newMemoryStore(t), &mockStore{}, zerolog.Nop())
		require.NoError(t, err)

		// Act
		_, err = tiered.Lookup(ctx, "absent")

		// Assert
		assert.ErrorIs(t, err, cache.ErrMiss)
	})

	t.Run("Failing front tier does not hide a healthy back tier", func(t *testing.T) {
		// Arrange
		front := &mockStore{
			LookupFunc: func(_ context.Context, _ string) (*cache.Entry, error) {
				return nil, errors.New("front tier is down")
			},
		}
		back := &mockStore{
			LookupFunc: func(_ context.Context, _ string) (*cache.Entry, error) {
				return &cache.Entry{Data: []byte("back")}, nil
			},
		}
		tiered, err := cache.NewTieredStore(nil, front, back, zerolog.Nop())
		require.NoError(t, err)

		// Act
		got, err := tiered.Lookup(ctx, "key-1")

		// Assert
		require.NoError(t, err)
		assert.Equal(t, []byte("back"), got.Data)
	})
}

func TestTieredStore_SaveAndRemove(t *testing.T) {
	// Arrange
	ctx := context.Background()
	front := newMemoryStore(t)
	back := newMemoryStore(t)
	tiered, err := cache.NewTieredStore(nil, front, back, zerolog.Nop())
	require.NoError(t, err)

	// Act
	require.NoError(t, tiered.Save(ctx, "key-1", &cache.Entry{Data: []byte("both")}))

	// Assert
	fromFront, err := front.Lookup(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("both"), fromFront.Data)
	fromBack, err := back.Lookup(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("both"), fromBack.Data)

	// Act: removal clears both tiers.
	require.NoError(t, tiered.Remove(ctx, "key-1"))

	// Assert
	_, err = front.Lookup(ctx, "key-1")
	assert.ErrorIs(t, err, cache.ErrMiss)
	_, err = back.Lookup(ctx, "key-1")
	assert.ErrorIs(t, err, cache.ErrMiss)
}

func TestTieredStore_Close(t *testing.T) {
	// Arrange
	var frontClosed, backClosed atomic.Bool
	front := &mockStore{CloseFunc: func() error { frontClosed.Store(true); return nil }}
	back := &mockStore{CloseFunc: func() error { backClosed.Store(true); return nil }}
	tiered, err := cache.NewTieredStore(nil, front, back, zerolog.Nop())
	require.NoError(t, err)

	// Act
	require.NoError(t, tiered.Close())

	// Assert
	assert.True(t, frontClosed.Load())
	assert.True(t, backClosed.Load())
}
