package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-expo-push/internal/storage/cache"
	"github.com/tinywideclouds/go-expo-push/pkg/dispatch"
)

// --- Mocks ---
type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	raw, _ := args.Get(0).([]byte)
	return raw, args.Error(1)
}
func (m *MockCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return m.Called(ctx, key, value, ttl).Error(0)
}
func (m *MockCache) Del(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

type MockRealStore struct {
	mock.Mock
}

func (m *MockRealStore) Read(ctx context.Context) (dispatch.Document, error) {
	args := m.Called(ctx)
	doc, _ := args.Get(0).(dispatch.Document)
	return doc, args.Error(1)
}
func (m *MockRealStore) Write(ctx context.Context, doc dispatch.Document) error {
	return m.Called(ctx, doc).Error(0)
}
func (m *MockRealStore) Empty(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func TestCachedStorage_ReadAside(t *testing.T) {
	ctx := context.Background()
	const key = "expo:subscriptions:cache"

	t.Run("cache hit skips the real store", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedStorage(mockDB, mockCache, "", time.Minute, newTestLogger())

		mockCache.On("Get", ctx, key).Return([]byte(`{"news":["A"]}`), nil)

		doc, err := store.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, dispatch.Document{"news": {"A"}}, doc)
		mockDB.AssertNotCalled(t, "Read", mock.Anything)
	})

	t.Run("cache miss reads through and populates", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedStorage(mockDB, mockCache, "", time.Minute, newTestLogger())

		mockCache.On("Get", ctx, key).Return(nil, cache.ErrCacheMiss)
		mockDB.On("Read", ctx).Return(dispatch.Document{"news": {"A"}}, nil)
		mockCache.On("Set", ctx, key, []byte(`{"news":["A"]}`), time.Minute).Return(errors.New("redis down"))

		doc, err := store.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, dispatch.Document{"news": {"A"}}, doc)
		mockCache.AssertExpectations(t)
		mockDB.AssertExpectations(t)
	})

	t.Run("zero ttl falls back to the default", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedStorage(mockDB, mockCache, "", 0, newTestLogger())

		mockCache.On("Get", ctx, key).Return(nil, cache.ErrCacheMiss)
		mockDB.On("Read", ctx).Return(dispatch.Document{}, nil)
		mockCache.On("Set", ctx, key, []byte(`{}`), cache.DefaultCacheTTL).Return(nil)

		_, err := store.Read(ctx)
		require.NoError(t, err)
		mockCache.AssertExpectations(t)
	})
}

func TestCachedStorage_ImmediateInvalidation(t *testing.T) {
	ctx := context.Background()
	mockCache := new(MockCache)
	mockDB := new(MockRealStore)
	store := cache.NewCachedStorage(mockDB, mockCache, "subs:cache", time.Hour, newTestLogger())

	t.Run("Write invalidates cache immediately", func(t *testing.T) {
		doc := dispatch.Document{"news": {"B"}}
		mockDB.On("Write", ctx, doc).Return(nil).Once()
		mockCache.On("Del", ctx, "subs:cache").Return(nil).Once()

		require.NoError(t, store.Write(ctx, doc))
		mockDB.AssertExpectations(t)
		mockCache.AssertExpectations(t)
	})

	t.Run("failed Write leaves cache alone", func(t *testing.T) {
		doc := dispatch.Document{"news": {"C"}}
		mockDB.On("Write", ctx, doc).Return(dispatch.ErrUnableToWrite).Once()

		err := store.Write(ctx, doc)
		assert.ErrorIs(t, err, dispatch.ErrUnableToWrite)
		mockCache.AssertNumberOfCalls(t, "Del", 1)
	})

	t.Run("failed invalidation still reports the write", func(t *testing.T) {
		doc := dispatch.Document{"news": {"D"}}
		mockDB.On("Write", ctx, doc).Return(nil).Once()
		mockCache.On("Del", ctx, "subs:cache").Return(errors.New("redis down")).Once()

		require.NoError(t, store.Write(ctx, doc))
		mockCache.AssertNumberOfCalls(t, "Del", 2)
	})

	t.Run("Empty invalidates cache", func(t *testing.T) {
		mockDB.On("Empty", ctx).Return(nil).Once()
		mockCache.On("Del", ctx, "subs:cache").Return(nil).Once()

		require.NoError(t, store.Empty(ctx))
		mockCache.AssertNumberOfCalls(t, "Del", 3)
	})
}
