package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	redislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
	ttl  map[string]time.Duration
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (m *memoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	m.ttl[key] = ttl
	return nil
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	if !ok {
		return "", redislib.Nil
	}
	return val, nil
}

func (m *memoryStore) GetDel(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	if !ok {
		return "", redislib.Nil
	}
	delete(m.data, key)
	return val, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memoryStore) AccessSessionKey(accessID string) string {
	return "sess:" + accessID
}

func newTestManager(t *testing.T, store *memoryStore) *Manager {
	t.Helper()
	manager, err := NewManager(store, config.JWTConfig{ExpirationMinutes: 15, RefreshTokenTTLMinutes: 24 * 60})
	require.NoError(t, err)
	return manager
}

func TestNewManagerRejectsShortRefreshTTL(t *testing.T) {
	_, err := NewManager(newMemoryStore(), config.JWTConfig{ExpirationMinutes: 120, RefreshTokenTTLMinutes: 60})
	assert.Error(t, err)
	_, err = NewManager(nil, config.JWTConfig{})
	assert.Error(t, err)
}

func TestGenerateStoresDigestOnly(t *testing.T) {
	store := newMemoryStore()
	manager := newTestManager(t, store)

	token, err := manager.Generate(context.Background(), "access-1")
	require.NoError(t, err)
	stored := store.data["sess:access-1"]
	assert.NotEqual(t, token, stored)
	assert.Equal(t, digest(token), stored)
	assert.Equal(t, 24*time.Hour, store.ttl["sess:access-1"])

	_, err = manager.Generate(context.Background(), " ")
	assert.Error(t, err)
}

func TestRotateConsumesOldSession(t *testing.T) {
	store := newMemoryStore()
	manager := newTestManager(t, store)
	ctx := context.Background()

	token, err := manager.Generate(ctx, "access-1")
	require.NoError(t, err)

	_, _, err = manager.Rotate(ctx, "access-1", "wrong")
	assert.True(t, errors.Is(err, ErrInvalidRefreshToken))
	has, err := manager.HasSession(ctx, "access-1")
	require.NoError(t, err)
	assert.True(t, has, "a wrong guess must not end the session")

	newID, newToken, err := manager.Rotate(ctx, "access-1", token)
	require.NoError(t, err)
	assert.NotEqual(t, "access-1", newID)
	assert.Equal(t, digest(newToken), store.data["sess:"+newID])

	has, err = manager.HasSession(ctx, "access-1")
	require.NoError(t, err)
	assert.False(t, has)

	_, _, err = manager.Rotate(ctx, "access-1", token)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRotateIsSingleUseUnderConcurrency(t *testing.T) {
	store := newMemoryStore()
	manager := newTestManager(t, store)
	ctx := context.Background()
	token, err := manager.Generate(ctx, "access-1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := manager.Rotate(ctx, "access-1", token)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	}
	assert.Equal(t, 1, successes)
}

func TestRevoke(t *testing.T) {
	store := newMemoryStore()
	manager := newTestManager(t, store)
	ctx := context.Background()
	_, err := manager.Generate(ctx, "access-1")
	require.NoError(t, err)

	require.NoError(t, manager.Revoke(ctx, "access-1"))
	has, err := manager.HasSession(ctx, "access-1")
	require.NoError(t, err)
	assert.False(t, has)
	assert.Error(t, manager.Revoke(ctx, ""))
}
