package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryLockStore struct {
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newMemoryLockStore() *memoryLockStore {
	return &memoryLockStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryLockStore) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	if m.values[key] != value {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockIsExclusiveAndOwnerScoped(t *testing.T) {
	store := newMemoryLockStore()
	ctx := context.Background()
	first, err := NewRedisLock(store, "sf:lock:cron:prod", time.Minute)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "sf:lock:cron:prod", time.Minute)
	require.NoError(t, err)

	release, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.NotNil(t, release)
	assert.Equal(t, time.Minute, store.ttls["sf:lock:cron:prod"])

	blocked, err := second.Acquire(ctx)
	require.NoError(t, err)
	assert.Nil(t, blocked)

	// a lease that expired and was taken over must not be released by the old holder
	store.values["sf:lock:cron:prod"] = "someone-else"
	require.NoError(t, release(ctx))
	assert.Equal(t, "someone-else", store.values["sf:lock:cron:prod"])

	delete(store.values, "sf:lock:cron:prod")
	again, err := second.Acquire(ctx)
	require.NoError(t, err)
	require.NotNil(t, again)
	require.NoError(t, again(ctx))
	assert.Empty(t, store.values)
}

func TestRedisLockDefaultsAndErrors(t *testing.T) {
	store := newMemoryLockStore()
	_, err := NewRedisLock(nil, "k", 0)
	assert.Error(t, err)
	_, err = NewRedisLock(store, "", 0)
	assert.Error(t, err)

	lock, err := NewRedisLock(store, "k", 0)
	require.NoError(t, err)
	release, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, release)
	assert.Equal(t, defaultLockTTL, store.ttls["k"])

	store.err = errors.New("connection refused")
	_, err = lock.Acquire(context.Background())
	assert.ErrorContains(t, err, "connection refused")
}
