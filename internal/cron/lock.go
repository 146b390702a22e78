package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = time.Hour

// Lock keeps cron cycles exclusive across worker replicas. Acquire returns a nil
// release func when another replica holds the lock.
type Lock interface {
	Acquire(ctx context.Context) (release func(context.Context) error, err error)
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
}

type redisLock struct {
	store lockStore
	key   string
	ttl   time.Duration
}

// NewRedisLock builds a lease on key. The TTL bounds how long a crashed worker can
// block the next cycle, so it should exceed the longest expected cycle.
func NewRedisLock(store lockStore, key string, ttl time.Duration) (Lock, error) {
	if store == nil {
		return nil, errors.New("redis store required for cron lock")
	}
	if key == "" {
		return nil, errors.New("cron lock key required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &redisLock{store: store, key: key, ttl: ttl}, nil
}

func (l *redisLock) Acquire(ctx context.Context) (func(context.Context) error, error) {
	token := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if !ok {
		return nil, nil
	}
	return func(ctx context.Context) error {
		if _, err := l.store.CompareAndDelete(ctx, l.key, token); err != nil {
			return fmt.Errorf("release %s: %w", l.key, err)
		}
		return nil
	}, nil
}
