package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

type fakeLock struct {
	held     bool
	releases int
}

func (f *fakeLock) Acquire(context.Context) (func(context.Context) error, error) {
	if f.held {
		return nil, nil
	}
	f.held = true
	return func(context.Context) error {
		f.held = false
		f.releases++
		return nil
	}, nil
}

type testJob struct {
	name        string
	err         error
	runs        int
	hadDeadline bool
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(ctx context.Context) error {
	t.runs++
	_, t.hadDeadline = ctx.Deadline()
	return t.err
}

func newTestService(t *testing.T, lock Lock, cfg config.CronConfig, jobs ...Job) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Registry: NewRegistry(jobs...),
		Lock:     lock,
		Metrics:  metrics.NewCronMetrics(prometheus.NewRegistry()),
		Config:   cfg,
	})
	require.NoError(t, err)
	return service
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	purge := &testJob{name: "promo-purge", err: errors.New("boom")}
	retention := &testJob{name: "outbox-retention"}
	lock := &fakeLock{}
	service := newTestService(t, lock, config.CronConfig{JobTimeout: time.Minute}, purge, retention)

	err := service.runCycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "promo-purge: boom")
	assert.Equal(t, 1, purge.runs)
	assert.Equal(t, 1, retention.runs)
	assert.True(t, retention.hadDeadline)
	assert.Equal(t, 1, lock.releases)
	assert.False(t, lock.held)
}

func TestServiceRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "promo-purge"}
	service := newTestService(t, &fakeLock{held: true}, config.CronConfig{}, job)

	require.NoError(t, service.runCycle(context.Background()))
	assert.Zero(t, job.runs)
}

func TestServiceRunCycleStopsOnCanceledContext(t *testing.T) {
	job := &testJob{name: "promo-purge"}
	lock := &fakeLock{}
	service := newTestService(t, lock, config.CronConfig{}, job)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := service.runCycle(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, job.runs)
	assert.Equal(t, 1, lock.releases)
}

func TestServiceRunReturnsOnCancel(t *testing.T) {
	job := &testJob{name: "promo-purge"}
	service := newTestService(t, &fakeLock{}, config.CronConfig{Interval: time.Hour}, job)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, service.Run(ctx), context.Canceled)
	assert.False(t, job.hadDeadline)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{Lock: &fakeLock{}})
	assert.Error(t, err)
	_, err = NewService(ServiceParams{Logger: logger.New(logger.Options{Output: io.Discard})})
	assert.Error(t, err)
}

func TestRegistryIgnoresNilAndCopies(t *testing.T) {
	a, b := &testJob{name: "a"}, &testJob{name: "b"}
	registry := NewRegistry(a, nil)
	registry.Register(b)

	jobs := registry.Jobs()
	require.Len(t, jobs, 2)
	assert.Same(t, a, jobs[0])
	assert.Same(t, b, jobs[1])
	jobs[0] = nil
	assert.NotNil(t, registry.Jobs()[0])
}

func TestServiceRunOnceSelectsJobs(t *testing.T) {
	purge := &testJob{name: "promo-purge"}
	retention := &testJob{name: "retention"}
	lock := &fakeLock{}
	service := newTestService(t, lock, config.CronConfig{}, purge, retention)

	require.NoError(t, service.RunOnce(context.Background(), "retention", "retention"))
	assert.Zero(t, purge.runs)
	assert.Equal(t, 1, retention.runs)
	assert.Equal(t, 1, lock.releases)

	require.NoError(t, service.RunOnce(context.Background()))
	assert.Equal(t, 1, purge.runs)
	assert.Equal(t, 2, retention.runs)

	err := service.RunOnce(context.Background(), "retention", "reindex")
	assert.ErrorContains(t, err, "unknown cron job")
	assert.Equal(t, 2, lock.releases)
}
