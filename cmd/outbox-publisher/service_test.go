package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

func TestProcessBatchContinuesAfterTransientFailure(t *testing.T) {
	first, second := orderRow(t, 0), orderRow(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{first, second}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{err: errors.New("transient")},
		fakePublishResult{},
	}}
	dlq := &fakeDLQRepo{}
	svc := newTestService(t, repo, pub, &fakeRegistry{resolved: resolvedFor("orders-topic")}, dlq, nil)

	processed, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, []uuid.UUID{first.ID}, repo.failed)
	assert.Equal(t, []uuid.UUID{second.ID}, repo.published)
	assert.Empty(t, repo.terminal)
	assert.Empty(t, dlq.entries)
}

func TestProcessBatchPublishesStoredEnvelopeWithAttributes(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventCheckoutCompensated,
		AggregateType: enums.AggregateCheckoutSaga,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t, "compensated"),
	}
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &recordingPublisher{}
	svc := newTestService(t, repo, pub, &fakeRegistry{resolved: resolvedFor("orders-topic")}, &fakeDLQRepo{}, nil)
	var topics []string
	svc.publisherFactory = func(topic string) publisher {
		topics = append(topics, topic)
		return pub
	}

	_, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"orders-topic"}, topics)
	require.Len(t, pub.messages, 1)
	msg := pub.messages[0]
	assert.Equal(t, []byte(event.Payload), msg.Data)
	assert.Equal(t, string(enums.EventCheckoutCompensated), msg.Attributes["event_type"])
	assert.Equal(t, event.AggregateID.String(), msg.Attributes["aggregate_id"])
	assert.Equal(t, event.ID.String(), msg.Attributes["event_id"])
	assert.Equal(t, []uuid.UUID{event.ID}, repo.published)
}

func TestProcessBatchDeadLetters(t *testing.T) {
	cases := []struct {
		name       string
		attempts   int
		registry   *fakeRegistry
		publisher  publisher
		wantReason enums.OutboxDLQErrorReason
	}{
		{
			name:       "unresolvable row",
			registry:   &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))},
			publisher:  &fakePublisher{},
			wantReason: enums.OutboxDLQReasonNonRetryable,
		},
		{
			name:       "missing publisher",
			registry:   &fakeRegistry{resolved: resolvedFor("orders-topic")},
			wantReason: enums.OutboxDLQReasonNonRetryable,
		},
		{
			name:       "nil publish result",
			registry:   &fakeRegistry{resolved: resolvedFor("orders-topic")},
			publisher:  &fakePublisher{},
			wantReason: enums.OutboxDLQReasonNonRetryable,
		},
		{
			name:       "max attempts",
			attempts:   1,
			registry:   &fakeRegistry{resolved: resolvedFor("orders-topic")},
			publisher:  &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("transient")}}},
			wantReason: enums.OutboxDLQReasonMaxAttempts,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event := orderRow(t, tc.attempts)
			repo := &fakeRepo{events: []models.OutboxEvent{event}}
			dlq := &fakeDLQRepo{}
			svc := newTestService(t, repo, tc.publisher, tc.registry, dlq, &config.OutboxConfig{BatchSize: 1, MaxAttempts: 2})
			if tc.publisher == nil {
				svc.publisherFactory = func(string) publisher { return nil }
			}

			processed, err := svc.processBatch(context.Background())
			require.NoError(t, err)
			assert.True(t, processed)
			require.Len(t, dlq.entries, 1)
			entry := dlq.entries[0]
			assert.Equal(t, event.ID, entry.EventID)
			assert.Equal(t, []byte(event.Payload), []byte(entry.Payload))
			assert.Equal(t, tc.wantReason, entry.ErrorReason)
			require.NotNil(t, entry.ErrorMessage)
			assert.Equal(t, []uuid.UUID{event.ID}, repo.terminal)
			assert.Empty(t, repo.published)
			assert.Empty(t, repo.failed)
		})
	}
}

func TestProcessBatchReportsIdle(t *testing.T) {
	svc := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{}, &fakeDLQRepo{}, nil)
	processed, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestProcessBatchFailsOnRepositoryError(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{orderRow(t, 0)}, markErr: errors.New("db down")}
	svc := newTestService(t, repo, &recordingPublisher{}, &fakeRegistry{resolved: resolvedFor("orders-topic")}, &fakeDLQRepo{}, nil)
	_, err := svc.processBatch(context.Background())
	assert.ErrorContains(t, err, "db down")
}

func TestBackoffDoublesToCap(t *testing.T) {
	b := newBackoff(100*time.Millisecond, 300*time.Millisecond)
	for _, want := range []time.Duration{100, 200, 300, 300} {
		got := b.Next()
		want *= time.Millisecond
		assert.GreaterOrEqual(t, got, want)
		assert.Less(t, got, want+jitterWindow)
	}
	b.Reset()
	assert.Less(t, b.Next(), 100*time.Millisecond+jitterWindow)
}

func TestSleepCtxHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
}

func newTestService(t *testing.T, repo outboxRepository, pub publisher, resolver registryResolver, dlq dlqRepository, override *config.OutboxConfig) *Service {
	t.Helper()
	outboxCfg := config.OutboxConfig{BatchSize: 2, PollIntervalMS: 100, MaxAttempts: 5}
	if override != nil {
		outboxCfg = *override
	}
	svc, err := NewService(ServiceParams{
		Config:           &config.Config{Outbox: outboxCfg},
		Logger:           logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:               fakeDB{},
		PubSub:           fakePubSubClient{},
		Repository:       repo,
		Registry:         resolver,
		PublisherFactory: func(string) publisher { return pub },
		DLQRepository:    dlq,
	})
	require.NoError(t, err)
	return svc
}

func orderRow(t *testing.T, attempts int) models.OutboxEvent {
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t, uuid.NewString()),
		AttemptCount:  attempts,
	}
}

func resolvedFor(topic string) *registry.ResolvedEvent {
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Topic: topic},
		Payload:    &payloads.OrderPlacedEvent{},
	}
}

func mustEnvelopePayload(tb testing.TB, eventID string) json.RawMessage {
	tb.Helper()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	})
	require.NoError(tb, err)
	return payload
}

type fakeRepo struct {
	events    []models.OutboxEvent
	markErr   error
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type fakePubSubClient struct{}

func (fakePubSubClient) Ping(context.Context) error { return nil }

func (fakePubSubClient) Publisher(string) *gcppubsub.Publisher { return nil }

type fakePublisher struct {
	results []publishResult
}

func (f *fakePublisher) Publish(context.Context, *gcppubsub.Message) publishResult {
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type recordingPublisher struct {
	messages []*gcppubsub.Message
}

func (r *recordingPublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	r.messages = append(r.messages, msg)
	return fakePublishResult{}
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "", f.err
}

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Descriptor.AggregateType = event.AggregateType
	return &resolved, nil
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}
