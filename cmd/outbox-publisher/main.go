package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
	"github.com/angelmondragon/storefront-backend/pkg/pubsub"
)

const serviceName = "outbox-publisher"

func main() {
	requeue := flag.String("requeue", "", "move a dead-lettered event back into the outbox and exit")
	listDLQ := flag.Int("dlq", 0, "log the N most recent dead-lettered events and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName
	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceName,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	repo := outbox.NewRepository(dbClient.DB())
	dlqRepo := outbox.NewDLQRepository(dbClient.DB())

	switch {
	case *requeue != "":
		exitOn(ctx, logg, "requeue dead-lettered event", requeueEvent(ctx, dlqRepo, repo, *requeue))
		logg.Info(logg.WithField(ctx, "event_id", *requeue), "dead-lettered event requeued")
		return
	case *listDLQ > 0:
		exitOn(ctx, logg, "list dead-lettered events", logRecentDLQ(ctx, logg, dlqRepo, *listDLQ))
		return
	}

	exitOn(ctx, logg, "run dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	exitOn(ctx, logg, "build event registry", err)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, eventRegistry.Topics(), logg)
	exitOn(ctx, logg, "bootstrap pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		PubSub:        pubsubClient,
		Repository:    repo,
		Registry:      eventRegistry,
		DLQRepository: dlqRepo,
	})
	exitOn(ctx, logg, "create outbox publisher", err)

	logg.Info(ctx, "starting outbox publisher")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "outbox publisher shutting down gracefully")
}

func requeueEvent(ctx context.Context, dlq *outbox.DLQRepository, repo *outbox.Repository, raw string) error {
	id, err := uuid.Parse(raw)
	if err != nil {
		return err
	}
	return dlq.Requeue(ctx, repo, id)
}

func logRecentDLQ(ctx context.Context, logg *logger.Logger, dlq *outbox.DLQRepository, limit int) error {
	entries, err := dlq.Recent(ctx, limit)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fields := map[string]any{
			"event_id":      e.EventID.String(),
			"event_type":    e.EventType,
			"aggregate_id":  e.AggregateID.String(),
			"error_reason":  e.ErrorReason,
			"attempt_count": e.AttemptCount,
			"failed_at":     e.FailedAt,
		}
		if e.ErrorMessage != nil {
			fields["error"] = *e.ErrorMessage
		}
		logg.Info(logg.WithFields(ctx, fields), "dead-lettered event")
	}
	return nil
}

func exitOn(ctx context.Context, logg *logger.Logger, step string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, "failed to "+step, err)
	os.Exit(1)
}
