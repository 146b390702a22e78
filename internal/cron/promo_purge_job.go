package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type promoPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type PromoPurgeJobParams struct {
	Logger *logger.Logger
	Promos promoPurger
}

// NewPromoPurgeJob removes promo codes whose expiry_at has passed.
func NewPromoPurgeJob(params PromoPurgeJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Promos == nil {
		return nil, fmt.Errorf("promo service required")
	}
	return &promoPurgeJob{logg: params.Logger, promos: params.Promos, now: time.Now}, nil
}

type promoPurgeJob struct {
	logg   *logger.Logger
	promos promoPurger
	now    func() time.Time
}

func (j *promoPurgeJob) Name() string { return "promo-purge" }

func (j *promoPurgeJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	deleted, err := j.promos.PurgeExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("promo purge: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"now":          now,
		"rows_deleted": deleted,
	}), "expired promo codes purged")
	return nil
}
