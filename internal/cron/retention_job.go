package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const day = 24 * time.Hour

// DeleteBeforeFunc removes rows older than cutoff and reports how many went.
type DeleteBeforeFunc func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)

// Sweep is one table the retention job prunes.
type Sweep struct {
	Name   string
	Window time.Duration
	Delete DeleteBeforeFunc
}

// RetentionSweep builds a sweep whose window is given in days; a non-positive
// value falls back to fallbackDays.
func RetentionSweep(name string, days, fallbackDays int, fn DeleteBeforeFunc) Sweep {
	if days <= 0 {
		days = fallbackDays
	}
	return Sweep{Name: name, Window: time.Duration(days) * day, Delete: fn}
}

type RetentionJobParams struct {
	Logger *logger.Logger
	DB     txRunner
	Sweeps []Sweep
}

// NewRetentionJob prunes delivered outbox rows and aged dead letters. Each sweep
// runs in its own transaction so one failing table does not hold back the rest.
func NewRetentionJob(params RetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case len(params.Sweeps) == 0:
		return nil, errors.New("at least one sweep required")
	}
	for _, s := range params.Sweeps {
		if s.Name == "" || s.Delete == nil || s.Window <= 0 {
			return nil, fmt.Errorf("sweep %q is incomplete", s.Name)
		}
	}
	return &retentionJob{
		logg:   params.Logger,
		db:     params.DB,
		sweeps: params.Sweeps,
		now:    time.Now,
	}, nil
}

type retentionJob struct {
	logg   *logger.Logger
	db     txRunner
	sweeps []Sweep
	now    func() time.Time
}

func (j *retentionJob) Name() string { return "retention" }

func (j *retentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var errs error
	for _, sweep := range j.sweeps {
		cutoff := now.Add(-sweep.Window)
		var deleted int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			n, err := sweep.Delete(ctx, tx, cutoff)
			deleted = n
			return err
		})
		sweepCtx := j.logg.WithFields(ctx, map[string]any{
			"sweep":        sweep.Name,
			"cutoff":       cutoff,
			"rows_deleted": deleted,
		})
		if err != nil {
			j.logg.Error(sweepCtx, "retention sweep failed", err)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", sweep.Name, err))
			continue
		}
		j.logg.Info(sweepCtx, "retention sweep complete")
	}
	return errs
}
