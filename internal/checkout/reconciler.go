package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

// Reconciler resumes checkout sagas left behind by crashed or failed requests.
type Reconciler struct {
	sagas   Repository
	service Service
	cfg     config.CheckoutConfig
	metrics *metrics.CheckoutMetrics
	logg    *logger.Logger
	now     func() time.Time
}

func NewReconciler(sagas Repository, service Service, cfg config.CheckoutConfig, m *metrics.CheckoutMetrics, logg *logger.Logger) (*Reconciler, error) {
	if sagas == nil {
		return nil, fmt.Errorf("saga repository required")
	}
	if service == nil {
		return nil, fmt.Errorf("checkout service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.ReconcileBatchSize <= 0 {
		cfg.ReconcileBatchSize = 25
	}
	if cfg.ReconcilePollInterval <= 0 {
		cfg.ReconcilePollInterval = 5 * time.Second
	}
	if cfg.ReconcileStaleAfter <= 0 {
		cfg.ReconcileStaleAfter = 2 * time.Minute
	}
	return &Reconciler{
		sagas:   sagas,
		service: service,
		cfg:     cfg,
		metrics: m,
		logg:    logg,
		now:     time.Now,
	}, nil
}

// Run polls until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.ReconcilePollInterval)
	defer ticker.Stop()

	for {
		if _, err := r.ReconcileOnce(ctx); err != nil && ctx.Err() == nil {
			r.logg.Error(ctx, "checkout reconcile pass failed", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ReconcileOnce resumes one batch of due sagas and reports how many it advanced.
func (r *Reconciler) ReconcileOnce(ctx context.Context) (int, error) {
	now := r.now().UTC()
	sagas, err := r.sagas.ListResumable(ctx, now, r.cfg.ReconcileBatchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for i := range sagas {
		saga := &sagas[i]
		claimed, err := r.sagas.Claim(ctx, saga.ID, saga.AttemptCount, now.Add(r.cfg.ReconcileStaleAfter))
		if err != nil {
			return processed, err
		}
		if !claimed {
			continue
		}
		saga.AttemptCount++
		from := string(saga.State)

		sagaCtx := r.logg.WithFields(ctx, map[string]any{
			"saga_id": saga.ID.String(),
			"state":   from,
			"attempt": saga.AttemptCount,
		})
		if err := r.service.Resume(sagaCtx, saga); err != nil {
			if settled(err) {
				r.metrics.IncResume(from, "settled")
				processed++
				continue
			}
			r.metrics.IncResume(from, "error")
			r.logg.Error(sagaCtx, "checkout saga resume failed", err)
			continue
		}
		r.metrics.IncResume(from, "resumed")
		processed++
	}
	return processed, nil
}

// settled reports errors that end a saga for good rather than leaving it resumable.
func settled(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodePaymentDecline) ||
		pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) ||
		pkgerrors.IsCode(err, pkgerrors.CodeValidation)
}
