package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const defaultHeartbeat = time.Minute

type pinger interface {
	Ping(context.Context) error
}

type reconciler interface {
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         pinger
	Redis      pinger
	Reconciler reconciler
}

type dependency struct {
	name string
	pinger
}

// loop is one long-running task supervised by the worker.
type loop struct {
	name string
	run  func(context.Context) error
}

// Service supervises the worker loops. When any loop exits the others are
// cancelled and Run returns the first exit reason.
type Service struct {
	logg      *logger.Logger
	deps      []dependency
	loops     []loop
	heartbeat time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Redis == nil:
		return nil, errors.New("redis client is required")
	case params.Reconciler == nil:
		return nil, errors.New("checkout reconciler is required")
	}

	s := &Service{
		logg:      params.Logger,
		deps:      []dependency{{"database", params.DB}, {"redis", params.Redis}},
		heartbeat: defaultHeartbeat,
	}
	s.loops = []loop{
		{name: "checkout-reconciler", run: params.Reconciler.Run},
		{name: "heartbeat", run: s.runHeartbeat},
	}
	return s, nil
}

// checkDependencies pings every dependency and joins the failures.
func (s *Service) checkDependencies(ctx context.Context) error {
	var errs error
	for _, dep := range s.deps {
		if err := dep.Ping(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s ping failed: %w", dep.name, err))
		}
	}
	return errs
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.checkDependencies(ctx); err != nil {
		s.logg.Error(ctx, "worker dependencies not ready", err)
		return err
	}
	s.logg.Info(ctx, "all worker dependencies are ready")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg    sync.WaitGroup
		once  sync.Once
		first error
	)
	for _, l := range s.loops {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.run(ctx)
			once.Do(func() {
				first = err
				if err != nil && !errors.Is(err, context.Canceled) {
					s.logg.Error(s.logg.WithField(ctx, "loop", l.name), "worker loop stopped unexpectedly", err)
				}
				cancel()
			})
		}()
	}
	wg.Wait()

	if first == nil {
		first = ctx.Err()
	}
	return first
}

// runHeartbeat logs liveness and degraded dependencies without stopping the
// worker; the reconciler retries on its own once they recover.
func (s *Service) runHeartbeat(ctx context.Context) error {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.checkDependencies(ctx); err != nil && ctx.Err() == nil {
				s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "worker dependency degraded")
				continue
			}
			s.logg.Debug(ctx, "worker.heartbeat")
		}
	}
}
