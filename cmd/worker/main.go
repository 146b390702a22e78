package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/internal/promo"
	"github.com/angelmondragon/storefront-backend/internal/users"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/mailer"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
	"github.com/angelmondragon/storefront-backend/pkg/security"
	pkgstripe "github.com/angelmondragon/storefront-backend/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	checkoutMetrics := metrics.NewCheckoutMetrics(prometheus.DefaultRegisterer)
	checkoutService, err := buildCheckoutService(ctx, cfg, logg, dbClient, checkoutMetrics)
	if err != nil {
		logg.Error(ctx, "failed to create checkout service", err)
		os.Exit(1)
	}

	reconciler, err := checkout.NewReconciler(checkout.NewRepository(dbClient.DB()), checkoutService, cfg.Checkout, checkoutMetrics, logg)
	if err != nil {
		logg.Error(ctx, "failed to create checkout reconciler", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Redis:      redisClient,
		Reconciler: reconciler,
	})
	if err != nil {
		logg.Error(ctx, "failed to create worker", err)
		os.Exit(1)
	}

	id := os.Getenv("WORKER_ID")
	if id == "" {
		id = "worker-0"
	}
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    id,
	})
	logg.Info(ctx, "starting worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "worker shutting down gracefully")
}

// buildCheckoutService wires the same saga the api runs so stale sagas resume with identical steps.
func buildCheckoutService(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, m *metrics.CheckoutMetrics) (checkout.Service, error) {
	cipher, err := security.NewParamsCipher(cfg.Params.Secret)
	if err != nil {
		return nil, err
	}
	notifier, err := notifications.NewService(mailer.New(cfg.Sendgrid, logg), notifications.Branding{
		StoreName:  cfg.App.StoreName,
		Website:    cfg.App.ClientURL,
		ServerCopy: cfg.Sendgrid.ServerCopy,
	}, logg)
	if err != nil {
		return nil, err
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	promoService, err := promo.NewService(promo.ServiceParams{
		Repo:      promo.NewRepository(dbClient.DB()),
		TxRunner:  dbClient,
		Outbox:    outboxService,
		Notifier:  notifier,
		Cipher:    cipher,
		Config:    cfg.Promo,
		PublicURL: cfg.App.PublicURL,
		ClientURL: cfg.App.ClientURL,
		Logger:    logg,
	})
	if err != nil {
		return nil, err
	}

	inventoryRepo := inventory.NewRepository(dbClient.DB())
	pricingEngine, err := pricing.NewEngine(inventoryRepo, promoService, cfg.Shipping)
	if err != nil {
		return nil, err
	}

	if _, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg); err != nil {
		return nil, err
	}
	gateway, err := payments.NewGateway(payments.NewStripeProcessor(), cfg.Checkout, logg)
	if err != nil {
		return nil, err
	}

	return checkout.NewService(checkout.ServiceParams{
		TxRunner:  dbClient,
		Sagas:     checkout.NewRepository(dbClient.DB()),
		Users:     users.NewRepository(dbClient.DB()),
		Inventory: inventoryRepo,
		Orders:    orders.NewRepository(dbClient.DB()),
		Pricing:   pricingEngine,
		Payments:  gateway,
		Promos:    promoService,
		Outbox:    outboxService,
		Notifier:  notifier,
		Metrics:   m,
		Config:    cfg.Checkout,
		StoreName: cfg.App.StoreName,
		Logger:    logg,
	})
}
