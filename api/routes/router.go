package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/auth"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	product "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/internal/promo"
	stripewebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/storefront-backend/pkg/auth/session"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

type pinger interface {
	Ping(context.Context) error
}

// redisStore is the slice of the redis client the HTTP layer needs.
type redisStore interface {
	pinger
	redis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

type stripeSigner interface {
	SigningSecret() string
}

// Dependencies carries everything the router mounts. Nil webhook parts leave the webhook unmounted.
type Dependencies struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            pinger
	Redis         redisStore
	Sessions      session.AccessSessionChecker
	Auth          auth.Service
	Products      product.Service
	Promo         promo.Service
	Checkout      checkoutsvc.Service
	Orders        orders.Service
	StripeClient  stripeSigner
	StripeWebhook *stripewebhook.Service
	WebhookGuard  *stripewebhook.IdempotencyGuard
	Gatherer      prometheus.Gatherer
	HTTPMetrics   *metrics.HTTPMetrics
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg),
		middleware.Logging(logg, deps.HTTPMetrics),
		middleware.CORS(cfg.App.ClientURL),
	)

	limit := func(policy middleware.RateLimitPolicy) func(http.Handler) http.Handler {
		if !cfg.RateLimit.Enabled {
			return passthrough
		}
		return middleware.RateLimit(policy, deps.Redis, logg)
	}
	recoveryPolicy := middleware.NewRateLimitPolicy("recovery", cfg.RateLimit.RecoveryWindow, cfg.RateLimit.RecoveryLimit, cfg.RateLimit.RecoveryLimit)
	resetPolicy := middleware.NewRateLimitPolicy("reset-password", cfg.RateLimit.ResetPasswordWindow, cfg.RateLimit.ResetPasswordLimit, 0)
	newsletterPolicy := middleware.NewRateLimitPolicy("newsletter", cfg.RateLimit.NewsletterWindow, cfg.RateLimit.NewsletterLimit, 0)
	promoTestPolicy := middleware.NewRateLimitPolicy("promo-test", cfg.RateLimit.PromoTestCodeWindow, cfg.RateLimit.PromoTestCodeLimit, 0)

	authenticated := middleware.Auth(cfg.JWT, deps.Sessions, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/user", func(r chi.Router) {
			r.Post("/register", controllers.AuthRegister(deps.Auth, cfg, logg))
			r.Post("/login", controllers.AuthLogin(deps.Auth, cfg, logg))
			r.Post("/logout", controllers.AuthLogout(deps.Auth, cfg, logg))
			r.Post("/refresh", controllers.AuthRefresh(deps.Auth, cfg, logg))
			r.With(limit(recoveryPolicy)).Post("/send/recovery", controllers.AccountSendRecovery(deps.Auth, logg))
			r.Get("/accept/recovery", controllers.AccountAcceptRecovery(deps.Auth, logg))

			r.Group(func(r chi.Router) {
				r.Use(authenticated)
				r.Post("/send/otp", controllers.AccountSendOTP(deps.Auth, logg))
				r.Get("/activate/{otp}", controllers.AccountActivate(deps.Auth, logg))
				r.Get("/actual/payload", controllers.AccountPayload(deps.Auth, logg))
				r.With(limit(resetPolicy)).Post("/reset/password", controllers.AccountResetPassword(deps.Auth, cfg, logg))
				r.Post("/update/profile", controllers.AccountUpdateProfile(deps.Auth, logg))
			})
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/search", controllers.ProductSearch(deps.Products, logg))
			r.Get("/product", controllers.ProductGet(deps.Products, logg))
		})

		r.Route("/promo", func(r chi.Router) {
			r.With(limit(newsletterPolicy)).Post("/invite/newsletter", controllers.PromoInviteNewsletter(deps.Promo, logg))
			r.Get("/create/code", controllers.PromoCreateCode(deps.Promo, logg))
			r.With(limit(promoTestPolicy)).Post("/testcode", controllers.PromoTestCode(deps.Promo, logg))
		})

		r.Route("/order", func(r chi.Router) {
			r.Use(authenticated)
			r.Get("/list", controllers.OrderList(deps.Orders, logg))
			r.Get("/{orderId}", controllers.OrderGet(deps.Orders, logg))
			r.With(
				middleware.RequireActivated(logg),
				middleware.Idempotency(deps.Redis, middleware.IdempotencyOptions{
					Header: cfg.RateLimit.IdempotencyKeyHeader,
					TTL:    cfg.RateLimit.IdempotencyTTL,
				}, logg),
			).Post("/process/payment", controllers.OrderProcessPayment(deps.Checkout, cfg.RateLimit.IdempotencyKeyHeader, logg))
		})

		if deps.StripeWebhook != nil && deps.StripeClient != nil && deps.WebhookGuard != nil {
			r.Post("/webhooks/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhook, deps.StripeClient, deps.WebhookGuard, logg))
		}
	})

	return r
}

func passthrough(next http.Handler) http.Handler {
	return next
}
