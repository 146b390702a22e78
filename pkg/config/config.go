package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Password     PasswordConfig
	OTP          OTPConfig
	Recovery     RecoveryConfig
	Params       ParamsConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Stripe       StripeConfig
	Sendgrid     SendgridConfig
	Shipping     ShippingConfig
	Promo        PromoConfig
	Search       SearchConfig
	Checkout     CheckoutConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	accessTTL := time.Duration(c.JWT.ExpirationMinutes) * time.Minute
	if c.JWT.RefreshTokenTTL() <= accessTTL {
		return fmt.Errorf("refresh token ttl (%s) must exceed access token ttl (%s)", c.JWT.RefreshTokenTTL(), accessTTL)
	}
	if err := c.Shipping.validate(); err != nil {
		return err
	}
	if c.Promo.SubscriptionPercentDiscount < 0 || c.Promo.SubscriptionPercentDiscount > 100 {
		return fmt.Errorf("%s must be within [0, 100]", EnvSubscriptionPercentDiscount)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"STOREFRONT_LOG_FORMAT" default:"json"`
	ClientURL    string `envconfig:"STOREFRONT_CLIENT_URL" default:"http://localhost:3000"`
	PublicURL    string `envconfig:"STOREFRONT_PUBLIC_URL" default:"http://localhost:8080"`
	StoreName    string `envconfig:"STOREFRONT_STORE_NAME" default:"VitaVibe"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STOREFRONT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// SlowQueryThreshold logs statements slower than this at warn; zero disables.
	SlowQueryThreshold time.Duration `envconfig:"STOREFRONT_DB_SLOW_QUERY_THRESHOLD" default:"200ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"STOREFRONT_JWT_EXPIRATION_MINUTES" default:"20"`
	RefreshTokenTTLMinutes int    `envconfig:"STOREFRONT_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	BcryptCost int `envconfig:"STOREFRONT_BCRYPT_COST" default:"8"`
}

type OTPConfig struct {
	PeriodSeconds  uint          `envconfig:"STOREFRONT_OTP_PERIOD_SECONDS" default:"480"`
	ResendInterval time.Duration `envconfig:"STOREFRONT_OTP_RESEND_INTERVAL" default:"1m"`
	Issuer         string        `envconfig:"STOREFRONT_OTP_ISSUER" default:"storefront"`
}

type RecoveryConfig struct {
	LinkTTL    time.Duration `envconfig:"STOREFRONT_RECOVERY_LINK_TTL" default:"1m"`
	SessionTTL time.Duration `envconfig:"STOREFRONT_RECOVERY_SESSION_TTL" default:"15m"`
}

// ParamsConfig holds the key used for encrypted query parameters (?data=...).
type ParamsConfig struct {
	Secret string `envconfig:"STOREFRONT_PARAMS_SECRET" required:"true"`
}

type RateLimitConfig struct {
	Enabled              bool          `envconfig:"STOREFRONT_RATE_LIMIT_ENABLED" default:"true"`
	RecoveryWindow       time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_RECOVERY_WINDOW" default:"1m"`
	RecoveryLimit        int           `envconfig:"STOREFRONT_RATE_LIMIT_RECOVERY_LIMIT" default:"5"`
	ResetPasswordWindow  time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_RESET_PASSWORD_WINDOW" default:"24h"`
	ResetPasswordLimit   int           `envconfig:"STOREFRONT_RATE_LIMIT_RESET_PASSWORD_LIMIT" default:"3"`
	NewsletterWindow     time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_NEWSLETTER_WINDOW" default:"5s"`
	NewsletterLimit      int           `envconfig:"STOREFRONT_RATE_LIMIT_NEWSLETTER_LIMIT" default:"1"`
	PromoTestCodeWindow  time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_PROMO_TEST_WINDOW" default:"3s"`
	PromoTestCodeLimit   int           `envconfig:"STOREFRONT_RATE_LIMIT_PROMO_TEST_LIMIT" default:"1"`
	IdempotencyTTL       time.Duration `envconfig:"STOREFRONT_IDEMPOTENCY_TTL" default:"168h"`
	IdempotencyKeyHeader string        `envconfig:"STOREFRONT_IDEMPOTENCY_HEADER" default:"Idempotency-Key"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STOREFRONT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
	ApplicationCredentials string `envconfig:"STOREFRONT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic string `envconfig:"STOREFRONT_PUBSUB_ORDERS_TOPIC" default:"storefront-order-events"`
	// PromoTopic routes promo events separately; empty keeps them on OrdersTopic.
	PromoTopic string `envconfig:"STOREFRONT_PUBSUB_PROMO_TOPIC"`
}

type StripeConfig struct {
	APIKey string `envconfig:"STOREFRONT_STRIPE_API_KEY"`
	Secret string `envconfig:"STOREFRONT_STRIPE_SECRET"`
	Env    string `envconfig:"STOREFRONT_STRIPE_ENV" default:"test"`
}

type SendgridConfig struct {
	APIKey      string `envconfig:"STOREFRONT_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"STOREFRONT_SENDGRID_FROM_EMAIL" default:"no-reply@storefront.local"`
	FromName    string `envconfig:"STOREFRONT_SENDGRID_FROM_NAME" default:"Storefront"`
	ServerCopy  string `envconfig:"STOREFRONT_SENDGRID_SERVER_COPY_EMAIL"`
}

// ShippingConfig mirrors the legacy SHIPPING_*_USD variables; amounts are decimal strings.
type ShippingConfig struct {
	CourierUSD            string `envconfig:"SHIPPING_COURIER_USD" default:"10"`
	PostUSD               string `envconfig:"SHIPPING_POST_USD" default:"5"`
	FreeShippingThreshold string `envconfig:"FREE_SHIPPING_THRESHOLD_USD" default:"100"`
}

func (s ShippingConfig) CourierCost() decimal.Decimal {
	return parseAmount(s.CourierUSD)
}

func (s ShippingConfig) PostCost() decimal.Decimal {
	return parseAmount(s.PostUSD)
}

func (s ShippingConfig) FreeThreshold() decimal.Decimal {
	return parseAmount(s.FreeShippingThreshold)
}

func (s ShippingConfig) validate() error {
	amounts := []struct{ env, raw string }{
		{EnvShippingCourier, s.CourierUSD},
		{EnvShippingPost, s.PostUSD},
		{EnvFreeShippingThreshold, s.FreeShippingThreshold},
	}
	for _, amount := range amounts {
		value, err := decimal.NewFromString(strings.TrimSpace(amount.raw))
		if err != nil {
			return fmt.Errorf("%s must be a decimal amount, got %q", amount.env, amount.raw)
		}
		if value.IsNegative() {
			return fmt.Errorf("%s must not be negative", amount.env)
		}
	}
	return nil
}

// parseAmount assumes validate accepted raw.
func parseAmount(raw string) decimal.Decimal {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero
	}
	return value
}

type PromoConfig struct {
	SubscriptionPercentDiscount int           `envconfig:"SUBSCRIPTION_PERCENT_DISCOUNT" default:"10"`
	UsageLimit                  int           `envconfig:"STOREFRONT_PROMO_USAGE_LIMIT" default:"1"`
	Validity                    time.Duration `envconfig:"STOREFRONT_PROMO_VALIDITY" default:"168h"`
	PurgeAfter                  time.Duration `envconfig:"STOREFRONT_PROMO_PURGE_AFTER" default:"3600h"`
}

type SearchConfig struct {
	MaxResults int `envconfig:"MAX_SEARCH_RESULTS" default:"20"`
}

type CheckoutConfig struct {
	ReconcileBatchSize      int           `envconfig:"STOREFRONT_CHECKOUT_RECONCILE_BATCH_SIZE" default:"25"`
	ReconcilePollInterval   time.Duration `envconfig:"STOREFRONT_CHECKOUT_RECONCILE_POLL_INTERVAL" default:"5s"`
	ReconcileStaleAfter     time.Duration `envconfig:"STOREFRONT_CHECKOUT_RECONCILE_STALE_AFTER" default:"2m"`
	ReconcileMaxAttempts    int           `envconfig:"STOREFRONT_CHECKOUT_RECONCILE_MAX_ATTEMPTS" default:"8"`
	PaymentTimeout          time.Duration `envconfig:"STOREFRONT_CHECKOUT_PAYMENT_TIMEOUT" default:"30s"`
	NotificationTimeout     time.Duration `envconfig:"STOREFRONT_CHECKOUT_NOTIFICATION_TIMEOUT" default:"20s"`
	BreakerFailureThreshold uint32        `envconfig:"STOREFRONT_CHECKOUT_BREAKER_FAILURES" default:"5"`
	BreakerOpenTimeout      time.Duration `envconfig:"STOREFRONT_CHECKOUT_BREAKER_OPEN_TIMEOUT" default:"30s"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"STOREFRONT_OUTBOX_RETENTION_DAYS" default:"30"`
	// dead letters are kept longer so operators can requeue after an incident
	DLQRetentionDays int `envconfig:"STOREFRONT_OUTBOX_DLQ_RETENTION_DAYS" default:"90"`
}

type CronConfig struct {
	Interval   time.Duration `envconfig:"STOREFRONT_CRON_INTERVAL" default:"24h"`
	JobTimeout time.Duration `envconfig:"STOREFRONT_CRON_JOB_TIMEOUT" default:"10m"`
	LockTTL    time.Duration `envconfig:"STOREFRONT_CRON_LOCK_TTL" default:"1h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
