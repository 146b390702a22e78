package config

const (
	EnvPrefix = "STOREFRONT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv    = "STOREFRONT_APP_ENV"
	EnvPort      = "STOREFRONT_APP_PORT"
	EnvDBDSN     = "STOREFRONT_DB_DSN"
	EnvDBHost    = "STOREFRONT_DB_HOST"
	EnvDBUser    = "STOREFRONT_DB_USER"
	EnvDBName    = "STOREFRONT_DB_NAME"
	EnvRedisURL  = "STOREFRONT_REDIS_URL"
	EnvJWTSecret = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer = "STOREFRONT_JWT_ISSUER"
	EnvJWTExp    = "STOREFRONT_JWT_EXPIRATION_MINUTES"

	EnvRefreshTokenTTLMinutes = "STOREFRONT_REFRESH_TOKEN_TTL_MINUTES"
	EnvParamsSecret           = "STOREFRONT_PARAMS_SECRET"

	EnvShippingCourier             = "SHIPPING_COURIER_USD"
	EnvShippingPost                = "SHIPPING_POST_USD"
	EnvFreeShippingThreshold       = "FREE_SHIPPING_THRESHOLD_USD"
	EnvSubscriptionPercentDiscount = "SUBSCRIPTION_PERCENT_DISCOUNT"
	EnvMaxSearchResults            = "MAX_SEARCH_RESULTS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
