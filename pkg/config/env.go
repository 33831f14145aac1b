package config

// EnvPrefix is passed to envconfig; every field carries its full variable name.
const EnvPrefix = "MARKETPLACE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	DedupBackendMemory = "memory"
	DedupBackendRedis  = "redis"
)

const (
	EnvAppEnv = "MARKETPLACE_APP_ENV"
	EnvPort   = "MARKETPLACE_APP_PORT"

	EnvDBDSN  = "MARKETPLACE_DB_DSN"
	EnvDBHost = "MARKETPLACE_DB_HOST"
	EnvDBUser = "MARKETPLACE_DB_USER"
	EnvDBName = "MARKETPLACE_DB_NAME"

	EnvRedisURL = "MARKETPLACE_REDIS_URL"

	EnvJWTSecret = "MARKETPLACE_JWT_SECRET"
	EnvJWTIssuer = "MARKETPLACE_JWT_ISSUER"

	EnvCartTTL         = "MARKETPLACE_CART_TTL"
	EnvCheckoutTimeout = "MARKETPLACE_CHECKOUT_TIMEOUT"

	EnvDedupBackend = "MARKETPLACE_DEDUP_BACKEND"
	EnvDedupWindow  = "MARKETPLACE_DEDUP_WINDOW"
	EnvDedupHorizon = "MARKETPLACE_DEDUP_HORIZON"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
