package config

// EnvPrefix namespaces every variable read by Load.
const EnvPrefix = "BOOKSTORE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv      = "BOOKSTORE_APP_ENV"
	EnvPort        = "BOOKSTORE_APP_PORT"
	EnvDBDSN       = "BOOKSTORE_DB_DSN"
	EnvDBHost      = "BOOKSTORE_DB_HOST"
	EnvDBUser      = "BOOKSTORE_DB_USER"
	EnvDBName      = "BOOKSTORE_DB_NAME"
	EnvDBPassword  = "BOOKSTORE_DB_PASSWORD"
	EnvRedisURL    = "BOOKSTORE_REDIS_URL"
	EnvJWTSecret   = "BOOKSTORE_JWT_SECRET"
	EnvJWTIssuer   = "BOOKSTORE_JWT_ISSUER"
	EnvJWTExpMins  = "BOOKSTORE_JWT_EXPIRATION_MINUTES"
	EnvDeliveryFee = "BOOKSTORE_ORDER_DELIVERY_FEE"
	EnvCORSOrigins = "BOOKSTORE_CORS_ORIGINS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
