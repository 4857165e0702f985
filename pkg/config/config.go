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
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	Cookie        CookieConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	GCP           GCPConfig
	GCS           GCSConfig
	PubSub        PubSubConfig
	Stripe        StripeConfig
	Sendgrid      SendgridConfig
	Outbox        OutboxConfig
	Cron          CronConfig
	Storefront    StorefrontConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Storefront.DeliveryFeeAmount(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BOOKSTORE_APP_ENV" required:"true"`
	Port         string `envconfig:"BOOKSTORE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"BOOKSTORE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BOOKSTORE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"BOOKSTORE_DB_DSN"`
	Driver string `envconfig:"BOOKSTORE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"BOOKSTORE_DB_HOST"`
	LegacyPort     int    `envconfig:"BOOKSTORE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BOOKSTORE_DB_USER"`
	LegacyPassword string `envconfig:"BOOKSTORE_DB_PASSWORD"`
	LegacyName     string `envconfig:"BOOKSTORE_DB_NAME"`
	LegacySSLMode  string `envconfig:"BOOKSTORE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BOOKSTORE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BOOKSTORE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BOOKSTORE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BOOKSTORE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BOOKSTORE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BOOKSTORE_REDIS_ADDR"`
	Password     string        `envconfig:"BOOKSTORE_REDIS_PASSWORD"`
	DB           int           `envconfig:"BOOKSTORE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BOOKSTORE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BOOKSTORE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BOOKSTORE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BOOKSTORE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BOOKSTORE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"BOOKSTORE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"BOOKSTORE_JWT_ISSUER" default:"bookstore"`
	ExpirationMinutes int    `envconfig:"BOOKSTORE_JWT_EXPIRATION_MINUTES" default:"10080"`
}

// TTL returns the access token lifetime.
func (j JWTConfig) TTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	MinLength        int           `envconfig:"BOOKSTORE_PASSWORD_MIN_LENGTH" default:"8"`
	ArgonMemoryKB    int           `envconfig:"BOOKSTORE_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int           `envconfig:"BOOKSTORE_ARGON_TIME" default:"3"`
	ArgonParallelism int           `envconfig:"BOOKSTORE_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int           `envconfig:"BOOKSTORE_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int           `envconfig:"BOOKSTORE_ARGON_KEY_LEN" default:"32"`
	ResetTokenTTL    time.Duration `envconfig:"BOOKSTORE_PASSWORD_RESET_TTL" default:"10m"`
}

type CookieConfig struct {
	Name   string `envconfig:"BOOKSTORE_COOKIE_NAME" default:"token"`
	Domain string `envconfig:"BOOKSTORE_COOKIE_DOMAIN"`
	Secure bool   `envconfig:"BOOKSTORE_COOKIE_SECURE" default:"true"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"BOOKSTORE_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"BOOKSTORE_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"BOOKSTORE_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"BOOKSTORE_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"BOOKSTORE_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"BOOKSTORE_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
	ResetWindow        time.Duration `envconfig:"BOOKSTORE_AUTH_RATE_LIMIT_RESET_WINDOW" default:"15m"`
	ResetEmailLimit    int           `envconfig:"BOOKSTORE_AUTH_RATE_LIMIT_RESET_EMAIL_LIMIT" default:"3"`
	ResetIPLimit       int           `envconfig:"BOOKSTORE_AUTH_RATE_LIMIT_RESET_IP_LIMIT" default:"10"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"BOOKSTORE_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	ConsumerIdempotencyTTL time.Duration `envconfig:"BOOKSTORE_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	WebhookIdempotencyTTL  time.Duration `envconfig:"BOOKSTORE_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"BOOKSTORE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"BOOKSTORE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"BOOKSTORE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName  string `envconfig:"BOOKSTORE_GCS_BUCKET_NAME"`
	PublicBase  string `envconfig:"BOOKSTORE_GCS_PUBLIC_BASE_URL" default:"https://storage.googleapis.com"`
	ImagePrefix string `envconfig:"BOOKSTORE_GCS_IMAGE_PREFIX" default:"products"`
	MaxUploadMB int    `envconfig:"BOOKSTORE_MAX_UPLOAD_MB" default:"10"`
}

// Enabled reports whether product image uploads can be pushed to a bucket.
func (g GCSConfig) Enabled() bool {
	return strings.TrimSpace(g.BucketName) != ""
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"BOOKSTORE_PUBSUB_DOMAIN_TOPIC" default:"bookstore-domain-events"`
	DomainSubscription string `envconfig:"BOOKSTORE_PUBSUB_DOMAIN_SUBSCRIPTION" default:"bookstore-domain-events-worker"`
	EmailTopic         string `envconfig:"BOOKSTORE_PUBSUB_EMAIL_TOPIC" default:"bookstore-email-jobs"`
	EmailSubscription  string `envconfig:"BOOKSTORE_PUBSUB_EMAIL_SUBSCRIPTION" default:"bookstore-email-jobs-worker"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"BOOKSTORE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"BOOKSTORE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"BOOKSTORE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval                  time.Duration `envconfig:"BOOKSTORE_CRON_INTERVAL" default:"6h"`
	LockTTL                   time.Duration `envconfig:"BOOKSTORE_CRON_LOCK_TTL" default:"1h"`
	NotificationRetentionDays int           `envconfig:"BOOKSTORE_CRON_NOTIFICATION_RETENTION_DAYS" default:"30"`
	OutboxRetentionDays       int           `envconfig:"BOOKSTORE_CRON_OUTBOX_RETENTION_DAYS" default:"14"`
}

type StripeConfig struct {
	APIKey     string `envconfig:"BOOKSTORE_STRIPE_API_KEY"`
	Secret     string `envconfig:"BOOKSTORE_STRIPE_SECRET"`
	Env        string `envconfig:"BOOKSTORE_STRIPE_ENV" default:"test"`
	Currency   string `envconfig:"BOOKSTORE_STRIPE_CURRENCY" default:"usd"`
	SuccessURL string `envconfig:"BOOKSTORE_STRIPE_SUCCESS_URL"`
	CancelURL  string `envconfig:"BOOKSTORE_STRIPE_CANCEL_URL"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// Enabled reports whether card checkout is configured.
func (s StripeConfig) Enabled() bool {
	return strings.TrimSpace(s.APIKey) != "" && strings.TrimSpace(s.Secret) != ""
}

type SendgridConfig struct {
	APIKey      string `envconfig:"BOOKSTORE_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"BOOKSTORE_SENDGRID_FROM_EMAIL" default:"no-reply@bookstore.local"`
	FromName    string `envconfig:"BOOKSTORE_SENDGRID_FROM_NAME" default:"Bookstore"`
}

type StorefrontConfig struct {
	ClientURL      string   `envconfig:"BOOKSTORE_CLIENT_URL" default:"http://localhost:5173"`
	AdminURL       string   `envconfig:"BOOKSTORE_ADMIN_URL" default:"http://localhost:5174"`
	AllowedOrigins []string `envconfig:"BOOKSTORE_CORS_ORIGINS"`
	DeliveryFee    string   `envconfig:"BOOKSTORE_ORDER_DELIVERY_FEE" default:"0"`
}

// DeliveryFeeAmount parses the flat delivery fee added to every order.
func (s StorefrontConfig) DeliveryFeeAmount() (decimal.Decimal, error) {
	raw := strings.TrimSpace(s.DeliveryFee)
	if raw == "" {
		return decimal.Zero, nil
	}
	fee, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", EnvDeliveryFee, err)
	}
	if fee.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", EnvDeliveryFee)
	}
	return fee, nil
}

// Origins returns the CORS allow-list, defaulting to the two front-ends.
func (s StorefrontConfig) Origins() []string {
	if len(s.AllowedOrigins) > 0 {
		return s.AllowedOrigins
	}
	origins := []string{}
	for _, candidate := range []string{s.ClientURL, s.AdminURL} {
		if trimmed := strings.TrimRight(strings.TrimSpace(candidate), "/"); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
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
