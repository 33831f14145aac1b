package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Cart         CartConfig
	Checkout     CheckoutConfig
	Dedup        DedupConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
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
	if err := cfg.Dedup.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"MARKETPLACE_APP_ENV" required:"true"`
	Port         string   `envconfig:"MARKETPLACE_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"MARKETPLACE_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"MARKETPLACE_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"MARKETPLACE_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"MARKETPLACE_DB_DSN"`
	Driver string `envconfig:"MARKETPLACE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MARKETPLACE_DB_HOST"`
	LegacyPort     int    `envconfig:"MARKETPLACE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MARKETPLACE_DB_USER"`
	LegacyPassword string `envconfig:"MARKETPLACE_DB_PASSWORD"`
	LegacyName     string `envconfig:"MARKETPLACE_DB_NAME"`
	LegacySSLMode  string `envconfig:"MARKETPLACE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MARKETPLACE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MARKETPLACE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MARKETPLACE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MARKETPLACE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MARKETPLACE_REDIS_URL"`
	Address      string        `envconfig:"MARKETPLACE_REDIS_ADDR"`
	Password     string        `envconfig:"MARKETPLACE_REDIS_PASSWORD"`
	DB           int           `envconfig:"MARKETPLACE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MARKETPLACE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MARKETPLACE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MARKETPLACE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MARKETPLACE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MARKETPLACE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type JWTConfig struct {
	Secret            string `envconfig:"MARKETPLACE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MARKETPLACE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MARKETPLACE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"MARKETPLACE_AUTO_MIGRATE" default:"false"`
}

type CartConfig struct {
	TTL time.Duration `envconfig:"MARKETPLACE_CART_TTL" default:"168h"`
}

type CheckoutConfig struct {
	Timeout time.Duration `envconfig:"MARKETPLACE_CHECKOUT_TIMEOUT" default:"10s"`
}

// DedupConfig tunes the add-to-cart duplicate submission guard.
type DedupConfig struct {
	Backend    string        `envconfig:"MARKETPLACE_DEDUP_BACKEND" default:"memory"`
	Window     time.Duration `envconfig:"MARKETPLACE_DEDUP_WINDOW" default:"2s"`
	Horizon    time.Duration `envconfig:"MARKETPLACE_DEDUP_HORIZON" default:"10s"`
	MaxEntries int           `envconfig:"MARKETPLACE_DEDUP_MAX_ENTRIES" default:"10000"`
}

func (d DedupConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(d.Backend)) {
	case DedupBackendMemory, DedupBackendRedis:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvDedupBackend, DedupBackendMemory, DedupBackendRedis)
	}
	if d.Horizon < d.Window {
		return fmt.Errorf("%s must not be shorter than %s", EnvDedupHorizon, EnvDedupWindow)
	}
	return nil
}

// UsesRedis reports whether the guard should share state through redis.
func (d DedupConfig) UsesRedis() bool {
	return strings.EqualFold(strings.TrimSpace(d.Backend), DedupBackendRedis)
}

type GCPConfig struct {
	ProjectID string `envconfig:"MARKETPLACE_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"MARKETPLACE_PUBSUB_NOTIFICATION_TOPIC" default:"marketplace-order-events"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"MARKETPLACE_CRON_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"MARKETPLACE_CRON_LOCK_TTL" default:"50m"`
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
