package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Idempotency   IdempotencyConfig
	Checkout      CheckoutConfig
	Audit         AuditConfig
	ScanRateLimit ScanRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"LOYALTY_APP_ENV" required:"true"`
	Port         string `envconfig:"LOYALTY_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"LOYALTY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LOYALTY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"LOYALTY_DB_DSN"`
	Driver string `envconfig:"LOYALTY_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"LOYALTY_DB_HOST"`
	Port     int    `envconfig:"LOYALTY_DB_PORT" default:"5432"`
	User     string `envconfig:"LOYALTY_DB_USER"`
	Password string `envconfig:"LOYALTY_DB_PASSWORD"`
	Name     string `envconfig:"LOYALTY_DB_NAME"`
	SSLMode  string `envconfig:"LOYALTY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LOYALTY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LOYALTY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LOYALTY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LOYALTY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if d.Host == "" || d.User == "" || d.Name == "" {
		return fmt.Errorf("either LOYALTY_DB_DSN or host/user/name settings are required")
	}
	d.DSN = fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"LOYALTY_REDIS_URL"`
	Address      string        `envconfig:"LOYALTY_REDIS_ADDR"`
	Password     string        `envconfig:"LOYALTY_REDIS_PASSWORD"`
	DB           int           `envconfig:"LOYALTY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LOYALTY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LOYALTY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LOYALTY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LOYALTY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LOYALTY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"LOYALTY_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"LOYALTY_JWT_ISSUER" default:"loyalty-backend"`
	ExpirationMinutes int    `envconfig:"LOYALTY_JWT_EXPIRATION_MINUTES" default:"60"`
}

type IdempotencyConfig struct {
	// KeyTTL bounds how long a stored operation key blocks replays.
	KeyTTL time.Duration `envconfig:"LOYALTY_IDEMPOTENCY_KEY_TTL" default:"24h"`
	// HTTPReplayTTL bounds the Redis-held response replay window.
	HTTPReplayTTL time.Duration `envconfig:"LOYALTY_IDEMPOTENCY_HTTP_TTL" default:"24h"`
}

type CheckoutConfig struct {
	// DeliveryFee is charged on DELIVERY orders, in whole currency units.
	DeliveryFee int64 `envconfig:"LOYALTY_CHECKOUT_DELIVERY_FEE" default:"200"`
	// PointsPerUnit converts points to currency: 1 point = 1 unit by default.
	PointsPerUnit int64 `envconfig:"LOYALTY_CHECKOUT_POINTS_PER_UNIT" default:"1"`
}

type AuditConfig struct {
	// Chain names the default audit chain scope.
	Chain string `envconfig:"LOYALTY_AUDIT_CHAIN" default:"global"`
	// VerifyPageSize bounds how many entries a verification pass loads per query.
	VerifyPageSize int `envconfig:"LOYALTY_AUDIT_VERIFY_PAGE_SIZE" default:"500"`
}

type ScanRateLimitConfig struct {
	// Window is the fixed rate-limit window for scan ingestion.
	Window time.Duration `envconfig:"LOYALTY_SCAN_RATE_WINDOW" default:"1m"`
	// IPLimit caps scans per source address per window. Zero disables it.
	IPLimit int `envconfig:"LOYALTY_SCAN_RATE_IP_LIMIT" default:"300"`
	// StoreLimit caps scans per store per window. Zero disables it.
	StoreLimit int `envconfig:"LOYALTY_SCAN_RATE_STORE_LIMIT" default:"600"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LOYALTY_FEATURE_AUTO_MIGRATE" default:"false"`
}
