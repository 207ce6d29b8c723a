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
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Export       ExportConfig
	Storage      StorageConfig
	Stripe       StripeConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DBDriverSQLite
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Storage.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"WORKSHEETS_APP_ENV" required:"true"`
	Port         string `envconfig:"WORKSHEETS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"WORKSHEETS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"WORKSHEETS_LOG_WARN_STACK" default:"false"`
	// CORSOrigins is a comma separated list of browser origins allowed to call the API.
	CORSOrigins []string `envconfig:"WORKSHEETS_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"WORKSHEETS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"WORKSHEETS_DB_DSN"`
	Driver string `envconfig:"WORKSHEETS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"WORKSHEETS_DB_HOST"`
	LegacyPort     int    `envconfig:"WORKSHEETS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"WORKSHEETS_DB_USER"`
	LegacyPassword string `envconfig:"WORKSHEETS_DB_PASSWORD"`
	LegacyName     string `envconfig:"WORKSHEETS_DB_NAME"`
	LegacySSLMode  string `envconfig:"WORKSHEETS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"WORKSHEETS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"WORKSHEETS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"WORKSHEETS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"WORKSHEETS_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"WORKSHEETS_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

// IsSQLite reports whether the configured driver is SQLite.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"WORKSHEETS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"WORKSHEETS_REDIS_ADDR"`
	Password     string        `envconfig:"WORKSHEETS_REDIS_PASSWORD"`
	DB           int           `envconfig:"WORKSHEETS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"WORKSHEETS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"WORKSHEETS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"WORKSHEETS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"WORKSHEETS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"WORKSHEETS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig describes the tokens issued by the identity provider.
type JWTConfig struct {
	Secret            string `envconfig:"WORKSHEETS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"WORKSHEETS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"WORKSHEETS_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"WORKSHEETS_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"WORKSHEETS_AUTO_MIGRATE" default:"false"`
}

type ExportConfig struct {
	RenderTimeout   time.Duration `envconfig:"WORKSHEETS_EXPORT_RENDER_TIMEOUT" default:"60s"`
	RateLimitWindow time.Duration `envconfig:"WORKSHEETS_EXPORT_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitMax    int           `envconfig:"WORKSHEETS_EXPORT_RATE_LIMIT_MAX" default:"20"`
	TempDir         string        `envconfig:"WORKSHEETS_EXPORT_TEMP_DIR"`
}

type StorageConfig struct {
	Provider        string `envconfig:"WORKSHEETS_STORAGE_PROVIDER" default:"local"`
	LocalRoot       string `envconfig:"WORKSHEETS_STORAGE_LOCAL_ROOT" default:"./data/artifacts"`
	PublicBaseURL   string `envconfig:"WORKSHEETS_STORAGE_PUBLIC_BASE_URL" default:"http://localhost:8080/files"`
	Bucket          string `envconfig:"WORKSHEETS_STORAGE_BUCKET"`
	Region          string `envconfig:"WORKSHEETS_STORAGE_REGION" default:"auto"`
	Endpoint        string `envconfig:"WORKSHEETS_STORAGE_ENDPOINT"`
	AccessKeyID     string `envconfig:"WORKSHEETS_STORAGE_ACCESS_KEY_ID"`
	SecretAccessKey string `envconfig:"WORKSHEETS_STORAGE_SECRET_ACCESS_KEY"`
	UsePathStyle    bool   `envconfig:"WORKSHEETS_STORAGE_USE_PATH_STYLE" default:"false"`
	KeyPrefix       string `envconfig:"WORKSHEETS_STORAGE_KEY_PREFIX" default:"exports"`
}

// IsLocal reports whether artifacts are written to the local filesystem.
func (s StorageConfig) IsLocal() bool {
	return strings.EqualFold(strings.TrimSpace(s.Provider), StorageProviderLocal)
}

func (s StorageConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(s.Provider)) {
	case StorageProviderLocal:
		if strings.TrimSpace(s.LocalRoot) == "" {
			return fmt.Errorf("%s is required for local storage", EnvStorageLocalRoot)
		}
	case StorageProviderS3:
		if strings.TrimSpace(s.Bucket) == "" {
			return fmt.Errorf("%s is required for s3 storage", EnvStorageBucket)
		}
	default:
		return fmt.Errorf("%s must be %q or %q", EnvStorageProvider, StorageProviderLocal, StorageProviderS3)
	}
	return nil
}

type StripeConfig struct {
	APIKey             string `envconfig:"WORKSHEETS_STRIPE_API_KEY"`
	Secret             string `envconfig:"WORKSHEETS_STRIPE_SECRET"`
	Env                string `envconfig:"WORKSHEETS_STRIPE_ENV" default:"test"`
	PriceBasic         string `envconfig:"WORKSHEETS_STRIPE_PRICE_BASIC"`
	PricePro           string `envconfig:"WORKSHEETS_STRIPE_PRICE_PRO"`
	PricePremium       string `envconfig:"WORKSHEETS_STRIPE_PRICE_PREMIUM"`
	CheckoutSuccessURL string `envconfig:"WORKSHEETS_STRIPE_CHECKOUT_SUCCESS_URL" default:"http://localhost:3000/billing/success"`
	CheckoutCancelURL  string `envconfig:"WORKSHEETS_STRIPE_CHECKOUT_CANCEL_URL" default:"http://localhost:3000/pricing"`
	PortalReturnURL    string `envconfig:"WORKSHEETS_STRIPE_PORTAL_RETURN_URL" default:"http://localhost:3000/account"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// Enabled reports whether enough Stripe configuration exists to talk to the API.
func (s StripeConfig) Enabled() bool {
	return strings.TrimSpace(s.APIKey) != "" && strings.TrimSpace(s.Secret) != ""
}

type CronConfig struct {
	Interval           time.Duration `envconfig:"WORKSHEETS_CRON_INTERVAL" default:"1h"`
	JobTimeout         time.Duration `envconfig:"WORKSHEETS_CRON_JOB_TIMEOUT" default:"10m"`
	ReconcileBatchSize int           `envconfig:"WORKSHEETS_CRON_RECONCILE_BATCH_SIZE" default:"250"`
	ReconcileLookback  time.Duration `envconfig:"WORKSHEETS_CRON_RECONCILE_LOOKBACK" default:"24h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = defaultSQLiteDSN
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
