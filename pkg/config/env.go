package config

// EnvPrefix namespaces every environment variable read by Load.
const EnvPrefix = "WORKSHEETS"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	StorageProviderLocal = "local"
	StorageProviderS3    = "s3"

	defaultSQLiteDSN = "file:worksheets.db?cache=shared&_fk=1"
)

const (
	EnvAppEnv   = "WORKSHEETS_APP_ENV"
	EnvPort     = "WORKSHEETS_APP_PORT"
	EnvLogLevel = "WORKSHEETS_LOG_LEVEL"

	EnvDBDSN    = "WORKSHEETS_DB_DSN"
	EnvDBDriver = "WORKSHEETS_DB_DRIVER"
	EnvDBHost   = "WORKSHEETS_DB_HOST"
	EnvDBUser   = "WORKSHEETS_DB_USER"
	EnvDBName   = "WORKSHEETS_DB_NAME"

	EnvRedisURL = "WORKSHEETS_REDIS_URL"

	EnvJWTSecret = "WORKSHEETS_JWT_SECRET"
	EnvJWTIssuer = "WORKSHEETS_JWT_ISSUER"

	EnvUseSQLite   = "WORKSHEETS_USE_SQLITE"
	EnvAutoMigrate = "WORKSHEETS_AUTO_MIGRATE"

	EnvExportRenderTimeout = "WORKSHEETS_EXPORT_RENDER_TIMEOUT"

	EnvStorageProvider  = "WORKSHEETS_STORAGE_PROVIDER"
	EnvStorageLocalRoot = "WORKSHEETS_STORAGE_LOCAL_ROOT"
	EnvStorageBucket    = "WORKSHEETS_STORAGE_BUCKET"

	EnvStripeAPIKey     = "WORKSHEETS_STRIPE_API_KEY"
	EnvStripeSecret     = "WORKSHEETS_STRIPE_SECRET"
	EnvStripePriceBasic = "WORKSHEETS_STRIPE_PRICE_BASIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
