package config

const (
	EnvPrefix = "DROPSYNC"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv       = "DROPSYNC_APP_ENV"
	EnvPort         = "DROPSYNC_APP_PORT"
	EnvRedisURL     = "DROPSYNC_REDIS_URL"
	EnvGCPProjectID = "DROPSYNC_GCP_PROJECT_ID"
	EnvUseSQLite    = "DROPSYNC_USE_SQLITE"

	EnvDBDSN  = "DROPSYNC_DB_DSN"
	EnvDBHost = "DROPSYNC_DB_HOST"
	EnvDBUser = "DROPSYNC_DB_USER"
	EnvDBName = "DROPSYNC_DB_NAME"

	EnvPubSubOrdersTopic = "DROPSYNC_PUBSUB_ORDERS_TOPIC"
	EnvPubSubOrdersSub   = "DROPSYNC_PUBSUB_ORDERS_SUBSCRIPTION"

	EnvPricingMinMargin    = "DROPSYNC_PRICING_MIN_MARGIN"
	EnvPricingTargetMargin = "DROPSYNC_PRICING_TARGET_MARGIN"
	EnvPricingTolerance    = "DROPSYNC_PRICING_TOLERANCE"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultSQLiteDSN = "file:dropsync.db?cache=shared&_foreign_keys=on"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
