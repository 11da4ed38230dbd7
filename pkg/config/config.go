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
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Dispatch     DispatchConfig
	Ledger       LedgerConfig
	Pricing      PricingConfig
	Cron         CronConfig
	Square       SquareConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Pricing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"DROPSYNC_APP_ENV" required:"true"`
	Port         string `envconfig:"DROPSYNC_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"DROPSYNC_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DROPSYNC_LOG_WARN_STACK" default:"false"`
	// CORSOrigins is a comma-separated list of admin panel origins.
	CORSOrigins []string `envconfig:"DROPSYNC_CORS_ORIGINS" default:"http://localhost:3000"`
	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `envconfig:"DROPSYNC_APP_SHUTDOWN_TIMEOUT" default:"15s"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"DROPSYNC_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"DROPSYNC_DB_DSN"`
	Driver string `envconfig:"DROPSYNC_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"DROPSYNC_DB_HOST"`
	Port     int    `envconfig:"DROPSYNC_DB_PORT" default:"5432"`
	User     string `envconfig:"DROPSYNC_DB_USER"`
	Password string `envconfig:"DROPSYNC_DB_PASSWORD"`
	Name     string `envconfig:"DROPSYNC_DB_NAME"`
	SSLMode  string `envconfig:"DROPSYNC_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DROPSYNC_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DROPSYNC_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DROPSYNC_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DROPSYNC_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DROPSYNC_REDIS_URL"`
	Address      string        `envconfig:"DROPSYNC_REDIS_ADDR"`
	Password     string        `envconfig:"DROPSYNC_REDIS_PASSWORD"`
	DB           int           `envconfig:"DROPSYNC_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DROPSYNC_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DROPSYNC_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DROPSYNC_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DROPSYNC_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DROPSYNC_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"DROPSYNC_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"DROPSYNC_AUTO_MIGRATE" default:"false"`
	// SquareTransport registers the Square gateway factory when credentials are present.
	SquareTransport bool `envconfig:"DROPSYNC_FEATURE_SQUARE_TRANSPORT" default:"true"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"DROPSYNC_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"DROPSYNC_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"DROPSYNC_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"DROPSYNC_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic          string `envconfig:"DROPSYNC_PUBSUB_ORDERS_TOPIC" default:"ds-order-events"`
	OrdersSubscription   string `envconfig:"DROPSYNC_PUBSUB_ORDERS_SUBSCRIPTION" default:"ds-order-events-dispatch"`
	SupplierEventsTopic  string `envconfig:"DROPSYNC_PUBSUB_SUPPLIER_EVENTS_TOPIC" default:"ds-supplier-events"`
	SupplierSubscription string `envconfig:"DROPSYNC_PUBSUB_SUPPLIER_EVENTS_SUBSCRIPTION"`
}

type BigQueryConfig struct {
	Dataset               string `envconfig:"DROPSYNC_BIGQUERY_DATASET" default:"dropsync"`
	SyncRunsTable         string `envconfig:"DROPSYNC_BIGQUERY_SYNC_RUNS_TABLE" default:"sync_runs"`
	DispatchOutcomesTable string `envconfig:"DROPSYNC_BIGQUERY_DISPATCH_OUTCOMES_TABLE" default:"dispatch_outcomes"`
	Enabled               bool   `envconfig:"DROPSYNC_BIGQUERY_ENABLED" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"DROPSYNC_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"DROPSYNC_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"DROPSYNC_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"DROPSYNC_OUTBOX_RETENTION" default:"720h"`
}

type DispatchConfig struct {
	WorkerPoolSize   int           `envconfig:"DROPSYNC_DISPATCH_WORKERS" default:"8"`
	TransportTimeout time.Duration `envconfig:"DROPSYNC_TRANSPORT_TIMEOUT" default:"30s"`
	CancelTTL        time.Duration `envconfig:"DROPSYNC_DISPATCH_CANCEL_TTL" default:"168h"`
	CancelTimeout    time.Duration `envconfig:"DROPSYNC_DISPATCH_CANCEL_TIMEOUT" default:"30s"`
}

type LedgerConfig struct {
	LockTTL  time.Duration `envconfig:"DROPSYNC_LEDGER_LOCK_TTL" default:"10s"`
	LockWait time.Duration `envconfig:"DROPSYNC_LEDGER_LOCK_WAIT" default:"2s"`
}

type PricingConfig struct {
	MinMargin    string `envconfig:"DROPSYNC_PRICING_MIN_MARGIN" default:"0.15"`
	TargetMargin string `envconfig:"DROPSYNC_PRICING_TARGET_MARGIN" default:"0.30"`
	Tolerance    string `envconfig:"DROPSYNC_PRICING_TOLERANCE" default:"0.05"`
}

// Decimals returns the parsed margin policy values.
func (p PricingConfig) Decimals() (minMargin, target, tolerance decimal.Decimal, err error) {
	if minMargin, err = decimal.NewFromString(p.MinMargin); err != nil {
		return minMargin, target, tolerance, fmt.Errorf("invalid %s: %w", EnvPricingMinMargin, err)
	}
	if target, err = decimal.NewFromString(p.TargetMargin); err != nil {
		return minMargin, target, tolerance, fmt.Errorf("invalid %s: %w", EnvPricingTargetMargin, err)
	}
	if tolerance, err = decimal.NewFromString(p.Tolerance); err != nil {
		return minMargin, target, tolerance, fmt.Errorf("invalid %s: %w", EnvPricingTolerance, err)
	}
	return minMargin, target, tolerance, nil
}

func (p PricingConfig) validate() error {
	minMargin, target, tolerance, err := p.Decimals()
	if err != nil {
		return err
	}
	if minMargin.IsNegative() || target.IsNegative() || tolerance.IsNegative() {
		return fmt.Errorf("pricing margins must be non-negative")
	}
	if target.LessThan(minMargin) {
		return fmt.Errorf("%s must be >= %s", EnvPricingTargetMargin, EnvPricingMinMargin)
	}
	return nil
}

type CronConfig struct {
	Interval time.Duration `envconfig:"DROPSYNC_CRON_INTERVAL" default:"15m"`
	LockTTL  time.Duration `envconfig:"DROPSYNC_CRON_LOCK_TTL" default:"14m"`
}

type SquareConfig struct {
	AccessToken string `envconfig:"DROPSYNC_SQUARE_ACCESS_TOKEN"`
	Env         string `envconfig:"DROPSYNC_SQUARE_ENV" default:"sandbox"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DriverSQLite
	}
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.DSN = defaultSQLiteDSN
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
