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
	Operator     OperatorConfig
	Payments     PaymentsConfig
	Mpesa        MpesaConfig
	Square       SquareConfig
	Webhooks     WebhooksConfig
	Sweep        SweepConfig
	FeatureFlags FeatureFlagsConfig
	Outbox       OutboxConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Payments.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TITHE_APP_ENV" required:"true"`
	Port         string `envconfig:"TITHE_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"TITHE_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"TITHE_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"TITHE_LOG_WARN_STACK" default:"false"`
	PublicURL    string `envconfig:"TITHE_PUBLIC_URL" default:"http://localhost:8080"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type DBConfig struct {
	DSN    string `envconfig:"TITHE_DB_DSN"`
	Driver string `envconfig:"TITHE_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"TITHE_DB_HOST"`
	Port     int    `envconfig:"TITHE_DB_PORT" default:"5432"`
	User     string `envconfig:"TITHE_DB_USER"`
	Password string `envconfig:"TITHE_DB_PASSWORD"`
	Name     string `envconfig:"TITHE_DB_NAME"`
	SSLMode  string `envconfig:"TITHE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TITHE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TITHE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TITHE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TITHE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	QueryTimeout    time.Duration `envconfig:"TITHE_DB_QUERY_TIMEOUT" default:"5s"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TITHE_REDIS_URL" required:"true"`
	Password     string        `envconfig:"TITHE_REDIS_PASSWORD"`
	DB           int           `envconfig:"TITHE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TITHE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TITHE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TITHE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TITHE_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"TITHE_REDIS_WRITE_TIMEOUT" default:"3s"`
}

// JWTConfig describes the tokens minted by the identity provider for members.
type JWTConfig struct {
	Secret string `envconfig:"TITHE_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"TITHE_JWT_ISSUER" required:"true"`
	// ExpirationMinutes is only used by tithectl when minting local test tokens.
	ExpirationMinutes int `envconfig:"TITHE_JWT_EXPIRATION_MINUTES" default:"60"`
}

// OperatorConfig guards the admin routes. KeyHash is an argon2id hash produced by `tithectl apikey hash`.
type OperatorConfig struct {
	KeyHash          string `envconfig:"TITHE_OPERATOR_KEY_HASH"`
	ArgonMemoryKB    int    `envconfig:"TITHE_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int    `envconfig:"TITHE_ARGON_TIME" default:"3"`
	ArgonParallelism int    `envconfig:"TITHE_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int    `envconfig:"TITHE_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int    `envconfig:"TITHE_ARGON_KEY_LEN" default:"32"`
}

type PaymentsConfig struct {
	MinimumAmountMinor int64         `envconfig:"TITHE_MIN_AMOUNT_MINOR" default:"100"`
	DefaultCurrency    string        `envconfig:"TITHE_DEFAULT_CURRENCY" default:"USD"`
	InitiateTimeout    time.Duration `envconfig:"TITHE_PROVIDER_INITIATE_TIMEOUT" default:"15s"`
	InitiateAttempts   uint64        `envconfig:"TITHE_PROVIDER_INITIATE_ATTEMPTS" default:"3"`
	InitiateBaseDelay  time.Duration `envconfig:"TITHE_PROVIDER_INITIATE_BASE_DELAY" default:"250ms"`
	InitiateMaxDelay   time.Duration `envconfig:"TITHE_PROVIDER_INITIATE_MAX_DELAY" default:"5s"`
	LookupAttempts     int           `envconfig:"TITHE_CALLBACK_LOOKUP_ATTEMPTS" default:"3"`
	LookupDelay        time.Duration `envconfig:"TITHE_CALLBACK_LOOKUP_DELAY" default:"200ms"`
	ProfileCacheTTL    time.Duration `envconfig:"TITHE_PROFILE_CACHE_TTL" default:"5m"`
}

func (p PaymentsConfig) validate() error {
	if p.MinimumAmountMinor <= 0 {
		return fmt.Errorf("%s must be positive", EnvMinAmountMinor)
	}
	if p.InitiateAttempts == 0 {
		return fmt.Errorf("%s must be at least 1", EnvInitiateAttempts)
	}
	return nil
}

type MpesaConfig struct {
	Enabled         bool   `envconfig:"TITHE_MPESA_ENABLED" default:"false"`
	Env             string `envconfig:"TITHE_MPESA_ENV" default:"sandbox"`
	ConsumerKey     string `envconfig:"TITHE_MPESA_CONSUMER_KEY"`
	ConsumerSecret  string `envconfig:"TITHE_MPESA_CONSUMER_SECRET"`
	ShortCode       string `envconfig:"TITHE_MPESA_SHORTCODE"`
	PassKey         string `envconfig:"TITHE_MPESA_PASSKEY"`
	CallbackURL     string `envconfig:"TITHE_MPESA_CALLBACK_URL"`
	TransactionDesc string `envconfig:"TITHE_MPESA_TRANSACTION_DESC" default:"Church giving"`
}

// BaseURL resolves the Daraja host for the configured environment.
func (m MpesaConfig) BaseURL() string {
	if strings.EqualFold(strings.TrimSpace(m.Env), "production") {
		return "https://api.safaricom.co.ke"
	}
	return "https://sandbox.safaricom.co.ke"
}

type SquareConfig struct {
	Enabled     bool   `envconfig:"TITHE_SQUARE_ENABLED" default:"false"`
	AccessToken string `envconfig:"TITHE_SQUARE_ACCESS_TOKEN"`
	Env         string `envconfig:"TITHE_SQUARE_ENV" default:"sandbox"`
	LocationID  string `envconfig:"TITHE_SQUARE_LOCATION_ID"`
}

// WebhooksConfig holds the shared secrets providers sign callbacks with.
type WebhooksConfig struct {
	MpesaSecret     string        `envconfig:"TITHE_WEBHOOK_MPESA_SECRET"`
	SquareSecret    string        `envconfig:"TITHE_WEBHOOK_SQUARE_SECRET"`
	SquareNotifyURL string        `envconfig:"TITHE_WEBHOOK_SQUARE_NOTIFICATION_URL"`
	DedupeTTL       time.Duration `envconfig:"TITHE_WEBHOOK_DEDUPE_TTL" default:"72h"`
	MaxBodyBytes    int64         `envconfig:"TITHE_WEBHOOK_MAX_BODY_BYTES" default:"1048576"`
}

type SweepConfig struct {
	Interval        time.Duration `envconfig:"TITHE_SWEEP_INTERVAL" default:"1m"`
	PendingTTL      time.Duration `envconfig:"TITHE_SWEEP_PENDING_TTL" default:"15m"`
	BatchSize       int           `envconfig:"TITHE_SWEEP_BATCH_SIZE" default:"200"`
	LockTTL         time.Duration `envconfig:"TITHE_SWEEP_LOCK_TTL" default:"2m"`
	OutboxRetention time.Duration `envconfig:"TITHE_OUTBOX_RETENTION" default:"720h"`
	ParkedTTL       time.Duration `envconfig:"TITHE_SWEEP_PARKED_TTL" default:"24h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"TITHE_AUTO_MIGRATE" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"TITHE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"TITHE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"TITHE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"TITHE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"TITHE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"TITHE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	IntentEventsTopic     string        `envconfig:"TITHE_PUBSUB_INTENT_EVENTS_TOPIC" default:"tithe-intent-events"`
	AnalyticsSubscription string        `envconfig:"TITHE_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"tithe-intent-events-analytics"`
	ConsumerDedupeTTL     time.Duration `envconfig:"TITHE_PUBSUB_CONSUMER_DEDUPE_TTL" default:"168h"`
}

type BigQueryConfig struct {
	Dataset           string `envconfig:"TITHE_BIGQUERY_DATASET" default:"tithe"`
	IntentEventsTable string `envconfig:"TITHE_BIGQUERY_INTENT_EVENTS_TABLE" default:"intent_events"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	parts := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dsnPartEnvVars {
		if parts[env] == "" {
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
