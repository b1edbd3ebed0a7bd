package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "wovera"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "WOVERA_DB_DSN"
	EnvDBHost = "WOVERA_DB_HOST"
	EnvDBUser = "WOVERA_DB_USER"
	EnvDBName = "WOVERA_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Outbox        OutboxConfig
	Eventing      EventingConfig
	FeatureFlags  FeatureFlagsConfig
	Paywave       PaywaveConfig
	Swiftship     SwiftshipConfig
	Notifications NotificationsConfig
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
	Env          string `envconfig:"WOVERA_APP_ENV" required:"true"`
	Port         string `envconfig:"WOVERA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"WOVERA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"WOVERA_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"WOVERA_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"WOVERA_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"WOVERA_DB_DSN"`
	Driver string `envconfig:"WOVERA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"WOVERA_DB_HOST"`
	LegacyPort     int    `envconfig:"WOVERA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"WOVERA_DB_USER"`
	LegacyPassword string `envconfig:"WOVERA_DB_PASSWORD"`
	LegacyName     string `envconfig:"WOVERA_DB_NAME"`
	LegacySSLMode  string `envconfig:"WOVERA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"WOVERA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"WOVERA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"WOVERA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"WOVERA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"WOVERA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"WOVERA_REDIS_ADDR"`
	Password     string        `envconfig:"WOVERA_REDIS_PASSWORD"`
	DB           int           `envconfig:"WOVERA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"WOVERA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"WOVERA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"WOVERA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"WOVERA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"WOVERA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"WOVERA_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrderEventsTopic        string `envconfig:"WOVERA_PUBSUB_ORDER_EVENTS_TOPIC" default:"wv-order-events"`
	OrderEventsSubscription string `envconfig:"WOVERA_PUBSUB_ORDER_EVENTS_SUBSCRIPTION" default:"wv-order-events-notifications"`
	ShipmentEventsTopic     string `envconfig:"WOVERA_PUBSUB_SHIPMENT_EVENTS_TOPIC" default:"wv-shipment-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"WOVERA_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"WOVERA_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"WOVERA_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL  time.Duration `envconfig:"WOVERA_EVENTING_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
	ConsumerIdempotencyTTL time.Duration `envconfig:"WOVERA_EVENTING_CONSUMER_IDEMPOTENCY_TTL" default:"168h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"WOVERA_AUTO_MIGRATE" default:"false"`
}

// PaywaveConfig configures the hosted wallet gateway adapter.
type PaywaveConfig struct {
	BaseURL       string        `envconfig:"WOVERA_PAYWAVE_BASE_URL"`
	MerchantID    string        `envconfig:"WOVERA_PAYWAVE_MERCHANT_ID"`
	Secret        string        `envconfig:"WOVERA_PAYWAVE_SECRET"`
	WebhookSecret string        `envconfig:"WOVERA_PAYWAVE_WEBHOOK_SECRET"`
	Timeout       time.Duration `envconfig:"WOVERA_PAYWAVE_TIMEOUT" default:"10s"`
}

// SwiftshipConfig configures the courier adapter.
type SwiftshipConfig struct {
	BaseURL       string        `envconfig:"WOVERA_SWIFTSHIP_BASE_URL"`
	APIKey        string        `envconfig:"WOVERA_SWIFTSHIP_API_KEY"`
	WebhookSecret string        `envconfig:"WOVERA_SWIFTSHIP_WEBHOOK_SECRET"`
	Timeout       time.Duration `envconfig:"WOVERA_SWIFTSHIP_TIMEOUT" default:"10s"`
}

type NotificationsConfig struct {
	QueueSize int `envconfig:"WOVERA_NOTIFICATIONS_QUEUE_SIZE" default:"256"`
	Workers   int `envconfig:"WOVERA_NOTIFICATIONS_WORKERS" default:"4"`
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
