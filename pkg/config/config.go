package config

import (
	"encoding/hex"
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
	Chat         ChatConfig
	Queue        QueueConfig
	Realtime     RealtimeConfig
	MQTT         MQTTConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
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
	if err := cfg.Chat.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Queue.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SUPPORTDESK_APP_ENV" required:"true"`
	Port         string `envconfig:"SUPPORTDESK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SUPPORTDESK_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"SUPPORTDESK_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"SUPPORTDESK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SUPPORTDESK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SUPPORTDESK_DB_DSN"`
	Driver string `envconfig:"SUPPORTDESK_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"SUPPORTDESK_DB_HOST"`
	Port     int    `envconfig:"SUPPORTDESK_DB_PORT" default:"5432"`
	User     string `envconfig:"SUPPORTDESK_DB_USER"`
	Password string `envconfig:"SUPPORTDESK_DB_PASSWORD"`
	Name     string `envconfig:"SUPPORTDESK_DB_NAME"`
	SSLMode  string `envconfig:"SUPPORTDESK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SUPPORTDESK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SUPPORTDESK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SUPPORTDESK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SUPPORTDESK_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"SUPPORTDESK_DB_SLOW_QUERY_THRESHOLD" default:"200ms"`
}

// IsSQLite reports whether the configured driver is the embedded sqlite driver.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL            string        `envconfig:"SUPPORTDESK_REDIS_URL" required:"true"`
	Address        string        `envconfig:"SUPPORTDESK_REDIS_ADDR"`
	Password       string        `envconfig:"SUPPORTDESK_REDIS_PASSWORD"`
	DB             int           `envconfig:"SUPPORTDESK_REDIS_DB" default:"0"`
	PoolSize       int           `envconfig:"SUPPORTDESK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns   int           `envconfig:"SUPPORTDESK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout    time.Duration `envconfig:"SUPPORTDESK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout    time.Duration `envconfig:"SUPPORTDESK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout   time.Duration `envconfig:"SUPPORTDESK_REDIS_WRITE_TIMEOUT" default:"5s"`
	IdempotencyTTL time.Duration `envconfig:"SUPPORTDESK_REDIS_IDEMPOTENCY_TTL" default:"24h"`
	Namespace      string        `envconfig:"SUPPORTDESK_REDIS_NAMESPACE" default:"sd"`
}

type JWTConfig struct {
	Secret            string        `envconfig:"SUPPORTDESK_JWT_SECRET" required:"true"`
	Issuer            string        `envconfig:"SUPPORTDESK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int           `envconfig:"SUPPORTDESK_JWT_EXPIRATION_MINUTES" default:"60"`
	Leeway            time.Duration `envconfig:"SUPPORTDESK_JWT_LEEWAY" default:"30s"`
}

type ChatConfig struct {
	EncryptionKey    string `envconfig:"SUPPORTDESK_CHAT_ENCRYPTION_KEY" required:"true"`
	MaxMessageLength int    `envconfig:"SUPPORTDESK_CHAT_MAX_MESSAGE_LENGTH" default:"4000"`
}

// Key decodes the hex encryption key.
func (c ChatConfig) Key() ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(c.EncryptionKey))
	if err != nil {
		return nil, fmt.Errorf("%s must be hex encoded: %w", EnvChatEncryptionKey, err)
	}
	if len(key) != ChatKeyBytes {
		return nil, fmt.Errorf("%s must decode to %d bytes, got %d", EnvChatEncryptionKey, ChatKeyBytes, len(key))
	}
	return key, nil
}

func (c ChatConfig) validate() error {
	_, err := c.Key()
	return err
}

type QueueConfig struct {
	Backend string `envconfig:"SUPPORTDESK_QUEUE_BACKEND" default:"memory"`
	Key     string `envconfig:"SUPPORTDESK_QUEUE_KEY" default:"waiting_queue:live_chat"`
}

func (q QueueConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(q.Backend)) {
	case QueueBackendMemory, QueueBackendRedis:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q, got %q", EnvQueueBackend, QueueBackendMemory, QueueBackendRedis, q.Backend)
	}
}

// UsesRedis reports whether the waiting queue is backed by redis.
func (q QueueConfig) UsesRedis() bool {
	return strings.EqualFold(strings.TrimSpace(q.Backend), QueueBackendRedis)
}

type RealtimeConfig struct {
	WriteWait      time.Duration `envconfig:"SUPPORTDESK_WS_WRITE_WAIT" default:"10s"`
	PongWait       time.Duration `envconfig:"SUPPORTDESK_WS_PONG_WAIT" default:"60s"`
	MaxFrameBytes  int64         `envconfig:"SUPPORTDESK_WS_MAX_FRAME_BYTES" default:"65536"`
	SendBuffer     int           `envconfig:"SUPPORTDESK_WS_SEND_BUFFER" default:"64"`
	AllowedOrigins []string      `envconfig:"SUPPORTDESK_WS_ALLOWED_ORIGINS"`
}

// PingPeriod is how often the server pings a socket; it must be below PongWait.
func (r RealtimeConfig) PingPeriod() time.Duration {
	if r.PongWait <= 0 {
		return 54 * time.Second
	}
	return (r.PongWait * 9) / 10
}

type MQTTConfig struct {
	BrokerURL   string `envconfig:"SUPPORTDESK_MQTT_BROKER_URL"`
	ClientID    string `envconfig:"SUPPORTDESK_MQTT_CLIENT_ID" default:"supportdesk-api"`
	TopicPrefix string `envconfig:"SUPPORTDESK_MQTT_TOPIC_PREFIX" default:"supportdesk"`
}

// Enabled reports whether the broker bridge should be started.
func (m MQTTConfig) Enabled() bool {
	return strings.TrimSpace(m.BrokerURL) != ""
}

type RateLimitConfig struct {
	MessagesPerMinute int `envconfig:"SUPPORTDESK_RATE_LIMIT_MESSAGES_PER_MINUTE" default:"60"`
	RequestsPerMinute int `envconfig:"SUPPORTDESK_RATE_LIMIT_REQUESTS_PER_MINUTE" default:"300"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SUPPORTDESK_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"SUPPORTDESK_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	SupportTopic        string `envconfig:"SUPPORTDESK_PUBSUB_SUPPORT_TOPIC" default:"supportdesk-complaint-events"`
	SupportSubscription string `envconfig:"SUPPORTDESK_PUBSUB_SUPPORT_SUBSCRIPTION"`

	PublishDelay          time.Duration `envconfig:"SUPPORTDESK_PUBSUB_PUBLISH_DELAY"`
	PublishCountThreshold int           `envconfig:"SUPPORTDESK_PUBSUB_PUBLISH_COUNT_THRESHOLD"`
	PublishTimeout        time.Duration `envconfig:"SUPPORTDESK_PUBSUB_PUBLISH_TIMEOUT"`
}

// OutboxConfig tunes the publisher; MetricsAddr enables its /metrics listener.
type OutboxConfig struct {
	BatchSize      int    `envconfig:"SUPPORTDESK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int    `envconfig:"SUPPORTDESK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int    `envconfig:"SUPPORTDESK_OUTBOX_MAX_ATTEMPTS" default:"10"`
	MetricsAddr    string `envconfig:"SUPPORTDESK_OUTBOX_METRICS_ADDR"`
}

type CronConfig struct {
	Enabled              bool          `envconfig:"SUPPORTDESK_CRON_ENABLED" default:"true"`
	Interval             time.Duration `envconfig:"SUPPORTDESK_CRON_INTERVAL" default:"1m"`
	PendingSweepEnabled  bool          `envconfig:"SUPPORTDESK_CRON_PENDING_SWEEP_ENABLED" default:"false"`
	PendingSweepMinAge   time.Duration `envconfig:"SUPPORTDESK_CRON_PENDING_SWEEP_MIN_AGE" default:"5m"`
	PendingSweepBatch    int           `envconfig:"SUPPORTDESK_CRON_PENDING_SWEEP_BATCH" default:"50"`
	OutboxRetentionDays  int           `envconfig:"SUPPORTDESK_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	OutboxRetentionEvery time.Duration `envconfig:"SUPPORTDESK_CRON_OUTBOX_RETENTION_EVERY" default:"1h"`
	DLQRetentionDays     int           `envconfig:"SUPPORTDESK_CRON_DLQ_RETENTION_DAYS" default:"90"`
	LockTTL              time.Duration `envconfig:"SUPPORTDESK_CRON_LOCK_TTL" default:"5m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required when %s=%s", EnvDBDSN, EnvDBDriver, DBDriverSQLite)
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dsnPartEnvVars {
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
