package config

const EnvPrefix = "SUPPORTDESK"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	QueueBackendMemory = "memory"
	QueueBackendRedis  = "redis"

	ChatKeyBytes = 32
)

const (
	EnvAppEnv    = "SUPPORTDESK_APP_ENV"
	EnvPort      = "SUPPORTDESK_APP_PORT"
	EnvLogLevel  = "SUPPORTDESK_LOG_LEVEL"
	EnvDBDSN     = "SUPPORTDESK_DB_DSN"
	EnvDBDriver  = "SUPPORTDESK_DB_DRIVER"
	EnvDBHost    = "SUPPORTDESK_DB_HOST"
	EnvDBUser    = "SUPPORTDESK_DB_USER"
	EnvDBName    = "SUPPORTDESK_DB_NAME"
	EnvRedisURL  = "SUPPORTDESK_REDIS_URL"
	EnvJWTSecret = "SUPPORTDESK_JWT_SECRET"
	EnvJWTIssuer = "SUPPORTDESK_JWT_ISSUER"

	EnvChatEncryptionKey = "SUPPORTDESK_CHAT_ENCRYPTION_KEY"
	EnvQueueBackend      = "SUPPORTDESK_QUEUE_BACKEND"
	EnvMQTTBrokerURL     = "SUPPORTDESK_MQTT_BROKER_URL"
	EnvGCPProjectID      = "SUPPORTDESK_GCP_PROJECT_ID"
	EnvPubSubTopic       = "SUPPORTDESK_PUBSUB_SUPPORT_TOPIC"
	EnvPendingSweep      = "SUPPORTDESK_CRON_PENDING_SWEEP_ENABLED"
)

var dsnPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
