// Package config provides configuration structures and validation for the
// contribution ledger services. Values come from an optional .env file and
// are overridden by environment variables.
package config

import (
	"errors"
	"strings"
	"time"
)

// Config holds the complete application configuration. Both binaries load the
// same structure and use the sections they need.
type Config struct {
	Application     ApplicationConfig
	Logging         LoggingConfig
	Server          ServerConfig
	Kafka           KafkaConfig
	Postgres        PostgresConfig
	MongoDB         MongoDBConfig
	Redis           RedisConfig
	Outbox          OutboxConfig
	WorkerPool      WorkerPoolConfig
	Settlement      SettlementConfig
	TransferGateway TransferGatewayConfig
	Metrics         MetricsConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int           // Port to listen on
	ShutdownTimeout time.Duration // Grace period for server shutdown
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
}

// KafkaConfig contains Kafka configuration
type KafkaConfig struct {
	Brokers           string
	CommandTopic      string // Settlement commands from the API gateway
	EventTopic        string // Ledger and settlement events for subscribers
	NumPartitions     int
	ReplicationFactor int
	ConsumerGroup     string
	MinBytes          int
	MaxBytes          int
	MaxWait           time.Duration
	StartOffset       int64
	DLQTopic          string
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	MigrationsPath  string
}

// MongoDBConfig contains MongoDB configuration for the audit trail
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// RedisConfig contains the settlement driver lock configuration.
// An empty URL disables Redis and falls back to an in-process lock.
type RedisConfig struct {
	URL     string
	LockTTL time.Duration
}

// OutboxConfig contains outbox pattern configuration
type OutboxConfig struct {
	PollingInterval  time.Duration
	BatchSize        int
	MaxRetryAttempts int
	Retention        time.Duration // Delivered messages older than this are purged; 0 keeps them
}

// WorkerPoolConfig contains worker pool configuration
type WorkerPoolConfig struct {
	Size int
}

// SettlementConfig tunes the settlement coordinator and the deadline sweeper.
type SettlementConfig struct {
	MaxAttempts       int           // Gateway calls per attempt per drive
	InitialBackoff    time.Duration // First retry delay
	MaxBackoff        time.Duration // Cap for the exponential delay
	TransferTimeout   time.Duration // Bound on a single gateway call
	SweepInterval     time.Duration
	StaleAfter        time.Duration // SETTLING campaigns older than this are re-driven
	Operators         []string
	AutoBegin         bool
	SchedulerOperator string
	CampaignsPerSweep int
}

// TransferGatewayConfig points at the value-transfer rail.
type TransferGatewayConfig struct {
	URL       string
	APIKey    string
	RateLimit float64 // Requests per second
	Burst     int
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
	Port    int
}

// validate collects every violation instead of stopping at the first one.
func (c *Config) validate() error {
	var validationErrors []string

	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}

	if len(c.Kafka.Brokers) == 0 {
		validationErrors = append(validationErrors, "KAFKA_BROKERS is required")
	}
	if c.Kafka.CommandTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_COMMAND_TOPIC is required")
	}
	if c.Kafka.EventTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_EVENT_TOPIC is required")
	}
	if c.Kafka.ConsumerGroup == "" {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_GROUP is required")
	}
	if c.Kafka.MinBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MIN_BYTES must be greater than 0")
	}
	if c.Kafka.MaxBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_BYTES must be greater than 0")
	}
	if c.Kafka.MaxWait <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_WAIT must be greater than 0")
	}
	if c.Kafka.DLQTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_DLQ_TOPIC is required")
	}

	if c.Postgres.URL == "" {
		validationErrors = append(validationErrors, "POSTGRES_URL is required")
	}
	if c.Postgres.MaxConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be greater than 0")
	}
	if c.Postgres.MinConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS must be greater than 0")
	}
	if c.Postgres.ConnMaxLifetime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	}
	if c.Postgres.ConnMaxIdleTime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	if c.MongoDB.URI == "" {
		validationErrors = append(validationErrors, "MONGO_URI is required")
	}
	if c.MongoDB.Database == "" {
		validationErrors = append(validationErrors, "MONGO_DATABASE is required")
	}
	if c.MongoDB.Timeout <= 0 {
		validationErrors = append(validationErrors, "MONGO_TIMEOUT must be greater than 0")
	}
	if c.MongoDB.MaxPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MinPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MIN_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MaxConnIdleTime <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	if c.Redis.LockTTL <= 0 {
		validationErrors = append(validationErrors, "REDIS_LOCK_TTL must be greater than 0")
	}

	if c.Outbox.PollingInterval <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_POLLING_INTERVAL must be greater than 0")
	}
	if c.Outbox.BatchSize <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_BATCH_SIZE must be greater than 0")
	}
	if c.Outbox.MaxRetryAttempts <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_MAX_RETRY_ATTEMPTS must be greater than 0")
	}
	if c.Outbox.Retention < 0 {
		validationErrors = append(validationErrors, "OUTBOX_RETENTION cannot be negative")
	}

	if c.WorkerPool.Size <= 0 {
		validationErrors = append(validationErrors, "WORKER_POOL_SIZE must be greater than 0")
	}

	if c.Settlement.MaxAttempts <= 0 {
		validationErrors = append(validationErrors, "SETTLEMENT_MAX_ATTEMPTS must be greater than 0")
	}
	if c.Settlement.InitialBackoff <= 0 {
		validationErrors = append(validationErrors, "SETTLEMENT_INITIAL_BACKOFF must be greater than 0")
	}
	if c.Settlement.MaxBackoff < c.Settlement.InitialBackoff {
		validationErrors = append(validationErrors, "SETTLEMENT_MAX_BACKOFF must not be less than SETTLEMENT_INITIAL_BACKOFF")
	}
	if c.Settlement.TransferTimeout <= 0 {
		validationErrors = append(validationErrors, "SETTLEMENT_TRANSFER_TIMEOUT must be greater than 0")
	}
	if c.Settlement.SweepInterval <= 0 {
		validationErrors = append(validationErrors, "SETTLEMENT_SWEEP_INTERVAL must be greater than 0")
	}
	if c.Settlement.StaleAfter <= 0 {
		validationErrors = append(validationErrors, "SETTLEMENT_STALE_AFTER must be greater than 0")
	}
	if c.Settlement.CampaignsPerSweep <= 0 {
		validationErrors = append(validationErrors, "SETTLEMENT_CAMPAIGNS_PER_SWEEP must be greater than 0")
	}
	if c.Settlement.AutoBegin && c.Settlement.SchedulerOperator == "" {
		validationErrors = append(validationErrors, "SETTLEMENT_SCHEDULER_OPERATOR is required when SETTLEMENT_AUTO_BEGIN is enabled")
	}

	if c.TransferGateway.URL == "" {
		validationErrors = append(validationErrors, "TRANSFER_GATEWAY_URL is required")
	}
	if c.TransferGateway.RateLimit <= 0 {
		validationErrors = append(validationErrors, "TRANSFER_GATEWAY_RATE_LIMIT must be greater than 0")
	}
	if c.TransferGateway.Burst <= 0 {
		validationErrors = append(validationErrors, "TRANSFER_GATEWAY_BURST must be greater than 0")
	}

	if c.Metrics.Enabled && c.Metrics.Port <= 0 {
		validationErrors = append(validationErrors, "METRICS_PORT must be greater than 0")
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}

// splitList parses a comma separated value, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
