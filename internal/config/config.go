// Package config provides configuration loading and management for dos-queue.
// It supports loading configuration from YAML files with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// QueueProvider names the backend that carries queue traffic.
type QueueProvider string

const (
	// ProviderRedis uses Redis Streams with a consumer group.
	ProviderRedis QueueProvider = "redis"
	// ProviderSQS uses an Amazon SQS (or compatible) queue.
	ProviderSQS QueueProvider = "sqs"
	// ProviderKafka uses a Kafka topic with a consumer group.
	ProviderKafka QueueProvider = "kafka"
	// ProviderPostgres uses a PostgreSQL table as a queue.
	ProviderPostgres QueueProvider = "postgres"
	// ProviderMemory uses an in-process queue. Useful for local development and tests.
	ProviderMemory QueueProvider = "memory"
)

// ErrUnknownProvider is returned when the configured provider is not supported.
var ErrUnknownProvider = errors.New("unsupported queue provider")

// IsValid returns true if the provider is one of the supported backends.
func (p QueueProvider) IsValid() bool {
	switch p {
	case ProviderRedis, ProviderSQS, ProviderKafka, ProviderPostgres, ProviderMemory:
		return true
	}
	return false
}

// Config represents the complete application configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Queue    QueueConfig    `yaml:"queue"`
	Server   ServerConfig   `yaml:"server"`
	Worker   WorkerConfig   `yaml:"worker"`
	Redis    RedisConfig    `yaml:"redis"`
	SQS      SQSConfig      `yaml:"sqs"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Postgres PostgresConfig `yaml:"postgres"`
	Memory   MemoryConfig   `yaml:"memory"`
	Logger   LoggerConfig   `yaml:"logger"`
}

// ServiceConfig identifies the running service in health responses.
type ServiceConfig struct {
	Name string `yaml:"name"`
}

// QueueConfig holds backend-independent queue settings.
type QueueConfig struct {
	Provider QueueProvider `yaml:"provider"`

	// BlockTimeout bounds how long Dequeue waits for a message.
	BlockTimeout time.Duration `yaml:"block_timeout"`

	// MaxMessageBytes rejects larger payloads at the API before they reach a backend.
	MaxMessageBytes int `yaml:"max_message_bytes"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// WorkerConfig holds worker process settings.
type WorkerConfig struct {
	// ProbePort exposes /healthz and /metrics for the worker. 0 disables it.
	ProbePort int `yaml:"probe_port"`
}

// RedisConfig holds Redis connection and stream settings.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	Stream string `yaml:"stream"`
	Group  string `yaml:"group"`

	// Consumer pins the consumer name. When empty each session mints its own.
	Consumer string `yaml:"consumer"`

	// ClaimMinIdle is how long a delivered entry may stay unacknowledged before
	// another consumer claims it. 0 selects the default of 5m; a negative
	// value disables claiming.
	ClaimMinIdle time.Duration `yaml:"claim_min_idle"`

	// MaxLen approximately trims the stream on XADD. 0 disables trimming.
	MaxLen int64 `yaml:"max_len"`
}

// SQSConfig holds Amazon SQS settings.
type SQSConfig struct {
	// EndpointURL overrides the service endpoint. Unset selects LocalStack on
	// localhost:4566; an explicit empty value leaves it to the AWS resolver.
	EndpointURL *string `yaml:"endpoint_url"`
	Port        int     `yaml:"port"`
	Region      string  `yaml:"region"`
	QueueName   string  `yaml:"queue_name"`
	QueueURL    string  `yaml:"queue_url"`

	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`

	// FIFO marks the queue as FIFO. When nil it is inferred from the queue name or URL.
	FIFO           *bool  `yaml:"fifo"`
	MessageGroupID string `yaml:"message_group_id"`

	// VisibilityTimeout in seconds; 0 keeps the queue's setting. Dequeue long
	// polls for queue.block_timeout.
	VisibilityTimeout int32 `yaml:"visibility_timeout"`

	// PoolSize bounds the number of concurrent SDK calls.
	PoolSize int `yaml:"pool_size"`
}

// KafkaConfig holds Kafka connection and topic settings.
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	Topic         string   `yaml:"topic"`
	ConsumerGroup string   `yaml:"consumer_group"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int32  `yaml:"max_open_conns"`
	MaxIdleConns int32  `yaml:"max_idle_conns"`

	Table             string        `yaml:"table"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	PollInterval      time.Duration `yaml:"poll_interval"`
}

// MemoryConfig holds settings for the in-process queue.
type MemoryConfig struct {
	Capacity          int           `yaml:"capacity"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// Load reads configuration from the specified YAML file path, then applies
// environment overrides and defaults. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		// Clean the path to prevent path traversal attacks
		cleanPath := filepath.Clean(path)
		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	// Apply defaults for any unset values
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration can start the selected backend.
// It runs once at startup so a bad provider never reaches request handling.
func (c *Config) Validate() error {
	if !c.Queue.Provider.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, c.Queue.Provider)
	}

	switch c.Queue.Provider {
	case ProviderRedis:
		if c.Redis.Stream == "" || c.Redis.Group == "" {
			return errors.New("redis queue requires stream and group")
		}
	case ProviderSQS:
		if c.SQS.QueueName == "" && c.SQS.QueueURL == "" {
			return errors.New("sqs queue requires queue_name or queue_url")
		}
	case ProviderKafka:
		if len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "" {
			return errors.New("kafka queue requires brokers and topic")
		}
	case ProviderPostgres:
		if c.Postgres.Database == "" {
			return errors.New("postgres queue requires database")
		}
	}

	if c.Queue.BlockTimeout <= 0 {
		return errors.New("queue block_timeout must be positive")
	}

	return nil
}

// applyDefaults sets sensible default values for configuration fields
// that are not explicitly set in the config file.
func applyDefaults(cfg *Config) {
	if cfg.Service.Name == "" {
		cfg.Service.Name = "dos-queue"
	}

	// Queue defaults
	if cfg.Queue.Provider == "" {
		cfg.Queue.Provider = ProviderMemory
	}
	if cfg.Queue.BlockTimeout == 0 {
		cfg.Queue.BlockTimeout = time.Second
	}
	if cfg.Queue.MaxMessageBytes == 0 {
		cfg.Queue.MaxMessageBytes = 1 << 20
	}

	// Server defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}

	// Redis defaults
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.Stream == "" {
		cfg.Redis.Stream = "my-stream"
	}
	if cfg.Redis.Group == "" {
		cfg.Redis.Group = "my-group"
	}
	if cfg.Redis.ClaimMinIdle == 0 {
		cfg.Redis.ClaimMinIdle = 5 * time.Minute
	}

	// SQS defaults
	if cfg.SQS.EndpointURL == nil {
		localstack := "http://localhost"
		cfg.SQS.EndpointURL = &localstack
		if cfg.SQS.Port == 0 {
			cfg.SQS.Port = 4566
		}
	}
	if cfg.SQS.Region == "" {
		cfg.SQS.Region = "us-east-1"
	}
	if cfg.SQS.MessageGroupID == "" {
		cfg.SQS.MessageGroupID = "default"
	}
	if cfg.SQS.PoolSize == 0 {
		cfg.SQS.PoolSize = 10
	}

	// Kafka defaults
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{"localhost:9092"}
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "dos-tasks"
	}
	if cfg.Kafka.ConsumerGroup == "" {
		cfg.Kafka.ConsumerGroup = "dos-workers"
	}

	// Postgres defaults
	if cfg.Postgres.Host == "" {
		cfg.Postgres.Host = "localhost"
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = "disable"
	}
	if cfg.Postgres.MaxOpenConns == 0 {
		cfg.Postgres.MaxOpenConns = 25
	}
	if cfg.Postgres.MaxIdleConns == 0 {
		cfg.Postgres.MaxIdleConns = 5
	}
	if cfg.Postgres.Table == "" {
		cfg.Postgres.Table = "queue_messages"
	}
	if cfg.Postgres.VisibilityTimeout == 0 {
		cfg.Postgres.VisibilityTimeout = 30 * time.Second
	}
	if cfg.Postgres.PollInterval == 0 {
		cfg.Postgres.PollInterval = 100 * time.Millisecond
	}

	// Memory defaults
	if cfg.Memory.Capacity == 0 {
		cfg.Memory.Capacity = 10000
	}
	if cfg.Memory.VisibilityTimeout == 0 {
		cfg.Memory.VisibilityTimeout = 30 * time.Second
	}

	// Logger defaults
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.Format == "" {
		cfg.Logger.Format = "json"
	}
}

// Address returns the full server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RedisAddr returns the Redis address in host:port format.
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Endpoint returns the SQS endpoint with its port, e.g. http://localhost:4566.
// It returns an empty string when no endpoint override is configured.
func (c *SQSConfig) Endpoint() string {
	if c.EndpointURL == nil || *c.EndpointURL == "" {
		return ""
	}
	if c.Port == 0 {
		return *c.EndpointURL
	}
	return fmt.Sprintf("%s:%d", strings.TrimSuffix(*c.EndpointURL, "/"), c.Port)
}

// IsFIFO reports whether the queue is a FIFO queue.
func (c *SQSConfig) IsFIFO() bool {
	if c.FIFO != nil {
		return *c.FIFO
	}
	return strings.HasSuffix(c.QueueName, ".fifo") || strings.HasSuffix(c.QueueURL, ".fifo")
}

// DSN returns the PostgreSQL connection string.
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode, c.MaxOpenConns,
	)
}
