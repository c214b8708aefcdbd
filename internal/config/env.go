package config

import (
	"fmt"
	"strconv"
	"strings"
)

// lookupFunc matches os.LookupEnv so tests can supply their own environment.
type lookupFunc func(key string) (string, bool)

// applyEnv overlays environment variables on top of the file configuration.
// Variable names follow the settings used by the rest of the dos services.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
		return nil
	}

	var provider string
	str("QUEUE_PROVIDER", &provider)
	if provider != "" {
		cfg.Queue.Provider = QueueProvider(strings.ToLower(provider))
	}

	str("SERVICE_NAME", &cfg.Service.Name)
	str("LOG_LEVEL", &cfg.Logger.Level)
	str("LOG_FORMAT", &cfg.Logger.Format)

	str("REDIS_HOST", &cfg.Redis.Host)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	str("REDIS_STREAM", &cfg.Redis.Stream)
	str("REDIS_GROUP", &cfg.Redis.Group)
	str("REDIS_CONSUMER", &cfg.Redis.Consumer)

	// Set but empty means the AWS endpoint resolver.
	if v, ok := lookup("SQS_ENDPOINT_URL"); ok {
		cfg.SQS.EndpointURL = &v
	}
	str("SQS_REGION", &cfg.SQS.Region)
	str("SQS_QUEUE_NAME", &cfg.SQS.QueueName)
	str("SQS_QUEUE_URL", &cfg.SQS.QueueURL)
	str("AWS_ACCESS_KEY_ID", &cfg.SQS.AccessKeyID)
	str("AWS_SECRET_ACCESS_KEY", &cfg.SQS.SecretAccessKey)

	str("KAFKA_TOPIC", &cfg.Kafka.Topic)
	str("KAFKA_GROUP", &cfg.Kafka.ConsumerGroup)
	var brokers string
	str("KAFKA_BROKERS", &brokers)
	if brokers != "" {
		cfg.Kafka.Brokers = nil
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.Kafka.Brokers = append(cfg.Kafka.Brokers, b)
			}
		}
	}

	str("POSTGRES_HOST", &cfg.Postgres.Host)
	str("POSTGRES_USER", &cfg.Postgres.User)
	str("POSTGRES_PASSWORD", &cfg.Postgres.Password)
	str("POSTGRES_DB", &cfg.Postgres.Database)

	for key, dst := range map[string]*int{
		"REDIS_PORT":        &cfg.Redis.Port,
		"REDIS_DB":          &cfg.Redis.DB,
		"SQS_PORT":          &cfg.SQS.Port,
		"POSTGRES_PORT":     &cfg.Postgres.Port,
		"SERVER_PORT":       &cfg.Server.Port,
		"WORKER_PROBE_PORT": &cfg.Worker.ProbePort,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}

	return nil
}
