package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func envMap(m map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := &Config{}
	if err := applyEnv(cfg, envMap(nil)); err != nil {
		t.Fatalf("applyEnv error: %v", err)
	}
	applyDefaults(cfg)

	if cfg.Queue.Provider != ProviderMemory {
		t.Errorf("Provider = %v, want memory", cfg.Queue.Provider)
	}
	if cfg.Queue.BlockTimeout != time.Second {
		t.Errorf("BlockTimeout = %v, want 1s", cfg.Queue.BlockTimeout)
	}
	if cfg.Redis.Stream != "my-stream" || cfg.Redis.Group != "my-group" {
		t.Errorf("Redis stream/group = %s/%s, want my-stream/my-group", cfg.Redis.Stream, cfg.Redis.Group)
	}
	if cfg.SQS.Endpoint() != "http://localhost:4566" {
		t.Errorf("SQS endpoint = %s, want http://localhost:4566", cfg.SQS.Endpoint())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestApplyEnv_Overrides(t *testing.T) {
	cfg := &Config{}
	err := applyEnv(cfg, envMap(map[string]string{
		"QUEUE_PROVIDER": "SQS",
		"SQS_QUEUE_NAME": "tasks.fifo",
		"SQS_PORT":       "4567",
		"REDIS_PORT":     "6380",
		"KAFKA_BROKERS":  "k1:9092, k2:9092",
	}))
	if err != nil {
		t.Fatalf("applyEnv error: %v", err)
	}
	applyDefaults(cfg)

	if cfg.Queue.Provider != ProviderSQS {
		t.Errorf("Provider = %v, want sqs", cfg.Queue.Provider)
	}
	if cfg.SQS.Port != 4567 {
		t.Errorf("SQS port = %d, want 4567", cfg.SQS.Port)
	}
	if cfg.Redis.Port != 6380 {
		t.Errorf("Redis port = %d, want 6380", cfg.Redis.Port)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("Kafka brokers = %v", cfg.Kafka.Brokers)
	}
	if !cfg.SQS.IsFIFO() {
		t.Error("queue ending in .fifo should be FIFO")
	}
}

func TestApplyEnv_InvalidNumber(t *testing.T) {
	cfg := &Config{}
	if err := applyEnv(cfg, envMap(map[string]string{"REDIS_PORT": "abc"})); err == nil {
		t.Fatal("expected error for non-numeric port")
	}
}

func TestValidate_UnknownProvider(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Queue.Provider = "rabbitmq"

	err := cfg.Validate()
	if !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("Validate() error = %v, want ErrUnknownProvider", err)
	}
}

func TestValidate_SQSRequiresQueue(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Queue.Provider = ProviderSQS

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when neither queue name nor url is set")
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
queue:
  provider: redis
  block_timeout: 2s
redis:
  host: cache
  stream: jobs
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("QUEUE_PROVIDER", "")
	t.Setenv("REDIS_HOST", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Queue.Provider != ProviderRedis {
		t.Errorf("Provider = %v, want redis", cfg.Queue.Provider)
	}
	if cfg.Queue.BlockTimeout != 2*time.Second {
		t.Errorf("BlockTimeout = %v, want 2s", cfg.Queue.BlockTimeout)
	}
	if cfg.Redis.RedisAddr() != "cache:6379" {
		t.Errorf("RedisAddr = %s, want cache:6379", cfg.Redis.RedisAddr())
	}
	if cfg.Redis.Stream != "jobs" || cfg.Redis.Group != "my-group" {
		t.Errorf("stream/group = %s/%s", cfg.Redis.Stream, cfg.Redis.Group)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_SQSDefaultResolver(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
queue:
  provider: sqs
sqs:
  endpoint_url: ""
  queue_name: tasks
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if got := cfg.SQS.Endpoint(); got != "" {
		t.Errorf("Endpoint = %q, want empty for the AWS resolver", got)
	}
	if cfg.SQS.Port != 0 {
		t.Errorf("Port = %d, want 0 when the endpoint is not defaulted", cfg.SQS.Port)
	}
}

func TestApplyEnv_SQSEndpoint(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unset uses localstack", nil, "http://localhost:4566"},
		{"empty uses aws resolver", map[string]string{"SQS_ENDPOINT_URL": ""}, ""},
		{"url without port", map[string]string{"SQS_ENDPOINT_URL": "https://sqs.eu-west-1.amazonaws.com"}, "https://sqs.eu-west-1.amazonaws.com"},
		{"url with port", map[string]string{"SQS_ENDPOINT_URL": "http://sqs", "SQS_PORT": "9324"}, "http://sqs:9324"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			if err := applyEnv(cfg, envMap(tt.env)); err != nil {
				t.Fatalf("applyEnv error: %v", err)
			}
			applyDefaults(cfg)

			if got := cfg.SQS.Endpoint(); got != tt.want {
				t.Errorf("Endpoint = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestApplyDefaults_ClaimMinIdle(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if cfg.Redis.ClaimMinIdle != 5*time.Minute {
		t.Errorf("ClaimMinIdle = %v, want 5m", cfg.Redis.ClaimMinIdle)
	}

	cfg = &Config{Redis: RedisConfig{ClaimMinIdle: -1}}
	applyDefaults(cfg)
	if cfg.Redis.ClaimMinIdle >= 0 {
		t.Errorf("ClaimMinIdle = %v, want a negative value to stay disabled", cfg.Redis.ClaimMinIdle)
	}
}
