package config

import (
	"fmt"
	"os"
	"time"
)

const (
	ServiceName    = "purchase-service"
	ServiceVersion = "0.1.0"
)

const (
	PurchaseRequestedTopic = "PurchaseRequested"
	PurchaseOutcomeTopic   = "PurchaseOutcome"
	GroupID                = "purchase-service-group"
	BatchTimeout           = 10 * time.Millisecond
	BatchSize              = 100
)

const (
	LogsPath      = "/otlp/v1/logs"   // Grafana Cloud OTLP path
	TracesPath    = "/otlp/v1/traces" // Grafana Cloud OTLP path
	ExportTimeout = 30 * time.Second
	MaxQueueSize  = 2048
)

const (
	defaultHTTPAddr        = ":8080"
	defaultCartTTL         = 24 * time.Hour
	defaultRequestTimeout  = 30 * time.Second
	defaultCommitTimeout   = 10 * time.Second
	defaultShutdownTimeout = 20 * time.Second
)

type Config struct {
	KafkaBroker    string
	OtelEndpoint   string
	OtelAuthHeader string

	HTTPAddr string

	// DatabaseURL selects the Postgres stores; empty keeps everything in memory.
	DatabaseURL string
	// RedisURL selects the Redis cart store; empty keeps carts in memory.
	RedisURL string

	CartTTL         time.Duration
	RequestTimeout  time.Duration
	CommitTimeout   time.Duration
	ShutdownTimeout time.Duration
}

func LoadConfig() (*Config, error) {
	config := &Config{
		KafkaBroker:    os.Getenv("KAFKA_BROKER"),
		OtelEndpoint:   os.Getenv("OTEL_ENDPOINT"),
		OtelAuthHeader: os.Getenv("OTEL_AUTH_HEADER"),
		HTTPAddr:       getenv("HTTP_ADDR", defaultHTTPAddr),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
	}

	if config.KafkaBroker == "" {
		return nil, fmt.Errorf("KAFKA_BROKER environment variable is required")
	}
	if config.OtelEndpoint == "" {
		return nil, fmt.Errorf("OTEL_ENDPOINT environment variable is required")
	}

	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"CART_TTL", defaultCartTTL, &config.CartTTL},
		{"REQUEST_TIMEOUT", defaultRequestTimeout, &config.RequestTimeout},
		{"COMMIT_TIMEOUT", defaultCommitTimeout, &config.CommitTimeout},
		{"SHUTDOWN_TIMEOUT", defaultShutdownTimeout, &config.ShutdownTimeout},
	}
	for _, d := range durations {
		v, err := durationEnv(d.key, d.def)
		if err != nil {
			return nil, err
		}
		*d.dest = v
	}

	return config, nil
}

// OtelHeaders returns the exporter headers; no Authorization header is sent
// when OTEL_AUTH_HEADER is unset.
func (c *Config) OtelHeaders() map[string]string {
	if c.OtelAuthHeader == "" {
		return nil
	}
	return map[string]string{"Authorization": c.OtelAuthHeader}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}
