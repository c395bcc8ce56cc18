package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env         string `yaml:"env" env:"APP_ENV" env-default:"local"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME" env-default:"storefront-api"`

	HTTP      HTTP      `yaml:"http"`
	Postgres  Postgres  `yaml:"postgres"`
	Redis     Redis     `yaml:"redis"`
	Kafka     Kafka     `yaml:"kafka"`
	Checkout  Checkout  `yaml:"checkout"`
	Relay     Relay     `yaml:"relay"`
	Telemetry Telemetry `yaml:"telemetry"`
}

type HTTP struct {
	Addr            string        `yaml:"addr" env:"HTTP_ADDR" env-default:":8081"`
	RequestTimeout  time.Duration `yaml:"request_timeout" env:"HTTP_REQUEST_TIMEOUT" env-default:"5s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"5s"`
}

// Postgres with an empty DSN makes the API run on the in-memory store.
type Postgres struct {
	DSN            string `yaml:"dsn" env:"POSTGRES_DSN"`
	MaxConns       int32  `yaml:"max_conns" env:"POSTGRES_MAX_CONNS" env-default:"8"`
	MinConns       int32  `yaml:"min_conns" env:"POSTGRES_MIN_CONNS" env-default:"1"`
	MigrateOnStart bool   `yaml:"migrate_on_start" env:"POSTGRES_MIGRATE" env-default:"true"`
}

// Redis with an empty Addr disables caching and idempotency keys.
type Redis struct {
	Addr           string        `yaml:"addr" env:"REDIS_ADDR"`
	ProductTTL     time.Duration `yaml:"product_ttl" env:"REDIS_PRODUCT_TTL" env-default:"60s"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl" env:"REDIS_IDEMPOTENCY_TTL" env-default:"24h"`
	DedupTTL       time.Duration `yaml:"dedup_ttl" env:"REDIS_DEDUP_TTL" env-default:"24h"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:"," env-default:"kafka:9092"`
	Group   string   `yaml:"group" env:"KAFKA_GROUP" env-default:"storefront-projector"`
	Workers int      `yaml:"workers" env:"KAFKA_WORKERS" env-default:"4"`
}

type Checkout struct {
	ReferenceAttempts int `yaml:"reference_attempts" env:"CHECKOUT_REFERENCE_ATTEMPTS" env-default:"5"`
}

type Relay struct {
	BatchSize       int           `yaml:"batch_size" env:"RELAY_BATCH_SIZE" env-default:"50"`
	Interval        time.Duration `yaml:"interval" env:"RELAY_INTERVAL" env-default:"500ms"`
	BreakerFailures uint32        `yaml:"breaker_failures" env:"RELAY_BREAKER_FAILURES" env-default:"5"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout" env:"RELAY_BREAKER_TIMEOUT" env-default:"10s"`
}

type Telemetry struct {
	// OTLPEndpoint is host:port of an OTLP/HTTP collector. Empty disables export.
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure     bool   `yaml:"insecure" env:"OTEL_EXPORTER_OTLP_INSECURE" env-default:"true"`
}

// Load reads CONFIG_PATH when set, environment variables otherwise.
// Environment variables override file values.
func Load() (Config, error) {
	var cfg Config
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		return cfg, nil
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	return cfg, nil
}
