// Package config содержит логику чтения конфигурации сервиса аренды автомобилей.
package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultRunAddress        = "localhost:8080"
	defaultJWTSecret         = "carrental-secret"
	defaultTokenTTL          = 720 * time.Hour
	defaultKafkaTopic        = "rent-events"
	defaultStorageTimeout    = 3 * time.Second
	defaultReconcileSchedule = "0 */10 * * * *"
)

// Config содержит параметры конфигурации сервиса аренды.
type Config struct {
	RunAddress        string        `env:"RUN_ADDRESS"`
	DatabaseURI       string        `env:"DATABASE_URI"`
	JWTSecret         string        `env:"JWT_SECRET"`
	TokenTTL          time.Duration `env:"TOKEN_TTL"`
	RedisAddress      string        `env:"REDIS_ADDRESS"`
	KafkaBrokers      string        `env:"KAFKA_BROKERS"`
	KafkaTopic        string        `env:"KAFKA_TOPIC"`
	StorageTimeout    time.Duration `env:"STORAGE_TIMEOUT"`
	ReconcileSchedule string        `env:"RECONCILE_SCHEDULE"`
	LogLevel          string        `env:"LOG_LEVEL"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{
		KafkaTopic:        defaultKafkaTopic,
		StorageTimeout:    defaultStorageTimeout,
		ReconcileSchedule: defaultReconcileSchedule,
		LogLevel:          "info",
	}

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, in-memory storage if empty")
	flag.StringVar(&cfg.JWTSecret, "s", defaultJWTSecret, "secret for signing session tokens")
	flag.DurationVar(&cfg.TokenTTL, "t", defaultTokenTTL, "session token lifetime")
	flag.StringVar(&cfg.RedisAddress, "r", "", "redis address for session storage")
	flag.StringVar(&cfg.KafkaBrokers, "k", "", "comma separated kafka brokers for rent events")

	flag.Parse()

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret must not be empty")
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", cfg.TokenTTL)
	}
	if cfg.StorageTimeout <= 0 {
		cfg.StorageTimeout = defaultStorageTimeout
	}

	return cfg, nil
}

// Brokers возвращает список брокеров Kafka. Пустой список отключает публикацию событий.
func (c *Config) Brokers() []string {
	var res []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			res = append(res, b)
		}
	}
	return res
}
