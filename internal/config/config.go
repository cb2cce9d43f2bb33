package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mercatto/checkout-service/internal/repository"
)

// Config is the full runtime configuration, sourced from the environment
// with development defaults.
type Config struct {
	HTTPPort        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	DB repository.Credentials

	RedisAddr     string
	RedisPassword string

	KafkaBrokers []string

	PaymentGatewayURL string
	PlatformFeeBps    int64
	PendingOrderTTL   time.Duration
}

func Load() (*Config, error) {
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	feeBps, err := strconv.ParseInt(getEnv("PLATFORM_FEE_BPS", "1000"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid PLATFORM_FEE_BPS: %w", err)
	}
	if feeBps < 0 || feeBps > 10000 {
		return nil, fmt.Errorf("PLATFORM_FEE_BPS must be within [0, 10000], got %d", feeBps)
	}

	pendingTTL, err := time.ParseDuration(getEnv("PENDING_ORDER_TTL", "30m"))
	if err != nil {
		return nil, fmt.Errorf("invalid PENDING_ORDER_TTL: %w", err)
	}

	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		DB: repository.Credentials{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              dbPort,
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", "postgres"),
			DBName:            getEnv("DB_NAME", "marketplace"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MigrationsDirPath: getEnv("MIGRATIONS_PATH", "./migrations"),
		},
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		KafkaBrokers:      strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		PaymentGatewayURL: getEnv("PAYMENT_GATEWAY_URL", "http://localhost:9090"),
		PlatformFeeBps:    feeBps,
		PendingOrderTTL:   pendingTTL,
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
