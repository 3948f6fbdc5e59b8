package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"demobank/internal/models"
)

func Load() (*models.Config, error) {
	shutdownTimeout, err := getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	backend := getEnvString("DB_BACKEND", "sqlite")
	switch backend {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("invalid DB_BACKEND %q: must be sqlite or postgres", backend)
	}

	return &models.Config{
		Server: models.ServerConfig{
			Port:            getEnvString("SERVER_PORT", "8080"),
			ShutdownTimeout: shutdownTimeout,
			CurrenciesFile:  getEnvString("CURRENCIES_FILE", "currencies.yaml"),
		},
		Database: models.DatabaseConfig{
			Backend:         backend,
			SQLitePath:      getEnvString("DATABASE_PATH", "demobank.db"),
			PostgresDSN:     getEnvString("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		Events: models.EventsConfig{
			Brokers: getEnvStringSlice("KAFKA_BROKERS"),
			Topic:   getEnvString("KAFKA_TOPIC", "demobank.transactions"),
		},
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvStringSlice(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
