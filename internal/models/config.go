package models

import "time"

// Config is the full startup configuration of the service.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Events   EventsConfig
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
	CurrenciesFile  string
}

// DatabaseConfig selects and tunes the storage backend. The backend is
// decided once at startup; business logic never branches on it.
type DatabaseConfig struct {
	Backend         string // "sqlite" or "postgres"
	SQLitePath      string
	PostgresDSN     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// EventsConfig configures the optional Kafka publisher. With no brokers
// configured the service runs with a no-op publisher.
type EventsConfig struct {
	Brokers []string
	Topic   string
}
