// Package config loads server settings. Values come from built-in defaults,
// then an optional YAML file named by CONFIG_FILE, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/planning-poker/go/internal/dbconfig"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Event brokers.
const (
	BrokerLog   = "log"
	BrokerNATS  = "nats"
	BrokerStomp = "stomp"
)

type Config struct {
	Port      string `yaml:"port" env:"PORT"`
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT"`

	DealerOnly     bool     `yaml:"dealer_only" env:"DEALER_ONLY"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`

	Store   StoreConfig   `yaml:"store"`
	Events  EventsConfig  `yaml:"events"`
	Cleanup CleanupConfig `yaml:"cleanup"`
}

type StoreConfig struct {
	Driver     string        `yaml:"driver" env:"STORE_DRIVER"`
	SessionTTL time.Duration `yaml:"session_ttl" env:"SESSION_TTL"`

	RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"REDIS_DB"`

	Postgres dbconfig.Config `yaml:"postgres"`

	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH"`
}

type EventsConfig struct {
	Broker string `yaml:"broker" env:"EVENTS_BROKER"`
	Buffer int    `yaml:"buffer" env:"EVENTS_BUFFER"`

	NATSURL    string `yaml:"nats_url" env:"NATS_URL"`
	NATSStream string `yaml:"nats_stream" env:"NATS_STREAM"`

	StompAddr string `yaml:"stomp_addr" env:"STOMP_ADDR"`
	StompUser string `yaml:"stomp_user" env:"STOMP_USER"`
	StompPass string `yaml:"stomp_pass" env:"STOMP_PASS"`
}

type CleanupConfig struct {
	// Schedule is a cron spec; empty disables cleanup.
	Schedule string        `yaml:"schedule" env:"CLEANUP_SCHEDULE"`
	MaxAge   time.Duration `yaml:"max_age" env:"CLEANUP_MAX_AGE"`
}

// Default returns the settings used when nothing else is configured.
func Default() Config {
	return Config{
		Port:           "3333",
		LogLevel:       "info",
		LogFormat:      "console",
		DealerOnly:     true,
		AllowedOrigins: []string{"*"},
		Store: StoreConfig{
			Driver:     StoreMemory,
			SessionTTL: 24 * time.Hour,
			RedisAddr:  "localhost:6379",
			Postgres:   dbconfig.Default(),
			SQLitePath: "planning-poker.db",
		},
		Events: EventsConfig{
			Broker:     BrokerLog,
			Buffer:     1024,
			NATSURL:    "nats://localhost:4222",
			NATSStream: "POKER_EVENTS",
			StompAddr:  "localhost:61613",
		},
		Cleanup: CleanupConfig{
			Schedule: "@hourly",
			MaxAge:   24 * time.Hour,
		},
	}
}

// Load reads .env, the optional CONFIG_FILE and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}
	return LoadFile(os.Getenv("CONFIG_FILE"))
}

// LoadFile is Load without the .env step. An empty path skips the YAML layer.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.Port == "" {
		errs = append(errs, errors.New("PORT must not be empty"))
	}

	switch c.Store.Driver {
	case StoreMemory, StoreRedis, StorePostgres, StoreSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver))
	}
	if c.Store.Driver == StoreSQLite && c.Store.SQLitePath == "" {
		errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite store"))
	}

	switch c.Events.Broker {
	case BrokerLog, BrokerNATS, BrokerStomp:
	default:
		errs = append(errs, fmt.Errorf("unknown EVENTS_BROKER %q", c.Events.Broker))
	}
	if c.Events.Buffer <= 0 {
		errs = append(errs, errors.New("EVENTS_BUFFER must be positive"))
	}

	if c.Cleanup.Schedule != "" && c.Cleanup.MaxAge <= 0 {
		errs = append(errs, errors.New("CLEANUP_MAX_AGE must be positive"))
	}

	return errors.Join(errs...)
}
