package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends accepted by STORAGE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// DefaultEntryTTL is the liveness window refreshed on every registry write (about one year).
const DefaultEntryTTL = 365 * 24 * time.Hour

// Server captures the registry process configuration.
type Server struct {
	Addr        string
	Environment string
	LogLevel    string

	StorageBackend string
	EntryTTL       time.Duration

	// ReputationRulesFile optionally replaces the built-in scoring table.
	ReputationRulesFile string

	Auth     AuthConfig
	Redis    RedisConfig
	Database DatabaseConfig
	Kafka    KafkaConfig
}

// AuthConfig configures caller token validation.
type AuthConfig struct {
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	TokenTTL      time.Duration
}

// RedisConfig configures the Redis storage backend.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig configures the PostgreSQL storage backend.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// KafkaConfig configures registry notifications. Empty Brokers disables publishing.
type KafkaConfig struct {
	Brokers         string
	TopicPrefix     string
	Acks            string
	Retries         int
	DeliveryTimeout time.Duration
}

// IsProduction reports whether dev-only defaults must be rejected.
func (s Server) IsProduction() bool {
	return s.Environment == "production"
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:                envOr("ATTESTRY_ADDR", ":8080"),
		Environment:         envOr("ENVIRONMENT", "development"),
		LogLevel:            envOr("LOG_LEVEL", "info"),
		StorageBackend:      strings.ToLower(envOr("STORAGE_BACKEND", BackendMemory)),
		ReputationRulesFile: os.Getenv("REPUTATION_RULES_FILE"),
		Auth: AuthConfig{
			// Use a default for development - must be overridden in production
			JWTSigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			JWTIssuer:     envOr("JWT_ISSUER", "attestry"),
			JWTAudience:   envOr("JWT_AUDIENCE", "attestry-registry"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Kafka: KafkaConfig{
			Brokers:     os.Getenv("KAFKA_BROKERS"),
			TopicPrefix: envOr("KAFKA_TOPIC_PREFIX", "attestry."),
			Acks:        envOr("KAFKA_ACKS", "all"),
		},
	}

	var err error
	if cfg.EntryTTL, err = envDuration("ENTRY_TTL", DefaultEntryTTL); err != nil {
		return Server{}, err
	}
	if cfg.Auth.TokenTTL, err = envDuration("TOKEN_TTL", 15*time.Minute); err != nil {
		return Server{}, err
	}

	if cfg.Redis.PoolSize, err = envInt("REDIS_POOL_SIZE", 10); err != nil {
		return Server{}, err
	}
	if cfg.Redis.MinIdleConns, err = envInt("REDIS_MIN_IDLE_CONNS", 2); err != nil {
		return Server{}, err
	}
	if cfg.Redis.DialTimeout, err = envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Redis.ReadTimeout, err = envDuration("REDIS_READ_TIMEOUT", 3*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.Redis.WriteTimeout, err = envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second); err != nil {
		return Server{}, err
	}

	if cfg.Database.MaxOpenConns, err = envInt("DB_MAX_OPEN_CONNS", 25); err != nil {
		return Server{}, err
	}
	if cfg.Database.MaxIdleConns, err = envInt("DB_MAX_IDLE_CONNS", 5); err != nil {
		return Server{}, err
	}
	if cfg.Database.ConnMaxLifetime, err = envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute); err != nil {
		return Server{}, err
	}

	if cfg.Kafka.Retries, err = envInt("KAFKA_RETRIES", 3); err != nil {
		return Server{}, err
	}
	if cfg.Kafka.DeliveryTimeout, err = envDuration("KAFKA_DELIVERY_TIMEOUT", 30*time.Second); err != nil {
		return Server{}, err
	}

	return cfg, cfg.Validate()
}

// Validate rejects combinations the server cannot start with.
func (s Server) Validate() error {
	switch s.StorageBackend {
	case BackendMemory:
	case BackendRedis:
		if s.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis backend")
		}
	case BackendPostgres:
		if s.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", s.StorageBackend)
	}
	if s.EntryTTL <= 0 {
		return fmt.Errorf("ENTRY_TTL must be positive")
	}
	if s.IsProduction() && s.Auth.JWTSigningKey == "dev-secret-key-change-in-production" {
		return fmt.Errorf("JWT_SIGNING_KEY must be set in production")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
