package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server      ServerConfig
	Postgres    PostgresConfig
	Redis       RedisConfig
	Queue       QueueConfig
	Reservation ReservationConfig
	Env         string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host               string
	Port               int
	User               string
	Password           string
	DBName             string
	SSLMode            string
	MaxConns           int32
	MinConns           int32
	StatementTimeoutMS int
}

// RedisConfig holds Redis connection settings. URL takes precedence over
// the host/port pair when set.
type RedisConfig struct {
	URL      string
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
}

// QueueConfig holds the optional AMQP broker settings. An empty URL
// disables event publishing.
type QueueConfig struct {
	URL      string
	Exchange string
}

// ReservationConfig holds tunables for the reservation core.
type ReservationConfig struct {
	LockTTL              time.Duration
	LockRetryAttempts    int
	LockRetryBackoff     time.Duration
	MaxDaysAhead         int
	AvailabilityCacheTTL time.Duration
}

// DSN returns the PostgreSQL connection string.
func (p *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode,
	)
}

// Addr returns the Redis address in host:port format.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// ServerAddr returns the HTTP listen address in host:port format.
func (s *ServerConfig) ServerAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads configuration from environment variables and .env file.
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// ── Defaults ────────────────────────────────────────
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("PORT", 8080)
	viper.SetDefault("SERVER_READ_TIMEOUT", "5s")
	viper.SetDefault("SERVER_WRITE_TIMEOUT", "10s")
	viper.SetDefault("SERVER_IDLE_TIMEOUT", "120s")
	viper.SetDefault("APP_ENV", "development")

	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 5432)
	viper.SetDefault("DB_USER", "seatly")
	viper.SetDefault("DB_PASSWORD", "seatly_secret")
	viper.SetDefault("DB_NAME", "seatly_db")
	viper.SetDefault("DB_SSL", "disable")
	viper.SetDefault("DB_POOL_MAX", 50)
	viper.SetDefault("DB_POOL_MIN", 10)
	viper.SetDefault("DB_STATEMENT_TIMEOUT_MS", 5000)

	viper.SetDefault("REDIS_URL", "")
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", 6379)
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("REDIS_POOL_SIZE", 100)

	viper.SetDefault("AMQP_URL", "")
	viper.SetDefault("AMQP_EXCHANGE", "reservations")

	viper.SetDefault("RESERVATION_LOCK_TTL_SECONDS", 30)
	viper.SetDefault("RESERVATION_LOCK_RETRY_ATTEMPTS", 3)
	viper.SetDefault("RESERVATION_LOCK_RETRY_BACKOFF_MS", 100)
	viper.SetDefault("MAX_RESERVATION_DAYS_AHEAD", 90)
	viper.SetDefault("AVAILABILITY_CACHE_TTL_SECONDS", 300)

	// Try to read .env file. If it doesn't exist (e.g., inside Docker),
	// env vars injected by docker-compose env_file are used instead.
	_ = viper.ReadInConfig()

	cfg := &Config{Env: viper.GetString("APP_ENV")}

	// ── Server ──────────────────────────────────────────
	cfg.Server = ServerConfig{
		Host:         viper.GetString("SERVER_HOST"),
		Port:         viper.GetInt("PORT"),
		ReadTimeout:  viper.GetDuration("SERVER_READ_TIMEOUT"),
		WriteTimeout: viper.GetDuration("SERVER_WRITE_TIMEOUT"),
		IdleTimeout:  viper.GetDuration("SERVER_IDLE_TIMEOUT"),
	}

	// ── Postgres ────────────────────────────────────────
	cfg.Postgres = PostgresConfig{
		Host:               viper.GetString("DB_HOST"),
		Port:               viper.GetInt("DB_PORT"),
		User:               viper.GetString("DB_USER"),
		Password:           viper.GetString("DB_PASSWORD"),
		DBName:             viper.GetString("DB_NAME"),
		SSLMode:            viper.GetString("DB_SSL"),
		MaxConns:           viper.GetInt32("DB_POOL_MAX"),
		MinConns:           viper.GetInt32("DB_POOL_MIN"),
		StatementTimeoutMS: viper.GetInt("DB_STATEMENT_TIMEOUT_MS"),
	}

	// ── Redis ───────────────────────────────────────────
	cfg.Redis = RedisConfig{
		URL:      viper.GetString("REDIS_URL"),
		Host:     viper.GetString("REDIS_HOST"),
		Port:     viper.GetInt("REDIS_PORT"),
		Password: viper.GetString("REDIS_PASSWORD"),
		DB:       viper.GetInt("REDIS_DB"),
		PoolSize: viper.GetInt("REDIS_POOL_SIZE"),
	}

	// ── Queue ───────────────────────────────────────────
	cfg.Queue = QueueConfig{
		URL:      viper.GetString("AMQP_URL"),
		Exchange: viper.GetString("AMQP_EXCHANGE"),
	}

	// ── Reservation core ────────────────────────────────
	cfg.Reservation = ReservationConfig{
		LockTTL:              time.Duration(viper.GetInt("RESERVATION_LOCK_TTL_SECONDS")) * time.Second,
		LockRetryAttempts:    viper.GetInt("RESERVATION_LOCK_RETRY_ATTEMPTS"),
		LockRetryBackoff:     time.Duration(viper.GetInt("RESERVATION_LOCK_RETRY_BACKOFF_MS")) * time.Millisecond,
		MaxDaysAhead:         viper.GetInt("MAX_RESERVATION_DAYS_AHEAD"),
		AvailabilityCacheTTL: time.Duration(viper.GetInt("AVAILABILITY_CACHE_TTL_SECONDS")) * time.Second,
	}

	return cfg, nil
}
