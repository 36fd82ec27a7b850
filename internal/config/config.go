// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"srf-carbon/pkg/database"
)

// Config is the complete service configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Logging    LoggingConfig
	RateLimit  RateLimitConfig
	CORS       CORSConfig
	Simulation SimulationConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Enabled         bool
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	MigrationsPath  string
}

type RedisConfig struct {
	Enabled  bool
	URL      string
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type LoggingConfig struct {
	Level string
}

type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	BurstSize         int
}

type CORSConfig struct {
	AllowedOrigins []string
	Debug          bool
}

// SimulationConfig bounds what a single API request may ask for
type SimulationConfig struct {
	DefaultSeed    int64
	MaxHorizon     int
	MaxTrees       int
	Workers        int
	MaxEvaluations int
}

// LoadConfig reads an optional .env file, then the process environment.
// Unset variables fall back to development defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from environment variables only.
func FromEnv() (*Config, error) {
	var errs []error
	e := env{errs: &errs}

	cfg := &Config{
		Server: ServerConfig{
			Host:         e.str("SERVER_HOST", "0.0.0.0"),
			Port:         e.int("SERVER_PORT", 8080),
			ReadTimeout:  e.seconds("SERVER_READ_TIMEOUT_SECONDS", 15),
			WriteTimeout: e.seconds("SERVER_WRITE_TIMEOUT_SECONDS", 60),
			IdleTimeout:  e.seconds("SERVER_IDLE_TIMEOUT_SECONDS", 60),
		},
		Database: DatabaseConfig{
			Enabled:         e.bool("DB_ENABLED", true),
			Host:            e.str("DB_HOST", "localhost"),
			Port:            e.int("DB_PORT", 5432),
			User:            e.str("DB_USER", "postgres"),
			Password:        e.str("DB_PASSWORD", "postgres"),
			Database:        e.str("DB_NAME", "srf_carbon"),
			SSLMode:         e.str("DB_SSLMODE", "disable"),
			MaxOpenConns:    e.int("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    e.int("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: time.Duration(e.int("DB_CONN_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			ConnMaxIdleTime: time.Duration(e.int("DB_CONN_MAX_IDLE_MINUTES", 1)) * time.Minute,
			MigrationsPath:  e.str("DB_MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Enabled:  e.bool("REDIS_ENABLED", false),
			URL:      e.str("REDIS_URL", ""),
			Addr:     e.str("REDIS_ADDR", "localhost:6379"),
			Password: e.str("REDIS_PASSWORD", ""),
			DB:       e.int("REDIS_DB", 0),
			TTL:      time.Duration(e.int("REDIS_FIT_TTL_HOURS", 24)) * time.Hour,
		},
		Logging: LoggingConfig{
			Level: strings.ToLower(e.str("LOG_LEVEL", "info")),
		},
		RateLimit: RateLimitConfig{
			Enabled:           e.bool("RATE_LIMIT_ENABLED", true),
			RequestsPerSecond: e.float("RATE_LIMIT_REQUESTS_PER_SECOND", 2),
			BurstSize:         e.int("RATE_LIMIT_BURST_SIZE", 5),
		},
		CORS: CORSConfig{
			AllowedOrigins: e.list("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			Debug:          e.bool("CORS_DEBUG", false),
		},
		Simulation: SimulationConfig{
			DefaultSeed:    int64(e.int("SIMULATION_DEFAULT_SEED", 42)),
			MaxHorizon:     e.int("SIMULATION_MAX_HORIZON_YEARS", 500),
			MaxTrees:       e.int("SIMULATION_MAX_TREES", 1_000_000),
			Workers:        e.int("SIMULATION_WORKERS", 1),
			MaxEvaluations: e.int("FIT_MAX_EVALUATIONS", 10000),
		},
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail at first use
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT %d is out of range", c.Server.Port)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("DB_MAX_IDLE_CONNS (%d) exceeds DB_MAX_OPEN_CONNS (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.BurstSize <= 0) {
		return fmt.Errorf("rate limit needs positive RATE_LIMIT_REQUESTS_PER_SECOND and RATE_LIMIT_BURST_SIZE")
	}
	if c.Simulation.MaxHorizon <= 0 {
		return fmt.Errorf("SIMULATION_MAX_HORIZON_YEARS must be positive")
	}
	if c.Simulation.MaxTrees <= 0 {
		return fmt.Errorf("SIMULATION_MAX_TREES must be positive")
	}
	if c.Simulation.Workers < 1 {
		return fmt.Errorf("SIMULATION_WORKERS must be at least 1")
	}
	if c.Simulation.MaxEvaluations <= 0 {
		return fmt.Errorf("FIT_MAX_EVALUATIONS must be positive")
	}
	return nil
}

// ConnectionString returns the lib/pq DSN for the database section
func (c *DatabaseConfig) ConnectionString() string {
	return c.Postgres().DSN()
}

// Postgres returns the connection settings for pkg/database
func (c *DatabaseConfig) Postgres() *database.Config {
	return &database.Config{
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		Password:        c.Password,
		Database:        c.Database,
		SSLMode:         c.SSLMode,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
	}
}

// env reads typed variables and collects parse failures.
type env struct {
	errs *[]error
}

func (e env) str(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func (e env) int(key string, fallback int) int {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*e.errs = append(*e.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return fallback
	}
	return n
}

func (e env) float(key string, fallback float64) float64 {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*e.errs = append(*e.errs, fmt.Errorf("%s: %q is not a number", key, v))
		return fallback
	}
	return f
}

func (e env) bool(key string, fallback bool) bool {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*e.errs = append(*e.errs, fmt.Errorf("%s: %q is not a boolean", key, v))
		return fallback
	}
	return b
}

func (e env) seconds(key string, fallback int) time.Duration {
	return time.Duration(e.int(key, fallback)) * time.Second
}

func (e env) list(key string, fallback []string) []string {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
