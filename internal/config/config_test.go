package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/joho/godotenv"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.ConnMaxLifetime != 5*time.Minute {
		t.Errorf("Database.ConnMaxLifetime = %v, want 5m", cfg.Database.ConnMaxLifetime)
	}
	if cfg.Simulation.MaxEvaluations != 10000 {
		t.Errorf("Simulation.MaxEvaluations = %d, want 10000", cfg.Simulation.MaxEvaluations)
	}
	if cfg.Redis.Enabled {
		t.Error("Redis.Enabled = true, want false by default")
	}
	if !cfg.Database.Enabled {
		t.Error("Database.Enabled = false, want true by default")
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SERVER_READ_TIMEOUT_SECONDS", "3")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("RATE_LIMIT_REQUESTS_PER_SECOND", "0.5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("SIMULATION_DEFAULT_SEED", "7")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 3*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 3s", cfg.Server.ReadTimeout)
	}
	if !cfg.Redis.Enabled {
		t.Error("Redis.Enabled = false, want true")
	}
	if cfg.RateLimit.RequestsPerSecond != 0.5 {
		t.Errorf("RateLimit.RequestsPerSecond = %v, want 0.5", cfg.RateLimit.RequestsPerSecond)
	}
	want := []string{"https://a.example", "https://b.example"}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, want) {
		t.Errorf("CORS.AllowedOrigins = %v, want %v", cfg.CORS.AllowedOrigins, want)
	}
	if cfg.Simulation.DefaultSeed != 7 {
		t.Errorf("Simulation.DefaultSeed = %d, want 7", cfg.Simulation.DefaultSeed)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestFromEnv_ParseErrors(t *testing.T) {
	t.Setenv("SERVER_PORT", "eighty")
	t.Setenv("REDIS_ENABLED", "sometimes")

	_, err := FromEnv()
	if err == nil {
		t.Fatal("FromEnv() error = nil, want parse errors")
	}
	for _, key := range []string{"SERVER_PORT", "REDIS_ENABLED"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("FromEnv() error = %v, want mention of %s", err, key)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"missing db host", func(c *Config) { c.Database.Host = "" }},
		{"idle above open", func(c *Config) { c.Database.MaxIdleConns = 100 }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"zero burst", func(c *Config) { c.RateLimit.BurstSize = 0 }},
		{"zero horizon", func(c *Config) { c.Simulation.MaxHorizon = 0 }},
		{"zero workers", func(c *Config) { c.Simulation.Workers = 0 }},
		{"zero fit budget", func(c *Config) { c.Simulation.MaxEvaluations = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := FromEnv()
			if err != nil {
				t.Fatalf("FromEnv() error = %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() error = nil, want error")
			}
		})
	}
}

func TestDotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("DB_NAME=from_file\nSIMULATION_WORKERS=4\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DB_NAME", "")
	t.Setenv("SIMULATION_WORKERS", "")
	os.Unsetenv("DB_NAME")
	os.Unsetenv("SIMULATION_WORKERS")

	if err := godotenv.Load(path); err != nil {
		t.Fatalf("godotenv.Load() error = %v", err)
	}
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if cfg.Database.Database != "from_file" {
		t.Errorf("Database.Database = %q, want from_file", cfg.Database.Database)
	}
	if cfg.Simulation.Workers != 4 {
		t.Errorf("Simulation.Workers = %d, want 4", cfg.Simulation.Workers)
	}
}

func TestConnectionString(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "srf", SSLMode: "require"}
	want := "host=db port=5433 user=u password=p dbname=srf sslmode=require"
	if got := db.ConnectionString(); got != want {
		t.Errorf("ConnectionString() = %q, want %q", got, want)
	}

	pg := db.Postgres()
	if pg.Port != 5433 || pg.Database != "srf" || pg.SSLMode != "require" {
		t.Errorf("Postgres() = %+v, want the same connection settings", pg)
	}
}
