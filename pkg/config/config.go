package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Platform PlatformConfig
	Compute  ComputeConfig
	Seeder   SeederConfig
	Log      LogConfig
	Metrics  MetricsConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Env         string
	CORSOrigins []string
	APIKey      string
}

// DatabaseConfig holds the administrative connection to the shared
// Postgres cluster. The same connection serves the tenant registry and
// per-tenant database provisioning.
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        string
}

// PlatformConfig holds tenant-facing platform settings
type PlatformConfig struct {
	Domain          string
	TenantsDir      string
	BlueprintsDir   string
	ContainerPrefix string
}

// ComputeConfig selects and tunes the compute backend
type ComputeConfig struct {
	Backend     string // "local" or "kubernetes"
	UpTimeout   time.Duration
	DownTimeout time.Duration
	StopTimeout time.Duration
	ExecTimeout time.Duration
}

// SeederConfig tunes the asynchronous admin seeder
type SeederConfig struct {
	Workers        int
	QueueSize      int
	HealthInterval time.Duration
	HealthAttempts int
	GraceInterval  time.Duration
	KeyInterval    time.Duration
	KeyAttempts    int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// MetricsConfig holds metrics-related configuration
type MetricsConfig struct {
	Prefix string
}

// Load loads the application configuration from environment variables
func Load() (*Config, error) {
	// Load environment variables from .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			Env:         getEnv("APP_ENV", "development"),
			CORSOrigins: splitAndTrim(getEnv("CORS_ORIGINS", "*")),
			APIKey:      getEnv("API_KEY", ""),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "shared-postgres"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "root"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "defaultdb"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 1*time.Hour),
			LogLevel:        getEnv("DB_LOG_LEVEL", "info"),
		},
		Platform: PlatformConfig{
			Domain:          getEnv("DOMAIN", "127.0.0.1.nip.io"),
			TenantsDir:      getEnv("TENANTS_DIR", "/opt/saas/tenants"),
			BlueprintsDir:   getEnv("BLUEPRINTS_DIR", "/opt/saas/blueprints"),
			ContainerPrefix: getEnv("CONTAINER_PREFIX", "app-"),
		},
		Compute: ComputeConfig{
			Backend:     getEnv("COMPUTE_BACKEND", "local"),
			UpTimeout:   getEnvAsDuration("COMPUTE_UP_TIMEOUT", 120*time.Second),
			DownTimeout: getEnvAsDuration("COMPUTE_DOWN_TIMEOUT", 60*time.Second),
			StopTimeout: getEnvAsDuration("COMPUTE_STOP_TIMEOUT", 60*time.Second),
			ExecTimeout: getEnvAsDuration("COMPUTE_EXEC_TIMEOUT", 60*time.Second),
		},
		Seeder: SeederConfig{
			Workers:        getEnvAsInt("SEEDER_WORKERS", 2),
			QueueSize:      getEnvAsInt("SEEDER_QUEUE_SIZE", 16),
			HealthInterval: getEnvAsDuration("SEEDER_HEALTH_INTERVAL", 10*time.Second),
			HealthAttempts: getEnvAsInt("SEEDER_HEALTH_ATTEMPTS", 30),
			GraceInterval:  getEnvAsDuration("SEEDER_GRACE_INTERVAL", 30*time.Second),
			KeyInterval:    getEnvAsDuration("SEEDER_KEY_INTERVAL", 5*time.Second),
			KeyAttempts:    getEnvAsInt("SEEDER_KEY_ATTEMPTS", 30),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Metrics: MetricsConfig{
			Prefix: getEnv("METRICS_PREFIX", "provision"),
		},
	}

	// The admin password guards the whole shared cluster. Refuse to start
	// with a missing or placeholder value.
	if cfg.Database.Password == "" || strings.HasPrefix(cfg.Database.Password, "CHANGE_ME") {
		return nil, fmt.Errorf("DB_PASSWORD must be set before starting the platform")
	}

	return cfg, nil
}

// Helper functions to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
