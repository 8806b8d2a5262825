// Package config provides configuration management for the app directory tracker.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Directory DirectoryConfig
	Refresh   RefreshConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres PostgresConfig
	Redis    RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
	MigrationsPath string
	AutoMigrate    bool
}

// URL returns the postgres:// form of the connection settings. Both the pool
// and migrate connect with it; credentials are percent-encoded.
func (c *PostgresConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// DirectoryConfig holds configuration for the external application directory API
type DirectoryConfig struct {
	BaseURL           string
	Locale            string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// RefreshConfig holds configuration for the guild count refresh job
type RefreshConfig struct {
	Enabled      bool
	Interval     time.Duration // how often the job wakes up
	ScanInterval time.Duration // minimum time between two polls of the same bot
	LockEnabled  bool
	LockTTL      time.Duration
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	HistoryTTL time.Duration
}

// RateLimitConfig holds inbound API rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env is optional; environment variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	refreshInterval := getEnvAsDuration("REFRESH_INTERVAL", time.Hour)

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "app_directory"),
				User:           getEnv("POSTGRES_USER", "directory"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
				MigrationsPath: getEnv("POSTGRES_MIGRATIONS_PATH", "migrations/postgres"),
				AutoMigrate:    getEnvAsBool("POSTGRES_AUTO_MIGRATE", false),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 10),
			},
		},
		Directory: DirectoryConfig{
			BaseURL:           getEnv("DIRECTORY_BASE_URL", "https://discord.com/api/v9/application-directory-static"),
			Locale:            getEnv("DIRECTORY_LOCALE", "en-US"),
			Timeout:           getEnvAsDuration("DIRECTORY_TIMEOUT", 15*time.Second),
			RequestsPerSecond: getEnvAsFloat("DIRECTORY_RPS", 2),
		},
		Refresh: RefreshConfig{
			Enabled:      getEnvAsBool("REFRESH_ENABLED", true),
			Interval:     refreshInterval,
			ScanInterval: getEnvAsDuration("REFRESH_SCAN_INTERVAL", time.Hour),
			LockEnabled:  getEnvAsBool("REFRESH_LOCK_ENABLED", true),
			LockTTL:      getEnvAsDuration("REFRESH_LOCK_TTL", refreshInterval),
		},
		Cache: CacheConfig{
			HistoryTTL: getEnvAsDuration("CACHE_HISTORY_TTL", 5*time.Minute),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsInt("RATE_LIMIT_RPS", 20),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 40),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks values that would otherwise make the process misbehave silently
func (c *Config) Validate() error {
	if c.Refresh.Interval <= 0 {
		return fmt.Errorf("REFRESH_INTERVAL must be positive, got %v", c.Refresh.Interval)
	}
	if c.Refresh.ScanInterval < 0 {
		return fmt.Errorf("REFRESH_SCAN_INTERVAL must not be negative, got %v", c.Refresh.ScanInterval)
	}
	if c.Refresh.LockEnabled && c.Refresh.LockTTL <= 0 {
		return fmt.Errorf("REFRESH_LOCK_TTL must be positive when the lock is enabled")
	}
	if c.Directory.BaseURL == "" {
		return fmt.Errorf("DIRECTORY_BASE_URL is required")
	}
	if c.Directory.RequestsPerSecond <= 0 {
		return fmt.Errorf("DIRECTORY_RPS must be positive, got %v", c.Directory.RequestsPerSecond)
	}
	if c.Database.Postgres.MaxConnections <= 0 {
		return fmt.Errorf("POSTGRES_MAX_CONNECTIONS must be positive, got %d", c.Database.Postgres.MaxConnections)
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
