// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	LogLevel string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
	Timeout  time.Duration
}

// RedisConfig holds the optional permission-cache backend configuration.
type RedisConfig struct {
	Addr     string // empty disables the cache
	Password string
	DB       int
	CacheTTL time.Duration
}

// AuthConfig holds session and magic-link settings.
type AuthConfig struct {
	// ClientBaseURL is the frontend origin embedded into magic-link URLs.
	ClientBaseURL string
	// MagicLinkTTL bounds magic-link validity.
	MagicLinkTTL time.Duration
	// SessionTTL bounds session validity.
	SessionTTL time.Duration
	// CookieSecure marks the session cookie Secure.
	CookieSecure bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("ATRIUM_HOST", "0.0.0.0"),
			Port:            getEnv("ATRIUM_PORT", "8080"),
			ReadTimeout:     getEnvDuration("ATRIUM_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("ATRIUM_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("ATRIUM_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("ATRIUM_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("ATRIUM_HEALTH_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("ATRIUM_POSTGRES_URL", ""),
			MaxConns: getEnvInt("ATRIUM_POSTGRES_MAX_CONNS", 25),
			MinConns: getEnvInt("ATRIUM_POSTGRES_MIN_CONNS", 5),
			Timeout:  getEnvDuration("ATRIUM_POSTGRES_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("ATRIUM_REDIS_ADDR", ""),
			Password: getEnv("ATRIUM_REDIS_PASSWORD", ""),
			DB:       getEnvInt("ATRIUM_REDIS_DB", 0),
			CacheTTL: getEnvDuration("ATRIUM_PERMISSION_CACHE_TTL", 5*time.Minute),
		},
		Auth: AuthConfig{
			ClientBaseURL: getEnv("ATRIUM_CLIENT_URL", "http://localhost:5173"),
			MagicLinkTTL:  getEnvDuration("ATRIUM_MAGIC_LINK_TTL", 15*time.Minute),
			SessionTTL:    getEnvDuration("ATRIUM_SESSION_TTL", 90 * 24 * time.Hour),
			CookieSecure:  getEnvBool("ATRIUM_COOKIE_SECURE", false),
		},
		LogLevel: getEnv("ATRIUM_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Auth.ClientBaseURL == "" {
		return fmt.Errorf("client base URL is required")
	}
	if c.Auth.MagicLinkTTL <= 0 {
		return fmt.Errorf("magic link TTL must be positive")
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}
	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
