package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// HTTP server
	Port            string
	MetricsPort     string
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	// Database
	DatabaseURL string

	// Logging
	LogLevel string

	// Auth. An empty secret falls back to the X-Test-User-ID header.
	JWTSecret string
	JWTIssuer string

	// AMQP. Events are only logged when the URL is empty.
	AMQPURL      string
	AMQPExchange string

	// Invites
	InviteTTL           time.Duration
	InviteSweepInterval time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:            getEnv("PORT", "8080"),
		MetricsPort:     getEnv("METRICS_PORT", "9090"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		CORSOrigins:     getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),

		DatabaseURL: getEnv("DATABASE_URL", "sqlite://./data/splitledger.db"),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "splitledger"),

		InviteTTL:           getEnvDuration("INVITE_TTL", 7*24*time.Hour),
		InviteSweepInterval: getEnvDuration("INVITE_SWEEP_INTERVAL", time.Hour),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errs []string

	errs = append(errs, validatePort("port", c.Port)...)
	if c.MetricsPort != "" {
		errs = append(errs, validatePort("metrics port", c.MetricsPort)...)
		if c.MetricsPort == c.Port {
			errs = append(errs, fmt.Sprintf("metrics port %s must differ from the API port", c.MetricsPort))
		}
	}

	switch {
	case c.DatabaseURL == "":
		errs = append(errs, "database URL cannot be empty")
	case strings.HasPrefix(c.DatabaseURL, "postgres://"), strings.HasPrefix(c.DatabaseURL, "postgresql://"):
		if _, err := url.Parse(c.DatabaseURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid database URL: %v", err))
		}
	case strings.HasPrefix(c.DatabaseURL, "sqlite://"):
		if strings.TrimPrefix(c.DatabaseURL, "sqlite://") == "" {
			errs = append(errs, "sqlite database path cannot be empty")
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid database URL scheme in '%s': must be postgres:// or sqlite://", c.DatabaseURL))
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	validLevel := false
	for _, level := range validLevels {
		if strings.EqualFold(c.LogLevel, level) {
			validLevel = true
			break
		}
	}
	if !validLevel {
		errs = append(errs, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLevels))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if c.InviteTTL < time.Minute {
		errs = append(errs, fmt.Sprintf("invalid invite TTL %v: must be at least 1 minute", c.InviteTTL))
	}
	if c.InviteSweepInterval < time.Second {
		errs = append(errs, fmt.Sprintf("invalid invite sweep interval %v: must be at least 1 second", c.InviteSweepInterval))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("invalid shutdown timeout %v: must be positive", c.ShutdownTimeout))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func validatePort(name, value string) []string {
	port, err := strconv.Atoi(value)
	if err != nil {
		return []string{fmt.Sprintf("invalid %s '%s': must be a number", name, value)}
	}
	if port < 1 || port > 65535 {
		return []string{fmt.Sprintf("invalid %s %d: must be between 1 and 65535", name, port)}
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
