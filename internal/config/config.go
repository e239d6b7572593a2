// Package config provides environment and file configuration for the service.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// Gateway auth
	JWTSecret string

	// Chat activation
	ActivationSecret string

	// Personas
	PersonasFile string

	// Conversation settings
	HistoryRetention int

	// Provider call settings
	ProviderCallTimeout time.Duration
	ProviderMaxRetries  int
	ProviderTemperature float64
	ProviderMaxTokens   int
	FailureNotices      bool

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// Gateway auth
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// Activation
		ActivationSecret: getEnv("ACTIVATION_SECRET", ""),

		// Personas
		PersonasFile: getEnv("PERSONAS_FILE", "personas.yaml"),

		// Conversation
		HistoryRetention: getIntEnv("HISTORY_RETENTION", 200),

		// Providers
		ProviderCallTimeout: getDurationEnv("PROVIDER_CALL_TIMEOUT", 60*time.Second),
		ProviderMaxRetries:  getIntEnv("PROVIDER_MAX_RETRIES", 2),
		ProviderTemperature: getFloatEnv("PROVIDER_TEMPERATURE", 0.7),
		ProviderMaxTokens:   getIntEnv("PROVIDER_MAX_TOKENS", 1024),
		FailureNotices:      getBoolEnv("FAILURE_NOTICES", true),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
