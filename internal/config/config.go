package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Backend API
	APIBaseURL string

	// Logging
	LogLevel string

	// HTTP client
	HTTPTimeout    time.Duration
	MaxConcurrency int

	// Query cache
	FetchTimeout time.Duration

	// Observability
	OTLPEndpoint string
	DebugAddr    string // local /metrics + /healthz listener; "" disables it

	// Credential store override (defaults to the user config dir)
	TokenDir string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		APIBaseURL: getEnv("SPLITSMART_API_URL", "http://localhost:8000/api/v1"),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		HTTPTimeout:    getEnvDuration("HTTP_TIMEOUT", 10*time.Second),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 8),

		FetchTimeout: getEnvDuration("FETCH_TIMEOUT", 30*time.Second),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		DebugAddr:    getEnv("DEBUG_ADDR", "127.0.0.1:9464"),

		TokenDir: getEnv("SPLITSMART_TOKEN_DIR", ""),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
