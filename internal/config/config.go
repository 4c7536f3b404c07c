// Package config provides configuration for the tracer service.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the tracer service configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Retention
	MaxRuns         int
	MaxRunAge       time.Duration
	CleanupInterval time.Duration

	// Logging
	LogLevel string
}

// Load loads configuration from the environment, reading a local .env file
// first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		HTTPPort:        getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:     getEnv("DATABASE_URL", "file:tracer.db?cache=shared&mode=rwc"),
		MaxRuns:         getEnvInt("MAX_RUNS", 1000),
		MaxRunAge:       time.Duration(getEnvInt("MAX_RUN_AGE_MS", 24*60*60*1000)) * time.Millisecond,
		CleanupInterval: time.Duration(getEnvInt("CLEANUP_INTERVAL_MS", 60*60*1000)) * time.Millisecond,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
