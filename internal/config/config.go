package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment        string
	Port               string
	BackendBaseURL     string
	FastPollInterval   time.Duration
	SlowPollInterval   time.Duration
	TypingPollInterval time.Duration
	TypingIdleTimeout  time.Duration
	StateBackend       string // "memory", "pebble", or "postgres"
	PebblePath         string
	DBHost             string
	DBPort             string
	DBUsername         string
	DBPassword         string
	DBName             string
	DBSSLMode          string
	MaxWSConnections   int
}

func NewConfig() (*Config, error) {
	env := os.Getenv("MSGSYNC_ENV")
	if env == "" {
		env = "development"
	}

	if env == "development" {
		if err := godotenv.Load(); err != nil {
			fmt.Println("Warning: .env file not found, using environment variables")
		}
	}

	config := &Config{
		Environment:        env,
		Port:               getEnvOrDefault("PORT", "8080"),
		BackendBaseURL:     os.Getenv("MSGSYNC_BACKEND_URL"),
		FastPollInterval:   getDurationOrDefault("MSGSYNC_FAST_POLL_SECONDS", 5*time.Second),
		SlowPollInterval:   getDurationOrDefault("MSGSYNC_SLOW_POLL_SECONDS", 30*time.Second),
		TypingPollInterval: getDurationOrDefault("MSGSYNC_TYPING_POLL_SECONDS", 3*time.Second),
		TypingIdleTimeout:  getDurationOrDefault("MSGSYNC_TYPING_IDLE_SECONDS", 4*time.Second),
		StateBackend:       getEnvOrDefault("MSGSYNC_STATE_BACKEND", "pebble"),
		PebblePath:         getEnvOrDefault("MSGSYNC_PEBBLE_PATH", "./data/seen"),
		DBHost:             getEnvOrDefault("MSGSYNC_DB_HOST", "localhost"),
		DBPort:             getEnvOrDefault("MSGSYNC_DB_PORT", "5432"),
		DBUsername:         getEnvOrDefault("MSGSYNC_DB_USER", "messaging"),
		DBPassword:         os.Getenv("MSGSYNC_DB_PASSWORD"),
		DBName:             getEnvOrDefault("MSGSYNC_DB_NAME", "messaging"),
		DBSSLMode:          getEnvOrDefault("MSGSYNC_DB_SSLMODE", "disable"),
		MaxWSConnections:   getIntOrDefault("MSGSYNC_MAX_WS_CONNECTIONS", 10),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.BackendBaseURL == "" {
		return fmt.Errorf("MSGSYNC_BACKEND_URL is required")
	}

	switch c.StateBackend {
	case "memory", "pebble":
	case "postgres":
		if c.DBPassword == "" {
			return fmt.Errorf("MSGSYNC_DB_PASSWORD is required when MSGSYNC_STATE_BACKEND is postgres")
		}
	default:
		return fmt.Errorf("MSGSYNC_STATE_BACKEND must be one of memory, pebble, postgres (got %q)", c.StateBackend)
	}

	if c.FastPollInterval >= c.SlowPollInterval {
		return fmt.Errorf("fast poll interval (%s) must be shorter than slow poll interval (%s)",
			c.FastPollInterval, c.SlowPollInterval)
	}

	return nil
}

func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUsername,
		c.DBPassword,
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBSSLMode,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil || seconds <= 0 {
		fmt.Printf("Warning: invalid value for %s (%q), using default %s\n", key, value, defaultValue)
		return defaultValue
	}
	return time.Duration(seconds * float64(time.Second))
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		fmt.Printf("Warning: invalid value for %s (%q), using default %d\n", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
