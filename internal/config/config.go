package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the CLI's environment-driven settings.
type Config struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
	Debug    bool

	// CacheTTL bounds how long locally cached device locations are
	// trusted by the CLI between runs.
	CacheTTL time.Duration
}

// Load reads configuration from the environment, with an optional
// .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		BaseURL:  getEnv("LOJACK_BASE_URL", "https://services.spireon.com/v0/rest"),
		Username: getEnv("LOJACK_USERNAME", ""),
		Password: getEnv("LOJACK_PASSWORD", ""),
		Timeout:  getEnvDuration("LOJACK_TIMEOUT", 30*time.Second),
		Debug:    getEnvBool("DEBUG", false),
		CacheTTL: getEnvDuration("LOJACK_CACHE_TTL", 5*time.Minute),
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
