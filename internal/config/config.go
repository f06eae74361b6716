// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ProviderKeys holds the per-provider API keys. Missing keys are not an
// error: the owning bot degrades to an explanatory empty result.
type ProviderKeys struct {
	GNews        string
	FMP          string
	AlphaVantage string
	Polygon      string
	FRED         string
}

// Config holds application configuration.
type Config struct {
	// DataDir is the base directory for the sqlite job-history store.
	DataDir string
	// MBAPIURL is the platform API used as the universe fallback when the
	// universe:assets cache key is absent.
	MBAPIURL string
	RedisURL string
	Keys     ProviderKeys

	MaxConcurrentSweeps int
	InterAssetPause     time.Duration
	ResultTTL           time.Duration

	LogLevel string
	Port     int
	DevMode  bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("RESEARCH_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		MBAPIURL: getEnv("MB_API_URL", ""),
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
		Keys: ProviderKeys{
			GNews:        getEnv("GNEWS_KEY", ""),
			FMP:          getEnv("FMP_KEY", ""),
			AlphaVantage: getEnv("ALPHA_VANTAGE_KEY", ""),
			Polygon:      getEnv("POLYGON_KEY", ""),
			FRED:         getEnv("FRED_KEY", ""),
		},
		MaxConcurrentSweeps: getEnvAsInt("MAX_CONCURRENT_SWEEPS", 3),
		InterAssetPause:     time.Duration(getEnvAsInt("SWEEP_INTER_ASSET_PAUSE_MS", 300)) * time.Millisecond,
		ResultTTL:           time.Duration(getEnvAsInt("RESULT_TTL_S", 7200)) * time.Second,
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		Port:                getEnvAsInt("PORT", 8090),
		DevMode:             getEnvAsBool("DEV_MODE", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if required configuration is present.
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.MaxConcurrentSweeps < 1 {
		return fmt.Errorf("MAX_CONCURRENT_SWEEPS must be at least 1")
	}
	if c.ResultTTL <= 0 {
		return fmt.Errorf("RESULT_TTL_S must be positive")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
