package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"gotrend/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Database DatabaseConfig
	Engine   EngineConfig
}

// DatabaseConfig holds result-repository connection settings
type DatabaseConfig struct {
	URL     string
	SSLMode string
}

// EngineConfig holds default engine settings overridable per call
type EngineConfig struct {
	NSurrogates int
	NBootstrap  int
	Alpha       float64
	Workers     int
}

// Load reads configuration from the environment, loading a .env file
// first when one exists (missing files are not an error).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Database: DatabaseConfig{
			URL:     os.Getenv("DATABASE_URL"),
			SSLMode: getEnvDefault("DATABASE_SSLMODE", "disable"),
		},
		Engine: EngineConfig{
			NSurrogates: getEnvInt("TREND_N_SURROGATES", 999),
			NBootstrap:  getEnvInt("TREND_N_BOOTSTRAP", 1000),
			Alpha:       getEnvFloat("TREND_ALPHA", 0.05),
			Workers:     getEnvInt("TREND_WORKERS", 0),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Engine.NSurrogates <= 0 {
		return errors.ConfigInvalid("TREND_N_SURROGATES must be > 0")
	}
	if c.Engine.NBootstrap <= 0 {
		return errors.ConfigInvalid("TREND_N_BOOTSTRAP must be > 0")
	}
	if c.Engine.Alpha <= 0 || c.Engine.Alpha >= 1 {
		return errors.ConfigInvalid("TREND_ALPHA must be in (0, 1)")
	}
	if c.Engine.Workers < 0 {
		return errors.ConfigInvalid("TREND_WORKERS must be >= 0")
	}
	return nil
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
