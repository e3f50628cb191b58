package application

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	commands "purifier-cloud/internal/commands/domain"
)

// DefaultRetryDelay is the fixed pause before each delivery re-check.
const DefaultRetryDelay = 30 * time.Second

// EngineConfig tunes the dispatch/retry engine.
type EngineConfig struct {
	RetryDelay  time.Duration `yaml:"retry_delay"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// LoadEngineConfig loads tuning from the optional yaml file named by
// ENGINE_CONFIG, with env fallbacks RETRY_DELAY / MAX_ATTEMPTS.
func LoadEngineConfig() (EngineConfig, error) {
	cfg := EngineConfig{
		RetryDelay:  getenvDuration("RETRY_DELAY", DefaultRetryDelay),
		MaxAttempts: getenvIntDefault("MAX_ATTEMPTS", commands.DefaultMaxAttempts),
	}
	if path := os.Getenv("ENGINE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = commands.DefaultMaxAttempts
	}
	return cfg, nil
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
