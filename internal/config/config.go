// Package config loads service configuration from the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// Persistence backend selection. Both empty means the in-memory store.
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	// Directions provider (OpenRouteService-compatible).
	ORSAPIKey  string `env:"ORS_API_KEY"`
	ORSBaseURL string `env:"ORS_BASE_URL" default:"https://api.openrouteservice.org"`

	// Push delivery. Either a service account (modern protocol) or a static
	// server key (legacy protocol); both may be absent, in which case the
	// dispatcher fails at use time.
	FCMServiceAccount string `env:"FCM_SERVICE_ACCOUNT"`
	FCMServerKey      string `env:"FCM_SERVER_KEY"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.DatabaseURL != "" && cfg.RedisURL != "" {
		return errors.New("DATABASE_URL and REDIS_URL are mutually exclusive; pick one persistence backend")
	}

	// The service account must at least parse as JSON here; field-level
	// validation happens when the credential cache first uses it.
	if cfg.FCMServiceAccount != "" && !json.Valid([]byte(cfg.FCMServiceAccount)) {
		return errors.New("FCM_SERVICE_ACCOUNT must be valid JSON")
	}

	switch cfg.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be \"text\" or \"json\", got %q", cfg.LogFormat)
	}

	return nil
}
