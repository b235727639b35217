// Package config loads server configuration from environment variables.
//
// The surface grew past the point where reading os.Getenv by hand in main
// stays tidy (webhook secrets, generation API settings, timeouts), so the
// env struct-tag approach does the parsing and defaulting in one place.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config contains all server configuration parameters.
type Config struct {
	Port     int    `env:"PORT" envDefault:"8080"`
	DBPath   string `env:"DB_PATH" envDefault:"data/companion.db"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// JWTSecret signs API session tokens. Leave empty to disable the
	// authenticated REST surface (webhooks still work; they are verified
	// by signature, not by session).
	JWTSecret string `env:"JWT_SECRET"`

	Identity   Identity   `envPrefix:"IDENTITY_"`
	Generation Generation `envPrefix:"GENERATION_"`
}

// Identity contains the identity-provider webhook parameters.
type Identity struct {
	// WebhookSecret is the svix signing secret from the provider dashboard
	// (the "whsec_..." value). Required for the identity webhook route.
	WebhookSecret string `env:"WEBHOOK_SECRET"`
}

// Generation contains the essay-generation collaborator parameters.
type Generation struct {
	APIURL  string        `env:"API_URL" envDefault:"https://api.groq.com/openai/v1/chat/completions"`
	APIKey  string        `env:"API_KEY"`
	Model   string        `env:"MODEL" envDefault:"llama-3.3-70b-versatile"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: parsing environment: %w", err)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("config: invalid PORT %d", cfg.Port)
	}
	if cfg.Generation.Timeout <= 0 {
		return nil, fmt.Errorf("config: GENERATION_TIMEOUT must be positive")
	}
	return &cfg, nil
}
