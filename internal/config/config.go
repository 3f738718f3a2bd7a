package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`

	// Shared secret the chat widget sends on every inbound message.
	WidgetAuthSecret string `env:"WIDGET_AUTH_SECRET"`

	// NLU extractor collaborator (OpenAI-compatible chat completions API).
	ExtractorBaseURL        string `env:"EXTRACTOR_BASE_URL,required"`
	ExtractorAPIKey         string `env:"EXTRACTOR_API_KEY,required"`
	ExtractorModel          string `env:"EXTRACTOR_MODEL" envDefault:"llama3-70b-8192"`
	ExtractorTimeoutSeconds int    `env:"EXTRACTOR_TIMEOUT_SECONDS" envDefault:"10"`

	// CRM collaborator and its OAuth refresh endpoint.
	CRMBaseURL        string `env:"CRM_BASE_URL,required"`
	CRMAuthBaseURL    string `env:"CRM_AUTH_BASE_URL,required"`
	CRMClientID       string `env:"CRM_CLIENT_ID,required"`
	CRMClientSecret   string `env:"CRM_CLIENT_SECRET,required"`
	CRMRefreshToken   string `env:"CRM_REFRESH_TOKEN,required"`
	CRMTimeoutSeconds int    `env:"CRM_TIMEOUT_SECONDS" envDefault:"10"`

	SessionTimeoutMinutes int    `env:"SESSION_TIMEOUT_MINUTES" envDefault:"30"`
	LogLevel              string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutMinutes) * time.Minute
}

func (c *Config) ExtractorTimeout() time.Duration {
	return time.Duration(c.ExtractorTimeoutSeconds) * time.Second
}

func (c *Config) CRMTimeout() time.Duration {
	return time.Duration(c.CRMTimeoutSeconds) * time.Second
}

func (c *Config) Validate(isProduction bool) error {
	if isProduction {
		if err := validateSecret("WIDGET_AUTH_SECRET", c.WidgetAuthSecret); err != nil {
			return err
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if !strings.HasPrefix(c.CRMBaseURL, "https://") {
			return fmt.Errorf("CRM_BASE_URL must use https in production")
		}
		if !strings.HasPrefix(c.CRMAuthBaseURL, "https://") {
			return fmt.Errorf("CRM_AUTH_BASE_URL must use https in production")
		}
	}
	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
