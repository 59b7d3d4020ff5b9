package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	AuthTokenSecret string        `env:"AUTH_TOKEN_SECRET,required" validate:"required,min=32"`
	AuthTokenTTL    time.Duration `env:"AUTH_TOKEN_TTL" envDefault:"12h"`

	ChannelWebhookSecret string `env:"CHANNEL_WEBHOOK_SECRET,required" validate:"required"`

	MetaAppID     string `env:"META_APP_ID"`
	MetaAppSecret string `env:"META_APP_SECRET"`
	BaseURL       string `env:"BASE_URL" validate:"omitempty,url"`

	StripeSecretKey string `env:"STRIPE_SECRET_KEY"`

	EmailProvider string `env:"EMAIL_PROVIDER" validate:"omitempty,oneof=resend"`
	ResendAPIKey  string `env:"RESEND_API_KEY" validate:"required_if=EmailProvider resend"`
	EmailFrom     string `env:"EMAIL_FROM" validate:"required_if=EmailProvider resend,omitempty,email"`

	CacheProvider         string `env:"CACHE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	RedisConnectionString string `env:"REDIS_CONNECTION_STRING" envDefault:"redis://localhost:6379/0" validate:"required_if=CacheProvider redis"`

	EncryptionKey string `env:"ENCRYPTION_KEY,required" validate:"required,len=32"`

	SentryDSN              string  `env:"SENTRY_DSN"`
	SentryTracesSampleRate float64 `env:"SENTRY_TRACES_SAMPLE_RATE" envDefault:"0.1" validate:"gte=0,lte=1"`

	SeedFile string `env:"SEED_FILE"`

	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text" validate:"omitempty,oneof=text json"`
	Port      string     `env:"PORT" envDefault:"8080"`
}

var configValidator = validator.New()

func Load() (*Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return err
	}

	hasMetaAppID := strings.TrimSpace(c.MetaAppID) != ""
	hasMetaAppSecret := strings.TrimSpace(c.MetaAppSecret) != ""
	if hasMetaAppID != hasMetaAppSecret {
		return fmt.Errorf("META_APP_ID and META_APP_SECRET must be set together")
	}

	baseURL := strings.TrimSpace(c.BaseURL)
	if hasMetaAppID && baseURL == "" {
		return fmt.Errorf("BASE_URL is required when channel OAuth is enabled")
	}

	if baseURL != "" {
		parsed, err := url.Parse(baseURL)
		if err != nil || parsed.Hostname() == "" {
			return fmt.Errorf("BASE_URL must be a valid absolute URL")
		}
		if !isLocalHost(parsed.Hostname()) && !strings.EqualFold(parsed.Scheme, "https") {
			return fmt.Errorf("BASE_URL must use https outside local development")
		}
	}

	return nil
}

func isLocalHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}
