package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/Mattheo4427/eventy-core/pkg/config"
)

// Config holds all configuration for the eventy agent.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Admin HTTP endpoint (health + metrics).
	HTTPPort int `env:"EVENTY_HTTP_PORT" envDefault:"8080"`

	// Marketplace backend.
	APIBaseURL   string  `env:"EVENTY_API_BASE_URL" envDefault:"https://api.eventy.app"`
	APIRateRPS   float64 `env:"EVENTY_API_RATE_RPS" envDefault:"5"`
	APIRateBurst int     `env:"EVENTY_API_RATE_BURST" envDefault:"10"`

	// Identity provider (authorization code + PKCE).
	AuthURL      string   `env:"EVENTY_AUTH_URL" envDefault:"https://auth.eventy.app/oauth/authorize"`
	TokenURL     string   `env:"EVENTY_TOKEN_URL" envDefault:"https://auth.eventy.app/oauth/token"`
	ClientID     string   `env:"EVENTY_CLIENT_ID" envDefault:"eventy-mobile"`
	CallbackAddr string   `env:"EVENTY_CALLBACK_ADDR" envDefault:"127.0.0.1:8765"`
	Scopes       []string `env:"EVENTY_SCOPES" envDefault:"openid,profile,email" envSeparator:","`

	// Token storage. "file" keeps an encrypted blob under TokenPath;
	// "redis" is for shared kiosk deployments; "memory" for tests.
	TokenStore  string `env:"EVENTY_TOKEN_STORE" envDefault:"file"`
	TokenPath   string `env:"EVENTY_TOKEN_PATH" envDefault:""`
	TokenSecret string `env:"EVENTY_TOKEN_SECRET"`
	DeviceID    string `env:"EVENTY_DEVICE_ID" envDefault:"eventy-agent"`

	// Redis (token store "redis" only).
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass     string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	TokenTTLHours int    `env:"EVENTY_TOKEN_TTL_HOURS" envDefault:"720"`

	// Foreground polling cadence.
	MessagePollSeconds      int `env:"EVENTY_POLL_MESSAGES_SECONDS" envDefault:"15"`
	NotificationPollSeconds int `env:"EVENTY_POLL_NOTIFICATIONS_SECONDS" envDefault:"30"`

	// Shown on the payment sheet.
	MerchantName string `env:"EVENTY_MERCHANT_NAME" envDefault:"Eventy Tickets"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load agent config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	switch c.TokenStore {
	case "file", "redis", "memory":
	default:
		return fmt.Errorf("invalid token store %q: must be file, redis, or memory", c.TokenStore)
	}
	if c.TokenStore == "file" && c.TokenSecret == "" {
		return fmt.Errorf("EVENTY_TOKEN_SECRET is required for the file token store")
	}
	if c.APIRateRPS <= 0 || c.APIRateBurst < 1 {
		return fmt.Errorf("invalid API rate limit: %f rps, burst %d", c.APIRateRPS, c.APIRateBurst)
	}
	if c.MessagePollSeconds < 1 || c.NotificationPollSeconds < 1 {
		return fmt.Errorf("poll intervals must be at least one second")
	}
	return nil
}

// MessagePollInterval returns the conversation poll cadence.
func (c *Config) MessagePollInterval() time.Duration {
	return time.Duration(c.MessagePollSeconds) * time.Second
}

// NotificationPollInterval returns the notification poll cadence.
func (c *Config) NotificationPollInterval() time.Duration {
	return time.Duration(c.NotificationPollSeconds) * time.Second
}

// TokenTTL returns how long a stored token may sit unused before the
// redis store drops it.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}
