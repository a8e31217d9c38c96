package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath   = "config.toml"
	DefaultHTTPAddr     = ":8080"
	DefaultJWTExpiresIn = "24h"
	DefaultPGHost       = "127.0.0.1"
	DefaultPGPort       = 5432
	DefaultPGUser       = "postgres"
	DefaultPGDatabase   = "fixflow"
	DefaultPGSSLMode    = "disable"
	DefaultRedisAddr    = "127.0.0.1:6379"
)

type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Auth      AuthConfig      `toml:"auth"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	AutoReply AutoReplyConfig `toml:"auto_reply"`
	Webhook   WebhookConfig   `toml:"webhook"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
	// PublicBaseURL is the externally reachable origin registered with
	// messaging providers as the webhook target.
	PublicBaseURL string `toml:"public_base_url"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
	// AdminEmail/AdminPassword are the bootstrap operator credentials for
	// the login endpoint.
	AdminEmail    string `toml:"admin_email"`
	AdminPassword string `toml:"admin_password"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// DSN renders the pgx connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// RateLimitConfig carries per-route-class request budgets. Window lengths are
// in seconds; a zero value falls back to the class default.
type RateLimitConfig struct {
	Read         RatePolicyConfig `toml:"read"`
	Write        RatePolicyConfig `toml:"write"`
	Auth         RatePolicyConfig `toml:"auth"`
	Webhook      RatePolicyConfig `toml:"webhook"`
	StoreTimeout string           `toml:"store_timeout"`
}

type RatePolicyConfig struct {
	Limit         int `toml:"limit"`
	WindowSeconds int `toml:"window_seconds"`
}

// StoreTimeoutDuration parses the counter-store timeout, defaulting to 500ms.
func (c RateLimitConfig) StoreTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.StoreTimeout)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

type AutoReplyConfig struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Timeout returns the bounded timeout for reply-generation calls.
func (c AutoReplyConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 20 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type WebhookConfig struct {
	// SyncSchedule is the cron expression for re-asserting provider webhook
	// registrations. Empty disables the job.
	SyncSchedule string `toml:"sync_schedule"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Redis: RedisConfig{
			Addr: DefaultRedisAddr,
		},
		RateLimit: RateLimitConfig{
			Read:         RatePolicyConfig{Limit: 60, WindowSeconds: 60},
			Write:        RatePolicyConfig{Limit: 30, WindowSeconds: 60},
			Auth:         RatePolicyConfig{Limit: 5, WindowSeconds: 60},
			Webhook:      RatePolicyConfig{Limit: 100, WindowSeconds: 60},
			StoreTimeout: "500ms",
		},
		AutoReply: AutoReplyConfig{
			TimeoutSeconds: 20,
		},
		Webhook: WebhookConfig{
			SyncSchedule: "@every 1h",
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
