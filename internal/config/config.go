package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName  string `mapstructure:"app_name"`
	Env      string `mapstructure:"app_env"`
	LogLevel string `mapstructure:"log_level"`

	APIBaseURL            string        `mapstructure:"api_base_url"`
	AuthToken             string        `mapstructure:"auth_token"`
	RequestTimeoutSeconds int64         `mapstructure:"request_timeout_seconds"`
	RequestTimeout        time.Duration `mapstructure:"-"`

	Host           string  `mapstructure:"host"`
	Port           int     `mapstructure:"port"`
	Workers        int     `mapstructure:"workers"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`

	StorageType            string        `mapstructure:"storage_type"`
	BBoltPath              string        `mapstructure:"bbolt_path"`
	SessionTTLSeconds      int64         `mapstructure:"session_ttl_seconds"`
	StorageCleanupSeconds  int64         `mapstructure:"storage_cleanup_interval_seconds"`
	SessionTTL             time.Duration `mapstructure:"-"`
	StorageCleanupInterval time.Duration `mapstructure:"-"`

	NotifiersFile string `mapstructure:"notifiers_file"`

	AnthropicAPIKey  string `mapstructure:"anthropic_api_key"`
	AnthropicBaseURL string `mapstructure:"anthropic_base_url"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")
	_ = godotenv.Load(".env")

	v := viper.New()

	v.SetDefault("app_name", "quill")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("api_base_url", "http://localhost:8000")
	v.SetDefault("auth_token", "")
	v.SetDefault("request_timeout_seconds", 0) // no client-side timeout
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8000)
	v.SetDefault("workers", 1)
	v.SetDefault("rate_limit_rps", 10)
	v.SetDefault("rate_limit_burst", 20)
	v.SetDefault("storage_type", "bbolt")
	v.SetDefault("bbolt_path", "./data/session.db")
	v.SetDefault("session_ttl_seconds", int64((24*time.Hour)/time.Second))
	v.SetDefault("storage_cleanup_interval_seconds", int64(time.Hour/time.Second))
	v.SetDefault("notifiers_file", "")
	v.SetDefault("anthropic_api_key", "")
	v.SetDefault("anthropic_base_url", "https://api.anthropic.com")

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	c.APIBaseURL = strings.TrimSpace(c.APIBaseURL)
	c.AuthToken = strings.TrimSpace(c.AuthToken)
	c.Host = strings.TrimSpace(c.Host)

	if c.APIBaseURL == "" {
		return fmt.Errorf("api_base_url is required")
	}
	if c.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("invalid request_timeout_seconds (must be zero or positive seconds)")
	}
	c.RequestTimeout = time.Duration(c.RequestTimeoutSeconds) * time.Second

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Workers != 1 {
		return fmt.Errorf("invalid workers %d (server runs a single worker)", c.Workers)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("invalid rate limit settings (must not be negative)")
	}

	if c.SessionTTLSeconds <= 0 {
		return fmt.Errorf("invalid session_ttl_seconds (must be positive seconds)")
	}
	if c.StorageCleanupSeconds <= 0 {
		return fmt.Errorf("invalid storage_cleanup_interval_seconds (must be positive seconds)")
	}
	c.SessionTTL = time.Duration(c.SessionTTLSeconds) * time.Second
	c.StorageCleanupInterval = time.Duration(c.StorageCleanupSeconds) * time.Second
	return nil
}

// Addr returns the host:port the server binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
