// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// AuthConfig verifies bearer tokens minted by the hosted auth platform.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Audience  string `yaml:"audience"`
}

type PawaPayConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIToken       string        `yaml:"api_token"`
	Sandbox        bool          `yaml:"sandbox"`
	CallbackSecret string        `yaml:"callback_secret"`
	Timeout        time.Duration `yaml:"timeout"`
}

type PaymentConfig struct {
	// Provider selects the gateway: pawapay | sandbox.
	Provider string        `yaml:"provider"`
	PawaPay  PawaPayConfig `yaml:"pawapay"`
}

type BillingConfig struct {
	Currency    string `yaml:"currency"`
	CountryCode string `yaml:"country_code"`
	Timezone    string `yaml:"timezone"`
	PlanID      string `yaml:"plan_id"`
	PlanPrice   int64  `yaml:"plan_price"`
}

// PollingConfig drives the bounded client-side status poll.
type PollingConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MaxAttempts int           `yaml:"max_attempts"`
	// RateLimit caps status checks per user and window on the polling endpoint.
	RateLimit       int           `yaml:"rate_limit"`
	RateLimitWindow time.Duration `yaml:"rate_limit_window"`
}

type ReconcilerConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Interval   time.Duration `yaml:"interval"`
	StaleAfter time.Duration `yaml:"stale_after"`
	BatchSize  int           `yaml:"batch_size"`
	Workers    int           `yaml:"workers"`
	LockTTL    time.Duration `yaml:"lock_ttl"`

	// AbandonAfter fails pending payments the provider does not know after this long.
	AbandonAfter time.Duration `yaml:"abandon_after"`
}

type ExpiryConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type SentryConfig struct {
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

// SecurityConfig holds the AES key used to seal payer phone numbers at rest.
// Empty leaves them in clear text.
type SecurityConfig struct {
	PhoneKey string `yaml:"phone_key"`
}

type Config struct {
	Log        LogConfig        `yaml:"log"`
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Auth       AuthConfig       `yaml:"auth"`
	Payment    PaymentConfig    `yaml:"payment"`
	Billing    BillingConfig    `yaml:"billing"`
	Polling    PollingConfig    `yaml:"polling"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Expiry     ExpiryConfig     `yaml:"expiry"`
	Sentry     SentryConfig     `yaml:"sentry"`
	Security   SecurityConfig   `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, applies .env / environment overrides,
// fills defaults and validates required fields.
func LoadConfig(path string, dev bool) (*Config, error) {
	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !(errors.Is(err, os.ErrNotExist) && dev) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	cfg.Runtime.Dev = dev

	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	override := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	override(&cfg.Database.URL, "DATABASE_URL")
	override(&cfg.Redis.URL, "REDIS_URL")
	override(&cfg.Redis.Password, "REDIS_PASSWORD")
	override(&cfg.Auth.JWTSecret, "AUTH_JWT_SECRET")
	override(&cfg.Payment.PawaPay.APIToken, "PAWAPAY_API_TOKEN")
	override(&cfg.Payment.PawaPay.CallbackSecret, "PAWAPAY_CALLBACK_SECRET")
	override(&cfg.Sentry.DSN, "SENTRY_DSN")
	override(&cfg.Security.PhoneKey, "PHONE_ENCRYPTION_KEY")
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.ReadTimeout <= 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout <= 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout <= 0 {
		cfg.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Redis.URL == "" {
		cfg.Redis.URL = "localhost:6379"
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.Payment.Provider == "" {
		cfg.Payment.Provider = "pawapay"
		if cfg.Runtime.Dev {
			cfg.Payment.Provider = "sandbox"
		}
	}
	cfg.Payment.Provider = strings.ToLower(cfg.Payment.Provider)
	if cfg.Payment.PawaPay.BaseURL == "" {
		cfg.Payment.PawaPay.BaseURL = "https://api.pawapay.io"
		if cfg.Payment.PawaPay.Sandbox {
			cfg.Payment.PawaPay.BaseURL = "https://api.sandbox.pawapay.io"
		}
	}
	if cfg.Payment.PawaPay.Timeout <= 0 {
		cfg.Payment.PawaPay.Timeout = 15 * time.Second
	}

	if cfg.Billing.Currency == "" {
		cfg.Billing.Currency = "XAF"
	}
	if cfg.Billing.CountryCode == "" {
		cfg.Billing.CountryCode = "237"
	}
	if cfg.Billing.Timezone == "" {
		cfg.Billing.Timezone = "Africa/Douala"
	}
	if cfg.Billing.PlanID == "" {
		cfg.Billing.PlanID = "pro"
	}
	if cfg.Billing.PlanPrice <= 0 {
		cfg.Billing.PlanPrice = 2000
	}

	if cfg.Polling.Interval <= 0 {
		cfg.Polling.Interval = 5 * time.Second
	}
	if cfg.Polling.MaxAttempts <= 0 {
		cfg.Polling.MaxAttempts = 24
	}
	if cfg.Polling.RateLimit <= 0 {
		cfg.Polling.RateLimit = 30
	}
	if cfg.Polling.RateLimitWindow <= 0 {
		cfg.Polling.RateLimitWindow = time.Minute
	}

	if cfg.Reconciler.Interval <= 0 {
		cfg.Reconciler.Interval = time.Minute
	}
	if cfg.Reconciler.StaleAfter <= 0 {
		cfg.Reconciler.StaleAfter = 10 * time.Minute
	}
	if cfg.Reconciler.BatchSize <= 0 {
		cfg.Reconciler.BatchSize = 200
	}
	if cfg.Reconciler.Workers <= 0 {
		cfg.Reconciler.Workers = 4
	}
	if cfg.Reconciler.LockTTL <= 0 {
		cfg.Reconciler.LockTTL = cfg.Reconciler.Interval
	}
	if cfg.Reconciler.AbandonAfter <= 0 {
		cfg.Reconciler.AbandonAfter = 24 * time.Hour
	}
	if cfg.Expiry.Interval <= 0 {
		cfg.Expiry.Interval = time.Hour
	}
	if cfg.Sentry.Environment == "" {
		cfg.Sentry.Environment = "production"
		if cfg.Runtime.Dev {
			cfg.Sentry.Environment = "development"
		}
	}
}

// Validate checks the fields the service cannot start without.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	switch c.Payment.Provider {
	case "pawapay":
		if c.Payment.PawaPay.APIToken == "" {
			return errors.New("payment.pawapay.api_token is required")
		}
	case "sandbox":
	default:
		return fmt.Errorf("payment.provider %q not supported", c.Payment.Provider)
	}
	if _, err := time.LoadLocation(c.Billing.Timezone); err != nil {
		return fmt.Errorf("billing.timezone: %w", err)
	}
	return nil
}

// Location returns the billing timezone; Validate has already checked it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Billing.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
