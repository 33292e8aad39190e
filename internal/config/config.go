package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers.
const (
	StorageFirestore = "firestore"
	StorageMemory    = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	Port          string `mapstructure:"PORT"`
	GinMode       string `mapstructure:"GIN_MODE"`
	StorageDriver string `mapstructure:"STORAGE_DRIVER"`

	FirebaseProjectID                string `mapstructure:"FIREBASE_PROJECT_ID"`
	GoogleApplicationCredentials     string `mapstructure:"GOOGLE_APPLICATION_CREDENTIALS"`
	FirebaseServiceAccountJSONBase64 string `mapstructure:"FIREBASE_SERVICE_ACCOUNT_JSON_BASE64"`

	StripeSecretKey     string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	CheckoutSuccessURL  string `mapstructure:"CHECKOUT_SUCCESS_URL"`
	CheckoutCancelURL   string `mapstructure:"CHECKOUT_CANCEL_URL"`
	PortalReturnURL     string `mapstructure:"PORTAL_RETURN_URL"`

	CatalogPath        string `mapstructure:"CATALOG_PATH"`
	SignupBonusCredits int    `mapstructure:"SIGNUP_BONUS_CREDITS"`

	GeneratorURL      string        `mapstructure:"GENERATOR_URL"`
	GeneratorAPIKey   string        `mapstructure:"GENERATOR_API_KEY"`
	GenerationTimeout time.Duration `mapstructure:"GENERATION_TIMEOUT"`

	RedisURL             string        `mapstructure:"REDIS_URL"`
	GenerationRateLimit  int           `mapstructure:"GENERATION_RATE_LIMIT"`
	GenerationRateWindow time.Duration `mapstructure:"GENERATION_RATE_WINDOW"`

	RabbitMQURL    string `mapstructure:"RABBITMQ_URL"`
	LedgerExchange string `mapstructure:"LEDGER_EXCHANGE"`

	SMTPHost      string `mapstructure:"SMTP_HOST"`
	SMTPPort      string `mapstructure:"SMTP_PORT"`
	SMTPUser      string `mapstructure:"SMTP_USER"`
	SMTPPass      string `mapstructure:"SMTP_PASS"`
	AlertSender   string `mapstructure:"ALERT_SENDER"`
	OperatorEmail string `mapstructure:"OPERATOR_EMAIL"`

	ClientURL string `mapstructure:"CLIENT_URL"`
}

var envKeys = []string{
	"PORT", "GIN_MODE", "STORAGE_DRIVER",
	"FIREBASE_PROJECT_ID", "GOOGLE_APPLICATION_CREDENTIALS", "FIREBASE_SERVICE_ACCOUNT_JSON_BASE64",
	"STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET", "CHECKOUT_SUCCESS_URL", "CHECKOUT_CANCEL_URL", "PORTAL_RETURN_URL",
	"CATALOG_PATH", "SIGNUP_BONUS_CREDITS",
	"GENERATOR_URL", "GENERATOR_API_KEY", "GENERATION_TIMEOUT",
	"REDIS_URL", "GENERATION_RATE_LIMIT", "GENERATION_RATE_WINDOW",
	"RABBITMQ_URL", "LEDGER_EXCHANGE",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USER", "SMTP_PASS", "ALERT_SENDER", "OPERATOR_EMAIL",
	"CLIENT_URL",
}

// LoadConfig loads configuration from environment variables using Viper.
func LoadConfig() (*Config, error) {
	return load(viper.New(), (*Config).Validate)
}

// LoadToolConfig loads the same environment for operator tooling, which only
// needs storage and messaging settings.
func LoadToolConfig() (*Config, error) {
	return load(viper.New(), (*Config).validateStorage)
}

func load(v *viper.Viper, validate func(*Config) error) (*Config, error) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", "8080")
	v.SetDefault("GIN_MODE", "debug")
	v.SetDefault("STORAGE_DRIVER", StorageFirestore)
	v.SetDefault("CATALOG_PATH", "configs/catalog.yaml")
	v.SetDefault("SIGNUP_BONUS_CREDITS", 10)
	v.SetDefault("GENERATION_TIMEOUT", "90s")
	v.SetDefault("GENERATION_RATE_LIMIT", 10)
	v.SetDefault("GENERATION_RATE_WINDOW", "1m")
	v.SetDefault("LEDGER_EXCHANGE", "ledger.events")
	v.SetDefault("SMTP_PORT", "587")

	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.New("failed to unmarshal config: " + err.Error())
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validateStorage() error {
	switch c.StorageDriver {
	case StorageFirestore:
		if c.FirebaseProjectID == "" {
			return errors.New("FIREBASE_PROJECT_ID is required")
		}
	case StorageMemory:
	default:
		return errors.New("STORAGE_DRIVER must be 'firestore' or 'memory'")
	}
	return nil
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if c.StripeSecretKey == "" {
		return errors.New("STRIPE_SECRET_KEY is required")
	}
	if c.StripeWebhookSecret == "" {
		return errors.New("STRIPE_WEBHOOK_SECRET is required")
	}
	if c.ClientURL == "" {
		return errors.New("CLIENT_URL is required")
	}
	if c.GeneratorURL == "" {
		return errors.New("GENERATOR_URL is required")
	}
	if c.GenerationTimeout <= 0 {
		return errors.New("GENERATION_TIMEOUT must be positive")
	}
	if c.SignupBonusCredits < 0 {
		return errors.New("SIGNUP_BONUS_CREDITS must not be negative")
	}
	if c.CheckoutSuccessURL == "" {
		c.CheckoutSuccessURL = strings.TrimSuffix(c.ClientURL, "/") + "/billing/success?session_id={CHECKOUT_SESSION_ID}"
	}
	if c.CheckoutCancelURL == "" {
		c.CheckoutCancelURL = strings.TrimSuffix(c.ClientURL, "/") + "/billing/cancelled"
	}
	if c.PortalReturnURL == "" {
		c.PortalReturnURL = strings.TrimSuffix(c.ClientURL, "/") + "/account"
	}
	return nil
}

// AlertsEnabled reports whether operator alert mail can be sent.
func (c *Config) AlertsEnabled() bool {
	return c.SMTPHost != "" && c.OperatorEmail != "" && c.AlertSender != ""
}
