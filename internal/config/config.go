package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the subscription service. It is loaded
// once in main and handed to each component's constructor.
type Config struct {
	Application ApplicationConfig `yaml:"application"`
	Log         LogConfig         `yaml:"log"`
	Database    DatabaseConfig    `yaml:"database"`
	Storage     StorageConfig     `yaml:"storage"`
	Redis       RedisConfig       `yaml:"redis"`
	Events      EventsConfig      `yaml:"events"`
	Email       EmailConfig       `yaml:"email"`
	Worker      WorkerConfig      `yaml:"worker"`
	Tracing     TracingConfig     `yaml:"tracing"`
}

// ApplicationConfig identifies this deployment and where it is reachable.
type ApplicationConfig struct {
	ID       string `yaml:"id"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Protocol string `yaml:"protocol"`
	// BaseURL overrides the public address used in confirmation links.
	BaseURL string `yaml:"base_url"`
}

// Addr returns the listen address for the HTTP server.
func (c ApplicationConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logger settings
type LogConfig struct {
	Mode      string `yaml:"mode"`
	Level     string `yaml:"level"`
	RedactPII bool   `yaml:"redact_pii"`
}

// DatabaseConfig holds the Postgres connection and pool settings
type DatabaseConfig struct {
	URL                    string `yaml:"url"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `yaml:"conn_max_lifetime_seconds"`
}

// ConnMaxLifetime returns the configured connection lifetime as a duration
func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeSeconds) * time.Second
}

// StorageConfig selects the subscription store backend
type StorageConfig struct {
	Driver string `yaml:"driver"` // "postgres" or "memory"
}

// RedisConfig holds the connection settings for the event channel
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// EventsConfig names the subject and queue group used for SubscriptionCreated.
type EventsConfig struct {
	SubscriptionCreatedSubject string `yaml:"subscription_created_subject"`
	SubscriptionCreatedGroup   string `yaml:"subscription_created_group"`
	BlockSeconds               int    `yaml:"block_seconds"`
	ClaimIdleSeconds           int    `yaml:"claim_idle_seconds"`
	// MaxLen caps the stream length. Entries beyond it are trimmed even if
	// unacknowledged, so it must stay well above the expected backlog.
	MaxLen int64 `yaml:"max_len"`
}

// Block returns how long a consumer waits for new entries per read
func (c EventsConfig) Block() time.Duration {
	return time.Duration(c.BlockSeconds) * time.Second
}

// ClaimIdle returns how long an entry may stay unacknowledged before another
// consumer in the group reclaims it
func (c EventsConfig) ClaimIdle() time.Duration {
	return time.Duration(c.ClaimIdleSeconds) * time.Second
}

// EmailConfig holds the outbound email provider settings
type EmailConfig struct {
	Provider       string    `yaml:"provider"` // "sendgrid" or "ses"
	SenderEmail    string    `yaml:"sender_email"`
	BaseURL        string    `yaml:"base_url"`
	APIKey         string    `yaml:"api_key"`
	TimeoutSeconds int       `yaml:"timeout_seconds"`
	Subject        string    `yaml:"subject"`
	TextTemplate   string    `yaml:"text_template"`
	SES            SESConfig `yaml:"ses"`
}

// Timeout returns the configured send timeout as a duration
func (c EmailConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SESConfig holds AWS SES credentials
type SESConfig struct {
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// WorkerConfig controls the delivery worker and its supervisor
type WorkerConfig struct {
	Embedded                 bool `yaml:"embedded"`
	RestartBackoffSeconds    int  `yaml:"restart_backoff_seconds"`
	MaxRestartBackoffSeconds int  `yaml:"max_restart_backoff_seconds"`
}

// RestartBackoff returns the initial supervisor restart delay
func (c WorkerConfig) RestartBackoff() time.Duration {
	return time.Duration(c.RestartBackoffSeconds) * time.Second
}

// MaxRestartBackoff returns the cap on the supervisor restart delay
func (c WorkerConfig) MaxRestartBackoff() time.Duration {
	return time.Duration(c.MaxRestartBackoffSeconds) * time.Second
}

// TracingConfig toggles OpenTelemetry tracing
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"` // 0 samples everything
}

// DefaultTextTemplate is the confirmation email body. It must render exactly
// one URL.
const DefaultTextTemplate = `Hi {{ name }},

Welcome to our newsletter!
Please confirm your subscription by visiting {{ confirmation_link }}

If you did not sign up, you can ignore this email.`

// ApplicationBaseURL returns the public base address used to build
// confirmation links.
func (c *Config) ApplicationBaseURL() string {
	if c.Application.BaseURL != "" {
		return strings.TrimRight(c.Application.BaseURL, "/")
	}
	return fmt.Sprintf("%s://%s:%d", c.Application.Protocol, c.Application.Host, c.Application.Port)
}

// SubscriptionCreatedSubject returns the application-scoped event subject.
func (c *Config) SubscriptionCreatedSubject() string {
	return fmt.Sprintf("%s-%s", c.Application.ID, c.Events.SubscriptionCreatedSubject)
}

// Validate reports configuration that would fail at runtime.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres storage driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Email.Provider {
	case "sendgrid", "ses":
	default:
		return fmt.Errorf("unknown email provider %q", c.Email.Provider)
	}
	if c.Email.SenderEmail == "" {
		return fmt.Errorf("email.sender_email is required")
	}
	if c.Application.ID == "" {
		return fmt.Errorf("application.id is required")
	}
	return nil
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Config{Log: LogConfig{RedactPII: true}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Application.ID == "" {
		c.Application.ID = "newsletter"
	}
	if c.Application.Host == "" {
		c.Application.Host = "127.0.0.1"
	}
	if c.Application.Port == 0 {
		c.Application.Port = 8000
	}
	if c.Application.Protocol == "" {
		c.Application.Protocol = "http"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetimeSeconds == 0 {
		c.Database.ConnMaxLifetimeSeconds = 300
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "postgres"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Events.SubscriptionCreatedSubject == "" {
		c.Events.SubscriptionCreatedSubject = "subscription-created"
	}
	if c.Events.SubscriptionCreatedGroup == "" {
		c.Events.SubscriptionCreatedGroup = "email-delivery"
	}
	if c.Events.BlockSeconds == 0 {
		c.Events.BlockSeconds = 5
	}
	if c.Events.ClaimIdleSeconds == 0 {
		c.Events.ClaimIdleSeconds = 60
	}
	if c.Events.MaxLen == 0 {
		c.Events.MaxLen = 100000
	}
	if c.Email.Provider == "" {
		c.Email.Provider = "sendgrid"
	}
	if c.Email.BaseURL == "" {
		c.Email.BaseURL = "https://api.sendgrid.com/v3"
	}
	if c.Email.TimeoutSeconds == 0 {
		c.Email.TimeoutSeconds = 10
	}
	if c.Email.Subject == "" {
		c.Email.Subject = "Welcome!"
	}
	if c.Email.TextTemplate == "" {
		c.Email.TextTemplate = DefaultTextTemplate
	}
	if c.Email.SES.Region == "" {
		c.Email.SES.Region = "us-east-1"
	}
	if c.Worker.RestartBackoffSeconds == 0 {
		c.Worker.RestartBackoffSeconds = 1
	}
	if c.Worker.MaxRestartBackoffSeconds == 0 {
		c.Worker.MaxRestartBackoffSeconds = 30
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "subscriptions"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads .env.local and .env files (if present) before
// reading env vars; variables already set in the environment win.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("APPLICATION_ID"); v != "" {
		cfg.Application.ID = v
	}
	if v := os.Getenv("APPLICATION_HOST"); v != "" {
		cfg.Application.Host = v
	}
	if v := os.Getenv("APPLICATION_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("APPLICATION_PORT: %w", err)
		}
		cfg.Application.Port = port
	}
	if v := os.Getenv("APPLICATION_PROTOCOL"); v != "" {
		cfg.Application.Protocol = v
	}
	if v := os.Getenv("APPLICATION_BASE_URL"); v != "" {
		cfg.Application.BaseURL = v
	}
	if v := os.Getenv("LOG_MODE"); v != "" {
		cfg.Log.Mode = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("EMAIL_PROVIDER"); v != "" {
		cfg.Email.Provider = v
	}
	if v := os.Getenv("EMAIL_SENDER"); v != "" {
		cfg.Email.SenderEmail = v
	}
	if v := os.Getenv("EMAIL_BASE_URL"); v != "" {
		cfg.Email.BaseURL = v
	}
	if v := os.Getenv("SENDGRID_API_KEY"); v != "" {
		cfg.Email.APIKey = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.Email.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.Email.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.Email.SES.Region = v
	}

	return cfg, nil
}
