// Package config defines the process configuration for the marketing API and
// its side-effect worker. Configuration is loaded once at startup and is
// immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format fails startup.
package config

import (
	"strings"
	"time"

	"marketingapi/internal/types"
)

// SecretString is an alias for types.SecretString so config consumers do not
// need to import the types package for secret fields.
type SecretString = types.SecretString

// Environment names accepted in APP_ENV.
const (
	EnvLocal       = "local"
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// PlaceholderWebhookSecret is the value shipped in sample env files. It is
// treated exactly like an unset secret.
const PlaceholderWebhookSecret = "whsec_change_me"

// Task runner backends.
const (
	TaskRunnerLocal = "local"
	TaskRunnerSQS   = "sqs"
)

// Config is the top-level configuration struct.
// Sub-components receive only the config subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"development" validate:"required,oneof=local development staging production"`
	Service     string `envconfig:"SERVICE_NAME" default:"marketing-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	BrandName   string `envconfig:"BRAND_NAME" default:"Carolina Growth"`

	Server        ServerConfig
	Database      DatabaseConfig
	Ledger        LedgerConfig
	Billing       BillingConfig
	Email         EmailConfig
	Push          PushConfig
	Tasks         TaskConfig
	AWS           AWSConfig
	Security      SecurityConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"25s"`
	MaxWebhookBody int64         `envconfig:"MAX_WEBHOOK_BODY_BYTES" default:"1048576" validate:"min=1024"`
}

// DatabaseConfig holds the primary application database used for leads.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxOpenConns    int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
}

// LedgerConfig holds the dedicated transaction ledger store. It is a separate
// connection from DatabaseConfig and may point at a different instance.
type LedgerConfig struct {
	URL SecretString `envconfig:"LEDGER_DATABASE_URL"`

	MaxConns          int           `envconfig:"LEDGER_MAX_CONNS" default:"5"`
	MinConns          int           `envconfig:"LEDGER_MIN_CONNS" default:"1"`
	MaxConnLifetime   time.Duration `envconfig:"LEDGER_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"LEDGER_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"LEDGER_HEALTH_CHECK_PERIOD" default:"1m"`
}

// BillingConfig holds Stripe credentials.
type BillingConfig struct {
	StripeSecretKey     SecretString `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret SecretString `envconfig:"STRIPE_WEBHOOK_SECRET"`
	StripeAPIBase       string       `envconfig:"STRIPE_API_BASE" default:"https://api.stripe.com" validate:"url"`
}

// EmailConfig holds SendGrid delivery settings.
type EmailConfig struct {
	SendGridAPIKey  SecretString `envconfig:"SENDGRID_API_KEY"`
	SendGridBaseURL string       `envconfig:"SENDGRID_BASE_URL" default:"https://api.sendgrid.com" validate:"url"`
	FromAddress     string       `envconfig:"EMAIL_FROM_ADDRESS" default:"hello@carolinagrowth.co" validate:"email"`
	FromName        string       `envconfig:"EMAIL_FROM_NAME" default:"Carolina Growth"`
	AdminEmail      string       `envconfig:"ADMIN_EMAIL" validate:"omitempty,email"`
}

// PushConfig holds Pushover credentials for admin push notifications.
// A group key takes precedence over a user key.
type PushConfig struct {
	AppToken SecretString `envconfig:"PUSHOVER_APP_TOKEN"`
	UserKey  SecretString `envconfig:"PUSHOVER_USER_KEY"`
	GroupKey SecretString `envconfig:"PUSHOVER_GROUP_KEY"`
	BaseURL  string       `envconfig:"PUSHOVER_BASE_URL" default:"https://api.pushover.net" validate:"url"`
}

// TaskConfig selects and tunes the side-effect task runner.
type TaskConfig struct {
	Runner          string        `envconfig:"TASK_RUNNER" default:"local" validate:"oneof=local sqs"`
	SideEffectQueue string        `envconfig:"SQS_SIDE_EFFECTS" validate:"omitempty,url"`
	MaxConcurrent   int64         `envconfig:"TASK_MAX_CONCURRENT" default:"8" validate:"min=1"`
	MaxAttempts     int           `envconfig:"TASK_MAX_ATTEMPTS" default:"3" validate:"min=1"`
	RetryBaseDelay  time.Duration `envconfig:"TASK_RETRY_BASE_DELAY" default:"500ms"`
	DrainTimeout    time.Duration `envconfig:"TASK_DRAIN_TIMEOUT" default:"20s"`
}

// AWSConfig holds regional configuration for SQS, CloudWatch and SSM.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// SecurityConfig holds admin access settings.
type SecurityConfig struct {
	AdminAPIKey SecretString `envconfig:"ADMIN_API_KEY"`

	// Public lead capture is limited per client IP.
	LeadRateLimit  int           `envconfig:"LEAD_RATE_LIMIT" default:"10" validate:"min=1"`
	LeadRateWindow time.Duration `envconfig:"LEAD_RATE_WINDOW" default:"1h"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"MarketingAPI"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// IsProduction reports whether the process runs with production guarantees.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, EnvProduction)
}

// WebhookSecret returns the configured signing secret, or an empty secret when
// it is unset or still the sample placeholder.
func (c *Config) WebhookSecret() SecretString {
	s := strings.TrimSpace(c.Billing.StripeWebhookSecret.Unmask())
	if s == "" || s == PlaceholderWebhookSecret {
		return ""
	}
	return SecretString(s)
}

// LedgerURL returns the connection string for the ledger store and whether it
// is a dedicated store. Outside production a missing ledger URL falls back to
// the primary database; in production it never does, and the empty result
// must be treated as a misconfiguration.
func (c *Config) LedgerURL() (SecretString, bool) {
	if !c.Ledger.URL.IsBlank() {
		return c.Ledger.URL, true
	}
	if c.IsProduction() {
		return "", false
	}
	return c.Database.URL, false
}

// ProductionReadiness lists the settings that make a production deployment
// refuse webhooks. It returns nil outside production or when nothing is missing.
func (c *Config) ProductionReadiness() []string {
	if !c.IsProduction() {
		return nil
	}
	var problems []string
	if c.Ledger.URL.IsBlank() {
		problems = append(problems, "LEDGER_DATABASE_URL is not configured")
	}
	if c.WebhookSecret().IsBlank() {
		problems = append(problems, "STRIPE_WEBHOOK_SECRET is not configured")
	}
	return problems
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
