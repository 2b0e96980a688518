// Package app assembles the long-lived dependencies shared by the API server
// and the side-effect worker: stores, vendor clients, telemetry and the task
// registry.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"

	"marketingapi/internal/config"
	"marketingapi/internal/core"
	"marketingapi/internal/db"
	"marketingapi/internal/external"
	"marketingapi/internal/leads"
	"marketingapi/internal/metrics"
	"marketingapi/internal/payments"
	"marketingapi/internal/tasks"
)

const vendorHTTPTimeout = 10 * time.Second

// NewLogger creates the JSON logger used by every entry point.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// LoadConfig loads configuration, resolving SSM pointers outside APP_ENV=local.
func LoadConfig() (*config.Config, error) {
	var provider config.SecretProvider
	if os.Getenv("APP_ENV") != config.EnvLocal {
		provider = config.NewSSMProvider(os.Getenv("AWS_REGION"))
	}
	return config.LoadConfig(provider)
}

// NeedsAWS reports whether any configured component talks to AWS.
func NeedsAWS(cfg *config.Config) bool {
	return cfg.Tasks.Runner == config.TaskRunnerSQS || cfg.Observability.EnableMetrics
}

// LoadAWSConfig loads the SDK configuration for cfg.AWS.Region, honoring a
// LocalStack endpoint override.
func LoadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	if cfg.AWS.EndpointURL != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
	}
	return awsCfg, nil
}

// Stores holds both database handles. LedgerPool and Ledger are nil when the
// ledger store is not configured.
type Stores struct {
	Primary    *gorm.DB
	LedgerPool *pgxpool.Pool

	Leads  *db.LeadRepo
	Ledger *db.LedgerRepo
}

// OpenStores opens the primary database and, when withLedger is set and a
// ledger URL resolves, the ledger pool. A missing ledger in production is not
// fatal: the engine refuses webhooks and alerts instead.
func OpenStores(ctx context.Context, cfg *config.Config, withLedger bool, logger *slog.Logger) (*Stores, error) {
	primary, err := db.OpenPrimary(cfg.Database.URL.Unmask(), db.PrimaryOptions{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}
	s := &Stores{Primary: primary, Leads: db.NewLeadRepo(primary, logger)}

	if !withLedger {
		return s, nil
	}

	url, dedicated := cfg.LedgerURL()
	if url.IsBlank() {
		logger.ErrorContext(ctx, "ledger store not configured; webhooks will be refused")
		return s, nil
	}
	pool, err := db.OpenLedgerPool(ctx, url.Unmask(), db.PoolOptions{
		MaxConns:          int32(cfg.Ledger.MaxConns),
		MinConns:          int32(cfg.Ledger.MinConns),
		MaxConnLifetime:   cfg.Ledger.MaxConnLifetime,
		HealthCheckPeriod: cfg.Ledger.HealthCheckPeriod,
		AcquireTimeout:    cfg.Ledger.AcquireTimeout,
	})
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	if !dedicated {
		logger.WarnContext(ctx, "ledger store shares the primary database", "environment", cfg.Environment)
	}
	s.LedgerPool = pool
	s.Ledger = db.NewLedgerRepo(pool, logger)
	return s, nil
}

// LedgerRecorder returns the ledger as the engine's interface, keeping an
// unconfigured store a true nil.
func (s *Stores) LedgerRecorder() payments.Ledger {
	if s.Ledger == nil {
		return nil
	}
	return s.Ledger
}

// HealthChecks returns one check per open store.
func (s *Stores) HealthChecks() []core.HealthCheck {
	checks := []core.HealthCheck{core.PingCheck{Label: "primary", Pinger: gormPinger{s.Primary}}}
	if s.LedgerPool != nil {
		checks = append(checks, core.PingCheck{Label: "ledger", Pinger: s.LedgerPool})
	}
	return checks
}

// Close releases both stores.
func (s *Stores) Close() error {
	if s.LedgerPool != nil {
		s.LedgerPool.Close()
	}
	sqlDB, err := s.Primary.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type gormPinger struct{ gdb *gorm.DB }

func (p gormPinger) Ping(ctx context.Context) error { return db.PingGorm(ctx, p.gdb) }

// NewNotifier builds the customer/admin notifier. Unconfigured providers are
// replaced by logging stubs.
func NewNotifier(cfg *config.Config, logger *slog.Logger) *payments.Notifier {
	httpClient := &http.Client{Timeout: vendorHTTPTimeout}

	var email external.EmailSender = external.NewStubEmailSender(logger)
	if !cfg.Email.SendGridAPIKey.IsBlank() {
		email = external.NewSendGridClient(httpClient, external.SendGridConfig{
			APIKey:      cfg.Email.SendGridAPIKey,
			BaseURL:     cfg.Email.SendGridBaseURL,
			FromAddress: cfg.Email.FromAddress,
			FromName:    cfg.Email.FromName,
			Logger:      logger,
		})
	} else {
		logger.Warn("SENDGRID_API_KEY not set; emails are logged only")
	}

	var push external.PushNotifier = external.NewStubPushNotifier(logger)
	pushover := external.NewPushoverClient(httpClient, external.PushoverConfig{
		AppToken: cfg.Push.AppToken,
		UserKey:  cfg.Push.UserKey,
		GroupKey: cfg.Push.GroupKey,
		BaseURL:  cfg.Push.BaseURL,
	})
	if pushover.Configured() {
		push = pushover
	}

	return payments.NewNotifier(email, push, cfg.Email.AdminEmail, logger)
}

// NewRecorder returns a CloudWatch recorder when metrics are enabled.
func NewRecorder(cfg *config.Config, awsCfg aws.Config, logger *slog.Logger) metrics.Recorder {
	if !cfg.Observability.EnableMetrics {
		return metrics.Noop{}
	}
	return metrics.NewCloudWatchRecorder(cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace, logger)
}

// NewRegistry registers the handlers for every task kind.
func NewRegistry(cfg *config.Config, stores *Stores, notifier *payments.Notifier, recorder metrics.Recorder, logger *slog.Logger) *tasks.Registry {
	processor := external.NewStripeClient(&http.Client{Timeout: vendorHTTPTimeout}, external.StripeClientConfig{
		SecretKey: cfg.Billing.StripeSecretKey,
		BaseURL:   cfg.Billing.StripeAPIBase,
		Logger:    logger,
	})

	sideEffects := payments.NewSideEffects(payments.SideEffectsConfig{
		Processor: processor,
		Leads:     leads.NewResolver(stores.Leads, logger),
		Notifier:  notifier,
		Metrics:   recorder,
		Brand:     cfg.BrandName,
		Logger:    logger,
	})

	registry := tasks.NewRegistry()
	registry.Register(tasks.KindPaymentSideEffects, sideEffects.Handle)
	registry.Register(tasks.KindAdminAlert, payments.AlertHandler(notifier))
	return registry
}

// NewRunner returns the configured task runner.
func NewRunner(cfg *config.Config, awsCfg aws.Config, registry *tasks.Registry, logger *slog.Logger) tasks.Runner {
	if cfg.Tasks.Runner == config.TaskRunnerSQS {
		return tasks.NewSQSRunner(sqs.NewFromConfig(awsCfg), cfg.Tasks.SideEffectQueue, logger)
	}
	return tasks.NewLocalRunner(registry, tasks.LocalOptions{
		MaxConcurrent:  cfg.Tasks.MaxConcurrent,
		MaxAttempts:    cfg.Tasks.MaxAttempts,
		RetryBaseDelay: cfg.Tasks.RetryBaseDelay,
	}, logger)
}
