// Package main is the entry point for the marketing API server.
//
// It loads configuration, opens the primary and ledger stores, wires the
// payment reconciliation engine and its side-effect runner, mounts the HTTP
// routes and serves until SIGINT or SIGTERM. On shutdown the HTTP server stops
// accepting requests first, then the task runner drains, then the stores close.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"marketingapi/internal/api/handlers"
	"marketingapi/internal/app"
	"marketingapi/internal/config"
	"marketingapi/internal/core"
	"marketingapi/internal/external"
	"marketingapi/internal/leads"
	"marketingapi/internal/payments"
	"marketingapi/internal/tasks"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := app.NewLogger(cfg.LogLevel)
	logger.Info("marketing API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
		"task_runner", cfg.Tasks.Runner,
	)
	for _, problem := range cfg.ProductionReadiness() {
		logger.Error("production readiness check failed", "problem", problem)
	}

	ctx := context.Background()

	stores, err := app.OpenStores(ctx, cfg, true, logger)
	if err != nil {
		return fmt.Errorf("opening stores: %w", err)
	}

	var awsCfg aws.Config
	if app.NeedsAWS(cfg) {
		if awsCfg, err = app.LoadAWSConfig(ctx, cfg); err != nil {
			_ = stores.Close()
			return err
		}
	}

	recorder := app.NewRecorder(cfg, awsCfg, logger)
	notifier := app.NewNotifier(cfg, logger)
	registry := app.NewRegistry(cfg, stores, notifier, recorder, logger)
	runner := app.NewRunner(cfg, awsCfg, registry, logger)
	alerter := payments.NewAlerter(runner, logger)

	engine := payments.NewEngine(payments.EngineConfig{
		Ledger: stores.LedgerRecorder(),
		Authenticator: payments.NewAuthenticator(
			&external.StripeVerifier{},
			cfg.WebhookSecret(),
			cfg.IsProduction(),
			logger,
		),
		Dispatcher: payments.NewDispatcher(runner),
		Alerter:    alerter,
		Metrics:    recorder,
		Logger:     logger,
	})

	var ledgerReader handlers.LedgerReader
	if stores.Ledger != nil {
		ledgerReader = stores.Ledger
	}

	srv, err := buildServer(cfg, logger, routeDeps{
		processor: engine,
		leads:     leads.NewResolver(stores.Leads, logger),
		notifier:  alerter,
		ledger:    ledgerReader,
		checks:    stores.HealthChecks(),
	})
	if err != nil {
		_ = stores.Close()
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Closers = append(srv.Closers, stores)

	return runHTTPServer(srv, runner, cfg, logger)
}

// routeDeps are the domain services behind the HTTP routes.
type routeDeps struct {
	processor handlers.WebhookProcessor
	leads     handlers.LeadUpserter
	notifier  handlers.AdminNotifier
	ledger    handlers.LedgerReader
	checks    []core.HealthCheck
}

// buildServer creates the server and mounts every route.
func buildServer(cfg *config.Config, logger *slog.Logger, d routeDeps) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, err
	}
	srv.HealthChecks = d.checks

	webhook := handlers.NewStripeWebhookHandler(d.processor, cfg.Server.MaxWebhookBody, logger)
	leadHandler := handlers.NewLeadHandler(d.leads, d.notifier, srv.Validator, logger,
		srv.RateLimitByIP(cfg.Security.LeadRateLimit, cfg.Security.LeadRateWindow))
	ledgerHandler := handlers.NewLedgerHandler(d.ledger, srv.RequireAdminKey(cfg.Security.AdminAPIKey), logger)

	srv.WebhookRouteRegistrars = append(srv.WebhookRouteRegistrars, webhook.RegisterRoutes)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		leadHandler.RegisterRoutes,
		ledgerHandler.RegisterRoutes,
	)

	srv.MountRoutes()
	return srv, nil
}

// runHTTPServer serves until a signal or a listener error, then shuts down.
func runHTTPServer(srv *core.Server, runner tasks.Runner, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.Tasks.DrainTimeout)
	defer drainCancel()
	if err := runner.Close(drainCtx); err != nil {
		logger.Error("task runner did not drain", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("server stopped cleanly")
	return nil
}
