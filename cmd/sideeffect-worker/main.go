// Package main is the entry point for the side-effect worker Lambda.
//
// The API enqueues payment side effects and admin alerts on the SQS queue
// named by SQS_SIDE_EFFECTS when TASK_RUNNER=sqs. This worker consumes that
// queue with partial batch responses: a failed task is reported back so only
// it is redelivered, and the queue's redrive policy bounds the attempts.
//
// Cold start:
//  1. Load configuration (SSM pointers resolved outside APP_ENV=local).
//  2. Open the primary store. The ledger is not needed here.
//  3. Build the notifier, metrics recorder and task registry.
//  4. Start the Lambda loop with tasks.Worker.HandleSQS.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"

	"marketingapi/internal/app"
	"marketingapi/internal/tasks"
)

func main() {
	worker, err := initWorker(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	lambda.Start(worker.HandleSQS)
}

func initWorker(ctx context.Context) (*tasks.Worker, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger := app.NewLogger(cfg.LogLevel).With("component", "sideeffect-worker")
	logger.Info("side-effect worker initializing (cold start)",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
	)

	stores, err := app.OpenStores(ctx, cfg, false, logger)
	if err != nil {
		return nil, fmt.Errorf("opening stores: %w", err)
	}

	var awsCfg aws.Config
	if cfg.Observability.EnableMetrics {
		if awsCfg, err = app.LoadAWSConfig(ctx, cfg); err != nil {
			return nil, err
		}
	}

	recorder := app.NewRecorder(cfg, awsCfg, logger)
	notifier := app.NewNotifier(cfg, logger)
	registry := app.NewRegistry(cfg, stores, notifier, recorder, logger)

	return tasks.NewWorker(registry, logger), nil
}
