// Package main is the operator tool that seeds SSM Parameter Store with the
// secrets the marketing API and side-effect worker resolve at startup.
//
// Usage:
//
//	go run ./cmd/ops/bootstrap --env=development
//	go run ./cmd/ops/bootstrap --env=production --profile=marketing-prod --print-env
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

var validEnvironments = map[string]bool{
	"development": true,
	"staging":     true,
	"production":  true,
}

type session struct {
	Env       string
	Region    string
	AccountID string
	CallerARN string
	AWS       aws.Config
}

func main() {
	env := flag.String("env", "", "Target environment (development/staging/production) [required]")
	profile := flag.String("profile", "", "AWS CLI profile (default credential chain when empty)")
	region := flag.String("region", "us-east-1", "AWS region")
	overwrite := flag.Bool("overwrite", false, "Replace parameters that already exist")
	printEnv := flag.Bool("print-env", false, "Print VAR_SSM_PARAM pointers to stdout when done")
	flag.Parse()

	if !validEnvironments[*env] {
		fmt.Fprintf(os.Stderr, "error: --env must be development, staging, or production (got %q)\n", *env)
		flag.Usage()
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sess, err := initializeSession(ctx, *env, *profile, *region, logger)
	if err != nil {
		logger.Error("initialization failed", "error", err)
		os.Exit(1)
	}

	if sess.Env == "production" && !confirm(os.Stdin, os.Stderr, sess) {
		fmt.Fprintln(os.Stderr, "Aborted. No changes were made.")
		return
	}

	runner := NewRunner(NewSSMManager(ssm.NewFromConfig(sess.AWS), sess.Env, logger), os.Stdin, os.Stderr)
	runner.Overwrite = *overwrite

	results, err := runner.Run(ctx)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}

	if *printEnv {
		if err := WriteEnvPointers(os.Stdout, results); err != nil {
			logger.Error("failed to print env pointers", "error", err)
			os.Exit(1)
		}
	}
	logger.Info("bootstrap completed", "env", sess.Env, "account", sess.AccountID)
}

// initializeSession loads AWS credentials and confirms them with STS before
// anything is written.
func initializeSession(ctx context.Context, env, profile, region string, logger *slog.Logger) (*session, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	idCtx, idCancel := context.WithTimeout(ctx, 10*time.Second)
	defer idCancel()

	identity, err := sts.NewFromConfig(cfg).GetCallerIdentity(idCtx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("verifying AWS identity (profile %q, region %q): %w", profile, region, err)
	}

	sess := &session{
		Env:       env,
		Region:    region,
		AccountID: aws.ToString(identity.Account),
		CallerARN: aws.ToString(identity.Arn),
		AWS:       cfg,
	}
	logger.Info("AWS identity verified", "account_id", sess.AccountID, "arn", sess.CallerARN, "region", region)
	return sess, nil
}

// confirm requires the operator to type "yes" before production is touched.
func confirm(in io.Reader, out io.Writer, sess *session) bool {
	fmt.Fprintln(out, "\n  WARNING: targeting PRODUCTION")
	fmt.Fprintf(out, "  Account: %s\n  Region:  %s\n  ARN:     %s\n\n", sess.AccountID, sess.Region, sess.CallerARN)
	fmt.Fprint(out, "Type 'yes' to continue: ")

	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(scanner.Text()), "yes")
}
