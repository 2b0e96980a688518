package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// SSMClient is the subset of the SSM API the bootstrap tool calls.
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

const ssmOperationTimeout = 15 * time.Second

// SSMManager writes bootstrap parameters under /{env}/marketing-api/.
// Values are never logged; only paths and lengths are.
type SSMManager struct {
	client SSMClient
	env    string
	logger *slog.Logger
}

func NewSSMManager(client SSMClient, env string, logger *slog.Logger) *SSMManager {
	return &SSMManager{client: client, env: env, logger: logger}
}

// Path builds the absolute parameter name for a category/key pair such as
// "billing/stripe_secret_key".
func (m *SSMManager) Path(categoryAndKey string) string {
	return fmt.Sprintf("/%s/marketing-api/%s", m.env, categoryAndKey)
}

// Exists reports whether the parameter is present. It does not decrypt, so
// kms:Decrypt is not needed for the lookup.
func (m *SSMManager) Exists(ctx context.Context, path string) (bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, ssmOperationTimeout)
	defer cancel()

	_, err := m.client.GetParameter(opCtx, &ssm.GetParameterInput{
		Name:           aws.String(path),
		WithDecryption: aws.Bool(false),
	})
	if err != nil {
		var notFound *ssmtypes.ParameterNotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("checking SSM parameter %q: %w", path, err)
	}
	return true, nil
}

// PutSecret stores a SecureString. Overwrite must be explicit.
func (m *SSMManager) PutSecret(ctx context.Context, path, value string, overwrite bool) error {
	return m.put(ctx, path, value, ssmtypes.ParameterTypeSecureString, overwrite)
}

// PutString stores a plain String parameter, replacing any previous value.
func (m *SSMManager) PutString(ctx context.Context, path, value string) error {
	return m.put(ctx, path, value, ssmtypes.ParameterTypeString, true)
}

func (m *SSMManager) put(ctx context.Context, path, value string, paramType ssmtypes.ParameterType, overwrite bool) error {
	if path == "" {
		return errors.New("SSM parameter path must not be empty")
	}
	if value == "" {
		return fmt.Errorf("SSM parameter value must not be empty for path %q", path)
	}

	opCtx, cancel := context.WithTimeout(ctx, ssmOperationTimeout)
	defer cancel()

	_, err := m.client.PutParameter(opCtx, &ssm.PutParameterInput{
		Name:      aws.String(path),
		Value:     aws.String(value),
		Type:      paramType,
		Overwrite: aws.Bool(overwrite),
	})
	if err != nil {
		var exists *ssmtypes.ParameterAlreadyExists
		if errors.As(err, &exists) {
			return fmt.Errorf("SSM parameter %q already exists (overwrite not requested): %w", path, err)
		}
		return fmt.Errorf("writing SSM parameter %q: %w", path, err)
	}

	m.logger.Info("SSM parameter written",
		"path", path,
		"type", string(paramType),
		"value_length", len(value),
		"overwrite", overwrite,
	)
	return nil
}
