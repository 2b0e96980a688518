package config

import "context"

// SecretProvider resolves secret references (SSM parameter paths) to their
// plaintext values. Missing keys are omitted from the returned map.
type SecretProvider interface {
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
