package core

import "context"

// HealthCheck is one dependency checked by GET /health.
type HealthCheck interface {
	// Name identifies the check in the response (e.g. "ledger", "primary").
	Name() string
	// Check must respect the context deadline.
	Check(ctx context.Context) error
}
