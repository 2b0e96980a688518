package payments

import (
	"log/slog"
	"strings"

	"marketingapi/internal/external"
	"marketingapi/internal/types"
)

// Authenticator verifies and parses inbound webhook deliveries.
//
// With a signing secret every delivery must carry a valid signature. Without
// one, production refuses every delivery and other environments accept
// unsigned payloads.
type Authenticator struct {
	verifier   external.WebhookVerifier
	secret     types.SecretString
	production bool
	logger     *slog.Logger
}

// NewAuthenticator creates an Authenticator. secret must already have
// placeholder values stripped (see config.Config.WebhookSecret).
func NewAuthenticator(verifier external.WebhookVerifier, secret types.SecretString, production bool, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{verifier: verifier, secret: secret, production: production, logger: logger}
}

// Authenticate returns the parsed event or an AppError: config_ when production
// has no secret, auth_signature_ for signature problems and validation_ for
// undecodable payloads.
func (a *Authenticator) Authenticate(payload []byte, signature string) (*Event, error) {
	if a.secret.IsBlank() {
		if a.production {
			return nil, types.NewAppError(types.ErrCodeConfigWebhookSecret, "Stripe webhook secret not configured.", nil)
		}
		a.logger.Debug("webhook signing secret not configured; accepting unsigned payload")
		return parseEvent(payload)
	}

	if strings.TrimSpace(signature) == "" {
		return nil, types.NewAppError(types.ErrCodeAuthSignatureMissing, "Missing Stripe signature.", nil)
	}
	if err := a.verifier.Verify(payload, signature, a.secret.Unmask()); err != nil {
		return nil, types.NewAppError(types.ErrCodeAuthSignatureInvalid, "Invalid Stripe signature.", err)
	}
	return parseEvent(payload)
}
