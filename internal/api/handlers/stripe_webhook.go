// Package handlers contains the HTTP handlers mounted by cmd/api: the Stripe
// webhook receiver, public lead capture and the admin ledger reader.
package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"marketingapi/internal/core"
	"marketingapi/internal/payments"
	"marketingapi/internal/types"
)

const (
	stripeSignatureHeader     = "Stripe-Signature"
	defaultMaxWebhookBodySize = 1 << 20
)

// WebhookProcessor is the reconciliation engine as seen by the HTTP layer.
type WebhookProcessor interface {
	Process(ctx context.Context, payload []byte, signature string) (payments.Result, error)
}

// StripeWebhookHandler receives Stripe events. It is not behind any auth
// middleware; the engine verifies the Stripe-Signature header.
type StripeWebhookHandler struct {
	processor   WebhookProcessor
	maxBodySize int64
	logger      *slog.Logger
}

// NewStripeWebhookHandler creates a StripeWebhookHandler. A non-positive
// maxBodySize uses 1 MiB.
func NewStripeWebhookHandler(p WebhookProcessor, maxBodySize int64, logger *slog.Logger) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBodySize <= 0 {
		maxBodySize = defaultMaxWebhookBodySize
	}
	return &StripeWebhookHandler{processor: p, maxBodySize: maxBodySize, logger: logger}
}

// RegisterRoutes mounts POST /stripe on the /webhooks router.
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/stripe", h.Handle)
}

// Handle reads the raw body (the signature covers the exact bytes) and hands
// it to the engine. Duplicates and ignored event types still answer 200 so
// Stripe stops redelivering; any error maps to its 4xx/5xx status.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.WarnContext(r.Context(), "webhook body too large", "limit", tooLarge.Limit)
		} else {
			h.logger.WarnContext(r.Context(), "failed to read webhook body", "error", err)
		}
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidPayload, "Invalid payload.", err))
		return
	}

	res, err := h.processor.Process(r.Context(), payload, r.Header.Get(stripeSignatureHeader))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.DebugContext(r.Context(), "webhook acknowledged",
		"event_id", res.EventID,
		"outcome", string(res.Outcome),
	)
	core.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
