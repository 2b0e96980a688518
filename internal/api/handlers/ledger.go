package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"marketingapi/internal/core"
	"marketingapi/internal/types"
)

// LedgerReader is read access to the transaction ledger.
type LedgerReader interface {
	FindByObjectKey(ctx context.Context, objectID string, objectType types.ObjectType) (*types.TransactionRecord, error)
	FindEvent(ctx context.Context, eventID string) (*types.WebhookEventRecord, error)
}

// LedgerHandler exposes ledger rows to operators.
type LedgerHandler struct {
	reader LedgerReader
	guard  func(http.Handler) http.Handler
	logger *slog.Logger
}

// NewLedgerHandler creates a LedgerHandler. reader is nil when the ledger store
// is not configured; guard protects every route.
func NewLedgerHandler(reader LedgerReader, guard func(http.Handler) http.Handler, logger *slog.Logger) *LedgerHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerHandler{reader: reader, guard: guard, logger: logger}
}

// RegisterRoutes mounts the admin ledger routes on the /v1 router.
func (h *LedgerHandler) RegisterRoutes(r chi.Router) {
	r.Route("/ledger", func(r chi.Router) {
		if h.guard != nil {
			r.Use(h.guard)
		}
		r.Get("/events/{event_id}", h.GetEvent)
		r.Get("/{object_type}/{object_id}", h.GetTransaction)
	})
}

// GetTransaction returns the canonical row for one Stripe object.
func (h *LedgerHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w, r) {
		return
	}

	objectType := types.ObjectType(chi.URLParam(r, "object_type"))
	if objectType != types.ObjectPaymentIntent && objectType != types.ObjectInvoice {
		core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidField,
			"object_type must be payment_intent or invoice.", nil,
			map[string]any{"object_type": string(objectType)}))
		return
	}
	objectID := chi.URLParam(r, "object_id")

	rec, err := h.reader.FindByObjectKey(r.Context(), objectID, objectType)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "ledger read failed", "object_id", objectID, "error", err)
		core.Error(w, r, err)
		return
	}
	if rec == nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundTransaction, "Transaction not found.", nil))
		return
	}
	core.JSON(w, r, http.StatusOK, rec)
}

// GetEvent returns the stored delivery for one event ID.
func (h *LedgerHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	if !h.configured(w, r) {
		return
	}

	eventID := chi.URLParam(r, "event_id")
	rec, err := h.reader.FindEvent(r.Context(), eventID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "ledger event read failed", "event_id", eventID, "error", err)
		core.Error(w, r, err)
		return
	}
	if rec == nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundTransaction, "Event not found.", nil))
		return
	}
	core.JSON(w, r, http.StatusOK, rec)
}

func (h *LedgerHandler) configured(w http.ResponseWriter, r *http.Request) bool {
	if h.reader == nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeConfigLedger, "Stripe transaction storage unavailable.", nil))
		return false
	}
	return true
}
