package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"marketingapi/internal/payments"
	"marketingapi/internal/types"
)

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) Process(ctx context.Context, payload []byte, signature string) (payments.Result, error) {
	args := m.Called(ctx, payload, signature)
	return args.Get(0).(payments.Result), args.Error(1)
}

func webhookRequest(body, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/stripe", strings.NewReader(body))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	return req
}

func TestStripeWebhook_Acknowledges(t *testing.T) {
	outcomes := []types.WebhookOutcome{types.OutcomeProcessed, types.OutcomeDuplicate, types.OutcomeIgnored}

	for _, outcome := range outcomes {
		t.Run(string(outcome), func(t *testing.T) {
			p := &mockProcessor{}
			body := `{"id":"evt_1","type":"payment_intent.succeeded"}`
			p.On("Process", mock.Anything, []byte(body), "t=1,v1=abc").
				Return(payments.Result{Outcome: outcome, EventID: "evt_1"}, nil)

			rec := do(newRouter(NewStripeWebhookHandler(p, 0, discardLogger())), webhookRequest(body, "t=1,v1=abc"))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
			p.AssertExpectations(t)
		})
	}
}

func TestStripeWebhook_ErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   types.ErrorCode
	}{
		{"missing signature", types.NewAppError(types.ErrCodeAuthSignatureMissing, "Missing Stripe signature.", nil), http.StatusBadRequest, types.ErrCodeAuthSignatureMissing},
		{"invalid signature", types.NewAppError(types.ErrCodeAuthSignatureInvalid, "Invalid Stripe signature.", nil), http.StatusBadRequest, types.ErrCodeAuthSignatureInvalid},
		{"secret missing in production", types.NewAppError(types.ErrCodeConfigWebhookSecret, "Stripe webhook secret not configured.", nil), http.StatusInternalServerError, types.ErrCodeConfigWebhookSecret},
		{"ledger unconfigured", types.NewAppError(types.ErrCodeConfigLedger, "Stripe transaction storage unavailable.", nil), http.StatusInternalServerError, types.ErrCodeConfigLedger},
		{"ledger down", types.NewAppError(types.ErrCodeInternalLedger, "ledger unavailable", errors.New("dial tcp")), http.StatusServiceUnavailable, types.ErrCodeInternalLedger},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, types.ErrCodeInternalUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &mockProcessor{}
			p.On("Process", mock.Anything, mock.Anything, mock.Anything).Return(payments.Result{}, tt.err)

			rec := do(newRouter(NewStripeWebhookHandler(p, 0, discardLogger())), webhookRequest(`{}`, ""))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, string(tt.wantCode), errorCode(t, rec))
		})
	}
}

func TestStripeWebhook_BodyTooLarge(t *testing.T) {
	p := &mockProcessor{}
	h := NewStripeWebhookHandler(p, 16, discardLogger())

	rec := do(newRouter(h), webhookRequest(strings.Repeat("x", 64), "t=1,v1=abc"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationInvalidPayload), errorCode(t, rec))
	p.AssertNotCalled(t, "Process", mock.Anything, mock.Anything, mock.Anything)
}
