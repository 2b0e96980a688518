package external

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"marketingapi/internal/types"
)

func newTestStripeClient(t *testing.T, handler http.HandlerFunc) *StripeClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewStripeClient(&http.Client{Timeout: 5 * time.Second}, StripeClientConfig{
		SecretKey: "sk_test_123",
		BaseURL:   server.URL,
	}, WithSleepFunc(noopSleep))
}

func TestStripeClient_RetrieveCustomer(t *testing.T) {
	client := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/customers/cus_1", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("Stripe-Version"))
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "cus_1", "email": "Ana@Example.com", "name": "Ana"})
	})

	c, err := client.RetrieveCustomer(context.Background(), "cus_1")
	require.NoError(t, err)
	assert.Equal(t, &types.Customer{ID: "cus_1", Email: "Ana@Example.com", Name: "Ana"}, c)
}

func TestStripeClient_RetrieveCustomer_Deleted(t *testing.T) {
	client := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"cus_1","deleted":true}`))
	})

	_, err := client.RetrieveCustomer(context.Background(), "cus_1")
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundObject, appErr.Code)
}

func TestStripeClient_RetrieveObject(t *testing.T) {
	client := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/invoices/in_1", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"in_1","object":"invoice","customer_email":"x@example.com","amount_due":1200}`))
	})

	obj, err := client.RetrieveObject(context.Background(), types.ObjectInvoice, "in_1")
	require.NoError(t, err)
	assert.Equal(t, "x@example.com", obj["customer_email"])
	assert.EqualValues(t, 1200, obj["amount_due"])
}

func TestStripeClient_RetrieveObject_UnsupportedType(t *testing.T) {
	client := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := client.RetrieveObject(context.Background(), types.ObjectType("charge"), "ch_1")
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationInvalidField, appErr.Code)
}

func TestStripeClient_RetrieveSubscription(t *testing.T) {
	client := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/subscriptions/sub_1", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"sub_1","status":"active","metadata":{"plan_label":"Growth"}}`))
	})

	sub, err := client.RetrieveSubscription(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "Growth", sub.Metadata["plan_label"])
}

func TestStripeClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode types.ErrorCode
	}{
		{"not found", http.StatusNotFound, `{"error":{"type":"invalid_request_error","message":"No such customer"}}`, types.ErrCodeNotFoundObject},
		{"unauthorized", http.StatusUnauthorized, `{"error":{"type":"invalid_request_error","message":"Invalid API Key"}}`, types.ErrCodeUpstreamStripe},
		{"bad request", http.StatusBadRequest, `not json`, types.ErrCodeUpstreamStripe},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestStripeClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.RetrieveCustomer(context.Background(), "cus_x")
			var appErr *types.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.wantCode, appErr.Code)
		})
	}
}

func TestStripeClient_BlankKey(t *testing.T) {
	client := NewStripeClient(nil, StripeClientConfig{BaseURL: "http://127.0.0.1:1"})

	_, err := client.RetrieveCustomer(context.Background(), "cus_1")
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamStripe, appErr.Code)
}

func TestStripeVerifier(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"invoice.paid"}`)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    "whsec_test",
		Timestamp: time.Now(),
	})
	v := &StripeVerifier{}

	assert.NoError(t, v.Verify(payload, signed.Header, "whsec_test"))
	assert.Error(t, v.Verify(payload, signed.Header, "whsec_other"))
	assert.Error(t, v.Verify([]byte(`{"id":"evt_2"}`), signed.Header, "whsec_test"))
	assert.Error(t, v.Verify(payload, "t=1,v1=deadbeef", "whsec_test"))
}

func TestStripeVerifier_StaleTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    "whsec_test",
		Timestamp: time.Now().Add(-time.Hour),
	})

	assert.Error(t, (&StripeVerifier{}).Verify(payload, signed.Header, "whsec_test"))
}
