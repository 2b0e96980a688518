package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"marketingapi/internal/types"
)

const stripeAPIBase = "https://api.stripe.com"

// objectPaths maps ledgered object types to their REST collection.
var objectPaths = map[types.ObjectType]string{
	types.ObjectPaymentIntent: "/v1/payment_intents/",
	types.ObjectInvoice:       "/v1/invoices/",
}

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	SecretKey types.SecretString
	BaseURL   string
	Logger    *slog.Logger
}

// StripeClient implements PaymentProcessor with direct REST calls through
// BaseClient. The API key is held by the instance, never set globally.
type StripeClient struct {
	base      *BaseClient
	secretKey types.SecretString
	baseURL   string
	logger    *slog.Logger
}

// NewStripeClient creates a StripeClient.
func NewStripeClient(httpClient *http.Client, cfg StripeClientConfig, opts ...BaseClientOption) *StripeClient {
	return NewStripeClientWithBase(
		NewBaseClient(httpClient, "stripe", DefaultRetryPolicy(), "marketing-api/1.0", opts...),
		cfg,
	)
}

// NewStripeClientWithBase creates a StripeClient with a pre-configured BaseClient.
func NewStripeClientWithBase(base *BaseClient, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeClient{
		base:      base,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
	}
}

// RetrieveCustomer fetches a customer by ID.
func (s *StripeClient) RetrieveCustomer(ctx context.Context, customerID string) (*types.Customer, error) {
	var c stripeCustomer
	if err := s.getJSON(ctx, "RetrieveCustomer", "/v1/customers/"+url.PathEscape(customerID), &c); err != nil {
		return nil, err
	}
	if c.Deleted {
		return nil, types.NewAppError(types.ErrCodeNotFoundObject, "customer was deleted", nil)
	}
	return &types.Customer{ID: c.ID, Email: c.Email, Name: c.Name}, nil
}

// RetrieveObject fetches a payment intent or invoice as an untyped map, the
// same shape the webhook payload carries.
func (s *StripeClient) RetrieveObject(ctx context.Context, objectType types.ObjectType, objectID string) (map[string]any, error) {
	path, ok := objectPaths[objectType]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidField, fmt.Sprintf("unsupported object type %q", objectType), nil)
	}
	obj := make(map[string]any)
	if err := s.getJSON(ctx, "RetrieveObject", path+url.PathEscape(objectID), &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// RetrieveSubscription fetches a subscription by ID.
func (s *StripeClient) RetrieveSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	var sub Subscription
	if err := s.getJSON(ctx, "RetrieveSubscription", "/v1/subscriptions/"+url.PathEscape(subscriptionID), &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// ---------------------------------------------------------------------------
// HTTP Helpers
// ---------------------------------------------------------------------------

func (s *StripeClient) getJSON(ctx context.Context, operation, path string, out any) error {
	if s.secretKey.IsBlank() {
		return types.NewAppError(types.ErrCodeUpstreamStripe, operation+": Stripe secret key is not configured", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, operation+": failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.secretKey.Unmask())
	req.Header.Set("Stripe-Version", stripe.APIVersion)

	resp, err := s.base.Do(req)
	if err != nil {
		return s.wrapStripeError(operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return s.handleErrorResponse(resp, operation)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamStripe, operation+": failed to decode Stripe response", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Error Handling
// ---------------------------------------------------------------------------

type stripeErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *StripeClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var parsed stripeErrorResponse
	message := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
		message = parsed.Error.Message
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return types.NewAppError(types.ErrCodeNotFoundObject, fmt.Sprintf("%s: Stripe resource not found: %s", operation, message), nil)
	case http.StatusTooManyRequests:
		return types.NewAppError(types.ErrCodeUpstreamRateLimited, operation+": Stripe rate limit exceeded", nil)
	default:
		return types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe error (%d): %s", operation, resp.StatusCode, message),
			nil,
			map[string]any{"stripe_code": parsed.Error.Code, "stripe_type": parsed.Error.Type},
		)
	}
}

func (s *StripeClient) wrapStripeError(operation string, err error) error {
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(types.ErrCodeUpstreamStripe, fmt.Sprintf("%s: Stripe request failed: %v", operation, err), err)
}

type stripeCustomer struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Deleted bool   `json:"deleted"`
}

// ---------------------------------------------------------------------------
// Webhook Verification
// ---------------------------------------------------------------------------

// StripeVerifier implements WebhookVerifier with stripe-go's timestamped
// HMAC-SHA256 check and its default tolerance window.
type StripeVerifier struct{}

// Verify validates payload against the Stripe-Signature header.
func (v *StripeVerifier) Verify(payload []byte, header string, secret string) error {
	return webhook.ValidatePayload(payload, header, secret)
}
