package external

import (
	"context"

	"marketingapi/internal/types"
)

// PaymentProcessor is the read side of the payment processor API used to fill
// identity that an event payload omits.
type PaymentProcessor interface {
	// RetrieveCustomer returns the customer's email and name.
	RetrieveCustomer(ctx context.Context, customerID string) (*types.Customer, error)
	// RetrieveObject returns the full object of the given type as an untyped map.
	RetrieveObject(ctx context.Context, objectType types.ObjectType, objectID string) (map[string]any, error)
	// RetrieveSubscription returns the subscription's metadata.
	RetrieveSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
}

// Subscription is the subset of a processor subscription the service reads.
type Subscription struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

// WebhookVerifier checks a webhook signature header against the payload.
type WebhookVerifier interface {
	Verify(payload []byte, header string, secret string) error
}

// Stripe event types the service reacts to.
const (
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
	EventPaymentIntentFailed    = "payment_intent.payment_failed"
	EventInvoicePaid            = "invoice.paid"
	EventInvoicePaymentFailed   = "invoice.payment_failed"
)

// EmailSender delivers a transactional email and returns the provider message ID.
type EmailSender interface {
	Send(ctx context.Context, msg types.EmailMessage) (string, error)
}

// PushNotifier delivers a push notification to the operators' devices.
type PushNotifier interface {
	Push(ctx context.Context, msg types.PushMessage) error
}
