package types

import (
	"encoding/json"
	"time"
)

// ObjectType names the processor object a ledger row describes.
type ObjectType string

const (
	ObjectPaymentIntent ObjectType = "payment_intent"
	ObjectInvoice       ObjectType = "invoice"
)

// EventClass is the business meaning assigned to a processor event type.
// Everything outside the four money outcomes is Uninteresting: the event is
// recorded, but it produces no ledger row and no side effects.
type EventClass string

const (
	ClassPaymentSucceeded EventClass = "payment_succeeded"
	ClassPaymentFailed    EventClass = "payment_failed"
	ClassInvoicePaid      EventClass = "invoice_paid"
	ClassInvoiceFailed    EventClass = "invoice_failed"
	ClassUninteresting    EventClass = "uninteresting"
)

// Succeeded reports whether the class represents money collected.
func (c EventClass) Succeeded() bool {
	return c == ClassPaymentSucceeded || c == ClassInvoicePaid
}

// Failed reports whether the class represents a failed collection attempt.
func (c EventClass) Failed() bool {
	return c == ClassPaymentFailed || c == ClassInvoiceFailed
}

// WebhookEventRecord is the append-only audit row for one processor event.
// EventID is unique; its insertion is the commit point of idempotency.
type WebhookEventRecord struct {
	ID             string          `json:"id" db:"id"`
	EventID        string          `json:"event_id" db:"event_id"`
	EventType      string          `json:"event_type" db:"event_type"`
	Livemode       bool            `json:"livemode" db:"livemode"`
	EventCreatedAt *time.Time      `json:"event_created_at,omitempty" db:"event_created_at"`
	DataObjectID   *string         `json:"data_object_id,omitempty" db:"data_object_id"`
	Payload        json.RawMessage `json:"payload" db:"payload"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// TransactionRecord is the canonical ledger row, keyed by (StripeObjectID, ObjectType).
// The row always reflects the most recent event applied to that object.
type TransactionRecord struct {
	ID             string          `json:"id" db:"id"`
	StripeObjectID string          `json:"stripe_object_id" db:"stripe_object_id"`
	ObjectType     ObjectType      `json:"object_type" db:"object_type"`
	Status         *string         `json:"status,omitempty" db:"status"`
	Amount         *int64          `json:"amount,omitempty" db:"amount"`
	Currency       *string         `json:"currency,omitempty" db:"currency"`
	CustomerID     *string         `json:"customer_id,omitempty" db:"customer_id"`
	CustomerEmail  *string         `json:"customer_email,omitempty" db:"customer_email"`
	Description    *string         `json:"description,omitempty" db:"description"`
	Metadata       json.RawMessage `json:"metadata,omitempty" db:"metadata_json"`
	EventID        string          `json:"event_id" db:"event_id"`
	EventType      string          `json:"event_type" db:"event_type"`
	Livemode       bool            `json:"livemode" db:"livemode"`
	EventCreatedAt *time.Time      `json:"event_created_at,omitempty" db:"event_created_at"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// LedgerOutcome reports what a single atomic ledger commit did.
type LedgerOutcome struct {
	// Duplicate is true when the event ID was already recorded; nothing was written.
	Duplicate bool
	// Applied is true when the transaction row was inserted or updated.
	// It is false for stale out-of-order deliveries.
	Applied bool
}

// WebhookOutcome labels the result of one inbound delivery for logs and metrics.
type WebhookOutcome string

const (
	OutcomeProcessed    WebhookOutcome = "processed"
	OutcomeDuplicate    WebhookOutcome = "duplicate"
	OutcomeIgnored      WebhookOutcome = "ignored"
	OutcomeRejected     WebhookOutcome = "rejected"
	OutcomeMisconfig    WebhookOutcome = "misconfigured"
	OutcomeLedgerFailed WebhookOutcome = "ledger_failed"
)
