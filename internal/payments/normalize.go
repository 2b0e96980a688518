package payments

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cast"

	"marketingapi/internal/external"
	"marketingapi/internal/types"
)

var eventClasses = map[string]types.EventClass{
	external.EventPaymentIntentSucceeded: types.ClassPaymentSucceeded,
	external.EventPaymentIntentFailed:    types.ClassPaymentFailed,
	external.EventInvoicePaid:            types.ClassInvoicePaid,
	external.EventInvoicePaymentFailed:   types.ClassInvoiceFailed,
}

// Classify maps an event type to its business meaning.
func Classify(eventType string) types.EventClass {
	if c, ok := eventClasses[eventType]; ok {
		return c
	}
	return types.ClassUninteresting
}

// fieldTable lists, per object variant, the keys to try in order for the
// fields whose name differs between variants. Dotted keys descend into
// nested objects.
type fieldTable struct {
	amount []string
	email  []string
	name   []string
}

var variants = map[types.ObjectType]fieldTable{
	types.ObjectPaymentIntent: {
		amount: []string{"amount_received", "amount"},
		email:  []string{"receipt_email", "customer_email"},
		name:   []string{"shipping.name"},
	},
	types.ObjectInvoice: {
		amount: []string{"amount_paid", "amount_due", "amount_remaining"},
		email:  []string{"customer_email"},
		name:   []string{"customer_name"},
	},
}

// Object is the variant-independent view of a payment intent or invoice.
type Object struct {
	Type        types.ObjectType
	ID          string
	Status      string
	Amount      *int64
	Currency    string
	CustomerID  string
	Email       string
	Name        string
	Description string
	Metadata    map[string]string
	// Fields is the untouched source object for variant-specific lookups.
	Fields map[string]any
}

// Normalize resolves the object variant and extracts its canonical fields.
// ok is false when the event has no object, the object has no ID, or its shape
// is not a known variant.
func Normalize(eventType string, fields map[string]any) (*Object, bool) {
	if fields == nil {
		return nil, false
	}
	objectType, ok := resolveObjectType(eventType, fields)
	if !ok {
		return nil, false
	}
	return NormalizeAs(objectType, fields)
}

// NormalizeAs extracts canonical fields from fields known to be objectType.
func NormalizeAs(objectType types.ObjectType, fields map[string]any) (*Object, bool) {
	table, ok := variants[objectType]
	if !ok {
		return nil, false
	}
	id := lookupString(fields, "id")
	if id == "" {
		return nil, false
	}

	return &Object{
		Type:        objectType,
		ID:          id,
		Status:      lookupString(fields, "status"),
		Amount:      pickAmount(fields, table.amount...),
		Currency:    lookupString(fields, "currency"),
		CustomerID:  lookupString(fields, "customer"),
		Email:       pickString(fields, table.email...),
		Name:        pickString(fields, table.name...),
		Description: lookupString(fields, "description"),
		Metadata:    cast.ToStringMapString(fields["metadata"]),
		Fields:      fields,
	}, true
}

// resolveObjectType prefers the payload's own "object" tag and falls back to
// the event type prefix when the tag is missing.
func resolveObjectType(eventType string, fields map[string]any) (types.ObjectType, bool) {
	if tag := lookupString(fields, "object"); tag != "" {
		t := types.ObjectType(tag)
		_, ok := variants[t]
		return t, ok
	}
	prefix, _, found := strings.Cut(eventType, ".")
	if !found {
		return "", false
	}
	t := types.ObjectType(prefix)
	_, ok := variants[t]
	return t, ok
}

// Transaction builds the ledger row for o as last touched by evt.
func (o *Object) Transaction(evt *Event) *types.TransactionRecord {
	txn := &types.TransactionRecord{
		StripeObjectID: o.ID,
		ObjectType:     o.Type,
		Status:         optional(o.Status),
		Amount:         o.Amount,
		Currency:       optional(o.Currency),
		CustomerID:     optional(o.CustomerID),
		CustomerEmail:  optional(o.Email),
		Description:    optional(o.Description),
		EventID:        evt.ID,
		EventType:      evt.Type,
		Livemode:       evt.Livemode,
		EventCreatedAt: evt.Created,
	}
	if len(o.Metadata) > 0 {
		if raw, err := json.Marshal(o.Metadata); err == nil {
			txn.Metadata = raw
		}
	}
	return txn
}

// lookup walks a dotted path through nested maps.
func lookup(fields map[string]any, path string) (any, bool) {
	var cur any = fields
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

func lookupString(fields map[string]any, path string) string {
	v, ok := lookup(fields, path)
	if !ok {
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func pickString(fields map[string]any, paths ...string) string {
	for _, p := range paths {
		if s := lookupString(fields, p); s != "" {
			return s
		}
	}
	return ""
}

// pickAmount returns the first non-zero amount among paths. A present zero is
// returned only when no later path holds a non-zero value.
func pickAmount(fields map[string]any, paths ...string) *int64 {
	var zero *int64
	for _, p := range paths {
		v, ok := lookup(fields, p)
		if !ok {
			continue
		}
		n, err := cast.ToInt64E(v)
		if err != nil {
			continue
		}
		if n != 0 {
			return &n
		}
		if zero == nil {
			zero = &n
		}
	}
	return zero
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
