// Package payments turns processor webhook deliveries into ledger rows and
// side effects. Engine.Process is the entry point; everything it commits is
// idempotent under redelivery.
package payments

import (
	"encoding/json"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"marketingapi/internal/types"
)

// Event is an authenticated processor event.
type Event struct {
	ID       string
	Type     string
	Livemode bool
	Created  *time.Time
	// Object is data.object, or nil when the event carries none.
	Object map[string]any
	Raw    json.RawMessage
}

// ObjectID returns data.object.id, or "" when absent.
func (e *Event) ObjectID() string {
	if e.Object == nil {
		return ""
	}
	id, _ := e.Object["id"].(string)
	return id
}

// parseEvent decodes payload with stripe-go's event model.
func parseEvent(payload []byte) (*Event, error) {
	var se stripe.Event
	if err := json.Unmarshal(payload, &se); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidPayload, "Invalid payload.", err)
	}
	if strings.TrimSpace(se.ID) == "" || strings.TrimSpace(string(se.Type)) == "" {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidPayload, "Invalid payload.", nil)
	}

	evt := &Event{
		ID:       se.ID,
		Type:     string(se.Type),
		Livemode: se.Livemode,
		Raw:      json.RawMessage(payload),
	}
	if se.Created > 0 {
		created := time.Unix(se.Created, 0).UTC()
		evt.Created = &created
	}
	if se.Data != nil && se.Data.Object != nil {
		evt.Object = se.Data.Object
	}
	return evt, nil
}

// record builds the append-only audit row for e.
func (e *Event) record() *types.WebhookEventRecord {
	rec := &types.WebhookEventRecord{
		EventID:        e.ID,
		EventType:      e.Type,
		Livemode:       e.Livemode,
		EventCreatedAt: e.Created,
		Payload:        e.Raw,
	}
	if id := e.ObjectID(); id != "" {
		rec.DataObjectID = &id
	}
	return rec
}
