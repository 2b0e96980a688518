package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketingapi/internal/external"
	"marketingapi/internal/tasks"
	"marketingapi/internal/types"
)

type engineFixture struct {
	engine  *Engine
	ledger  *fakeLedger
	runner  *recordingRunner
	metrics *recordingMetrics
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes []types.WebhookOutcome
}

func (m *recordingMetrics) RecordWebhook(_ context.Context, _ string, outcome types.WebhookOutcome, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *recordingMetrics) RecordSideEffect(context.Context, string, string) {}

func newEngineFixture(t *testing.T, production bool, secret types.SecretString, withLedger bool) *engineFixture {
	t.Helper()
	f := &engineFixture{
		ledger:  newFakeLedger(),
		runner:  &recordingRunner{},
		metrics: &recordingMetrics{},
	}
	cfg := EngineConfig{
		Authenticator: NewAuthenticator(&external.StripeVerifier{}, secret, production, nil),
		Dispatcher:    NewDispatcher(f.runner),
		Alerter:       NewAlerter(f.runner, nil),
		Metrics:       f.metrics,
	}
	if withLedger {
		cfg.Ledger = f.ledger
	}
	f.engine = NewEngine(cfg)
	return f
}

func eventPayload(id, eventType string, object map[string]any) []byte {
	body := map[string]any{
		"id":       id,
		"object":   "event",
		"type":     eventType,
		"livemode": false,
		"created":  1700000000,
	}
	if object != nil {
		body["data"] = map[string]any{"object": object}
	}
	raw, _ := json.Marshal(body)
	return raw
}

func (f *engineFixture) process(t *testing.T, payload []byte) (Result, error) {
	t.Helper()
	return f.engine.Process(context.Background(), payload, signedHeader(t, payload))
}

func TestEngine_PaymentSucceeded(t *testing.T) {
	f := newEngineFixture(t, true, testSecret, true)
	payload := eventPayload("evt_1", "payment_intent.succeeded", map[string]any{
		"id": "pi_1", "object": "payment_intent", "amount": 5000, "receipt_email": "ana@example.com",
	})

	res, err := f.process(t, payload)
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeProcessed, res.Outcome)
	assert.Equal(t, types.ClassPaymentSucceeded, res.Class)
	assert.True(t, res.Applied)

	require.Contains(t, f.ledger.events, "evt_1")
	assert.Equal(t, "pi_1", *f.ledger.events["evt_1"].DataObjectID)
	txn := f.ledger.txns["payment_intent/pi_1"]
	require.NotNil(t, txn)
	assert.Equal(t, int64(5000), *txn.Amount)
	assert.Equal(t, "ana@example.com", *txn.CustomerEmail)

	require.Equal(t, []tasks.Kind{tasks.KindPaymentSideEffects}, f.runner.kinds())
	var p SideEffectTask
	require.NoError(t, json.Unmarshal(f.runner.submitted[0].Payload, &p))
	assert.Equal(t, "evt_1", p.EventID)
	assert.Equal(t, types.ClassPaymentSucceeded, p.Class)
	assert.Equal(t, types.ObjectPaymentIntent, p.ObjectType)
	assert.Equal(t, "evt_1", f.runner.submitted[0].Key)

	assert.Equal(t, []types.WebhookOutcome{types.OutcomeProcessed}, f.metrics.outcomes)
}

func TestEngine_DuplicateDeliveryHasNoSideEffects(t *testing.T) {
	f := newEngineFixture(t, false, testSecret, true)
	payload := eventPayload("evt_1", "invoice.paid", map[string]any{"id": "in_1", "object": "invoice", "amount_paid": 100})

	_, err := f.process(t, payload)
	require.NoError(t, err)
	res, err := f.process(t, payload)
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeDuplicate, res.Outcome)
	assert.Len(t, f.ledger.events, 1)
	assert.Len(t, f.runner.submitted, 1)
}

func TestEngine_ConcurrentDuplicatesDispatchOnce(t *testing.T) {
	f := newEngineFixture(t, false, testSecret, true)
	payload := eventPayload("evt_race", "invoice.paid", map[string]any{"id": "in_1", "object": "invoice"})
	header := signedHeader(t, payload)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Process(context.Background(), payload, header)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, f.runner.submitted, 1)
}

func TestEngine_UninterestingEventStoredOnly(t *testing.T) {
	for _, eventType := range []string{"payment_intent.created", "invoice.finalized", "customer.created"} {
		t.Run(eventType, func(t *testing.T) {
			f := newEngineFixture(t, false, testSecret, true)
			payload := eventPayload("evt_u", eventType, map[string]any{"id": "obj_1", "object": "payment_intent"})

			res, err := f.process(t, payload)
			require.NoError(t, err)

			assert.Equal(t, types.OutcomeIgnored, res.Outcome)
			assert.Contains(t, f.ledger.events, "evt_u")
			assert.Empty(t, f.ledger.txns)
			assert.Empty(t, f.runner.submitted)
		})
	}
}

func TestEngine_ClassifiedEventWithUnknownShape(t *testing.T) {
	f := newEngineFixture(t, false, testSecret, true)
	payload := eventPayload("evt_c", "payment_intent.succeeded", map[string]any{"id": "ch_1", "object": "charge"})

	res, err := f.process(t, payload)
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeIgnored, res.Outcome)
	assert.Equal(t, types.ClassUninteresting, res.Class)
	assert.Empty(t, f.ledger.txns)
	assert.Empty(t, f.runner.submitted)
}

func TestEngine_StaleEventStillDispatches(t *testing.T) {
	f := newEngineFixture(t, false, testSecret, true)
	f.ledger.stale = true
	payload := eventPayload("evt_old", "payment_intent.payment_failed", map[string]any{"id": "pi_1", "object": "payment_intent"})

	res, err := f.process(t, payload)
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeProcessed, res.Outcome)
	assert.False(t, res.Applied)
	assert.Len(t, f.runner.submitted, 1)
}

func TestEngine_AuthenticationFailureMutatesNothing(t *testing.T) {
	f := newEngineFixture(t, true, testSecret, true)
	payload := eventPayload("evt_1", "invoice.paid", map[string]any{"id": "in_1", "object": "invoice"})

	_, err := f.engine.Process(context.Background(), payload, "t=1,v1=bad")
	requireAppError(t, err, types.ErrCodeAuthSignatureInvalid)

	assert.Empty(t, f.ledger.events)
	assert.Empty(t, f.runner.submitted)
	assert.Equal(t, []types.WebhookOutcome{types.OutcomeRejected}, f.metrics.outcomes)
}

func TestEngine_ProductionWithoutSecret(t *testing.T) {
	f := newEngineFixture(t, true, "", true)
	payload := eventPayload("evt_1", "invoice.paid", map[string]any{"id": "in_1", "object": "invoice"})

	_, err := f.engine.Process(context.Background(), payload, "")
	requireAppError(t, err, types.ErrCodeConfigWebhookSecret)
	assert.Equal(t, 500, types.ErrCodeConfigWebhookSecret.HTTPStatus())
	assert.Empty(t, f.ledger.events)
	assert.Equal(t, []types.WebhookOutcome{types.OutcomeMisconfig}, f.metrics.outcomes)
}

func TestEngine_DevelopmentWithoutSecretAcceptsUnsigned(t *testing.T) {
	f := newEngineFixture(t, false, "", true)
	payload := eventPayload("evt_1", "invoice.paid", map[string]any{"id": "in_1", "object": "invoice"})

	res, err := f.engine.Process(context.Background(), payload, "")
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeProcessed, res.Outcome)
}

func TestEngine_MissingLedgerAlertsAndFails(t *testing.T) {
	f := newEngineFixture(t, true, testSecret, false)
	payload := eventPayload("evt_1", "invoice.paid", map[string]any{"id": "in_1", "object": "invoice"})

	_, err := f.process(t, payload)
	requireAppError(t, err, types.ErrCodeConfigLedger)

	require.Equal(t, []tasks.Kind{tasks.KindAdminAlert}, f.runner.kinds())
	var alert AlertTask
	require.NoError(t, json.Unmarshal(f.runner.submitted[0].Payload, &alert))
	assert.Equal(t, "Stripe transaction storage missing", alert.Subject)
}

func TestEngine_LedgerFailureAlertsAndFails(t *testing.T) {
	f := newEngineFixture(t, false, testSecret, true)
	f.ledger.err = types.NewAppError(types.ErrCodeInternalLedger, "failed to begin ledger transaction", errStorage)
	payload := eventPayload("evt_9", "payment_intent.succeeded", map[string]any{"id": "pi_1", "object": "payment_intent"})

	res, err := f.process(t, payload)
	requireAppError(t, err, types.ErrCodeInternalLedger)
	assert.Equal(t, types.OutcomeLedgerFailed, res.Outcome)

	require.Equal(t, []tasks.Kind{tasks.KindAdminAlert}, f.runner.kinds())
	var alert AlertTask
	require.NoError(t, json.Unmarshal(f.runner.submitted[0].Payload, &alert))
	assert.Equal(t, "Stripe transaction storage failure", alert.Subject)
	assert.Equal(t, "Failed to store Stripe transaction event evt_9.", alert.Body)
	assert.Equal(t, "evt_9", f.runner.submitted[0].Key)
}

func TestEngine_DispatchFailureStillSucceeds(t *testing.T) {
	f := newEngineFixture(t, false, testSecret, true)
	f.runner.err = errors.New("queue unavailable")
	payload := eventPayload("evt_1", "invoice.payment_failed", map[string]any{"id": "in_1", "object": "invoice"})

	res, err := f.process(t, payload)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeProcessed, res.Outcome)
	assert.Contains(t, f.ledger.events, "evt_1")
}

func TestEngine_LastWriteWinsAcrossEvents(t *testing.T) {
	f := newEngineFixture(t, false, testSecret, true)
	for i, status := range []string{"requires_payment_method", "succeeded"} {
		eventType := "payment_intent.payment_failed"
		if status == "succeeded" {
			eventType = "payment_intent.succeeded"
		}
		payload := eventPayload(fmt.Sprintf("evt_%d", i), eventType, map[string]any{"id": "pi_1", "object": "payment_intent", "status": status})
		_, err := f.process(t, payload)
		require.NoError(t, err)
	}

	txn := f.ledger.txns["payment_intent/pi_1"]
	require.NotNil(t, txn)
	assert.Equal(t, "succeeded", *txn.Status)
	assert.Equal(t, "evt_1", txn.EventID)
	assert.Len(t, f.ledger.events, 2)
}
