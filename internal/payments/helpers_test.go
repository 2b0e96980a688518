package payments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"marketingapi/internal/external"
	"marketingapi/internal/leads"
	"marketingapi/internal/tasks"
	"marketingapi/internal/types"
)

const testSecret = "whsec_test_secret"

func signedHeader(t *testing.T, payload []byte) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testSecret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

// fakeLedger mimics the unique constraints of the ledger store.
type fakeLedger struct {
	mu     sync.Mutex
	events map[string]*types.WebhookEventRecord
	txns   map[string]*types.TransactionRecord
	err    error
	stale  bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		events: make(map[string]*types.WebhookEventRecord),
		txns:   make(map[string]*types.TransactionRecord),
	}
}

func (l *fakeLedger) RecordEvent(_ context.Context, evt *types.WebhookEventRecord, txn *types.TransactionRecord) (types.LedgerOutcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return types.LedgerOutcome{}, l.err
	}
	if _, ok := l.events[evt.EventID]; ok {
		return types.LedgerOutcome{Duplicate: true}, nil
	}
	l.events[evt.EventID] = evt
	if txn == nil || l.stale {
		return types.LedgerOutcome{}, nil
	}
	l.txns[string(txn.ObjectType)+"/"+txn.StripeObjectID] = txn
	return types.LedgerOutcome{Applied: true}, nil
}

// recordingRunner collects submitted tasks without running them.
type recordingRunner struct {
	mu        sync.Mutex
	submitted []tasks.Task
	err       error
}

func (r *recordingRunner) Submit(_ context.Context, task tasks.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.submitted = append(r.submitted, task)
	return nil
}

func (r *recordingRunner) Close(context.Context) error { return nil }

func (r *recordingRunner) kinds() []tasks.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]tasks.Kind, 0, len(r.submitted))
	for _, t := range r.submitted {
		out = append(out, t.Kind)
	}
	return out
}

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) RetrieveCustomer(ctx context.Context, id string) (*types.Customer, error) {
	args := m.Called(ctx, id)
	c, _ := args.Get(0).(*types.Customer)
	return c, args.Error(1)
}

func (m *mockProcessor) RetrieveObject(ctx context.Context, objectType types.ObjectType, id string) (map[string]any, error) {
	args := m.Called(ctx, objectType, id)
	obj, _ := args.Get(0).(map[string]any)
	return obj, args.Error(1)
}

func (m *mockProcessor) RetrieveSubscription(ctx context.Context, id string) (*external.Subscription, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(*external.Subscription)
	return s, args.Error(1)
}

type recordingEmail struct {
	mu   sync.Mutex
	sent []types.EmailMessage
	err  error
}

func (e *recordingEmail) Send(_ context.Context, msg types.EmailMessage) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sent = append(e.sent, msg)
	if e.err != nil {
		return "", e.err
	}
	return "msg-id", nil
}

func (e *recordingEmail) to(addr string) []types.EmailMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []types.EmailMessage
	for _, m := range e.sent {
		if m.To == addr {
			out = append(out, m)
		}
	}
	return out
}

type recordingPush struct {
	mu   sync.Mutex
	sent []types.PushMessage
	err  error
}

func (p *recordingPush) Push(_ context.Context, msg types.PushMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, msg)
	return p.err
}

type recordingLeads struct {
	calls []leads.Candidate
	modes []leads.Mode
	err   error
}

func (l *recordingLeads) Upsert(_ context.Context, c leads.Candidate, mode leads.Mode) (leads.Result, error) {
	l.calls = append(l.calls, c)
	l.modes = append(l.modes, mode)
	if l.err != nil {
		return leads.Result{}, l.err
	}
	return leads.Result{Created: true}, nil
}

var errStorage = errors.New("connection refused")

func requireAppError(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, code, appErr.Code)
}
