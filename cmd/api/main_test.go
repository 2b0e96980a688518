package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketingapi/internal/config"
	"marketingapi/internal/core"
	"marketingapi/internal/leads"
	"marketingapi/internal/payments"
	"marketingapi/internal/types"
)

type stubProcessor struct {
	calls int
}

func (s *stubProcessor) Process(context.Context, []byte, string) (payments.Result, error) {
	s.calls++
	return payments.Result{Outcome: types.OutcomeProcessed}, nil
}

type stubLeads struct{}

func (stubLeads) Upsert(_ context.Context, c leads.Candidate, _ leads.Mode) (leads.Result, error) {
	return leads.Result{Lead: &types.Lead{ID: "lead-1", Email: c.Email}, Created: true}, nil
}

type stubLedger struct{}

func (stubLedger) FindByObjectKey(_ context.Context, id string, ot types.ObjectType) (*types.TransactionRecord, error) {
	return &types.TransactionRecord{StripeObjectID: id, ObjectType: ot}, nil
}

func (stubLedger) FindEvent(context.Context, string) (*types.WebhookEventRecord, error) {
	return nil, nil
}

func testServer(t *testing.T, processor *stubProcessor) *core.Server {
	t.Helper()
	cfg := &config.Config{Environment: config.EnvLocal}
	cfg.Server.RequestTimeout = 5 * time.Second
	cfg.Server.MaxWebhookBody = 1 << 20
	cfg.Security.AdminAPIKey = "admin-secret"
	cfg.Security.LeadRateLimit = 2
	cfg.Security.LeadRateWindow = time.Hour

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := buildServer(cfg, logger, routeDeps{
		processor: processor,
		leads:     stubLeads{},
		ledger:    stubLedger{},
	})
	require.NoError(t, err)
	return srv
}

func do(srv *core.Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(testServer(t, &stubProcessor{}), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStripeWebhookRoute(t *testing.T) {
	p := &stubProcessor{}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{}`))
	rec := do(testServer(t, p), req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, 1, p.calls)
}

func TestLeadRouteIsRateLimited(t *testing.T) {
	srv := testServer(t, &stubProcessor{})
	body := `{"name":"Ada","email":"ada@example.com"}`

	for i := 0; i < 2; i++ {
		rec := do(srv, httptest.NewRequest(http.MethodPost, "/v1/leads", strings.NewReader(body)))
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	rec := do(srv, httptest.NewRequest(http.MethodPost, "/v1/leads", strings.NewReader(body)))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestLedgerRouteRequiresAdminKey(t *testing.T) {
	srv := testServer(t, &stubProcessor{})

	rec := do(srv, httptest.NewRequest(http.MethodGet, "/v1/ledger/invoice/in_1", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/ledger/invoice/in_1", nil)
	req.Header.Set(core.AdminKeyHeader, "admin-secret")
	rec = do(srv, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"stripe_object_id":"in_1"`)
}
