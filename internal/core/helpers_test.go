package core

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketingapi/internal/config"
)

type stubCheck struct {
	name   string
	err    error
	delay  time.Duration
	panics bool
	called atomic.Bool
}

func (p *stubCheck) Name() string { return p.name }

func (p *stubCheck) Check(ctx context.Context) error {
	p.called.Store(true)
	if p.panics {
		panic("boom")
	}
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return p.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{Environment: config.EnvLocal}
	cfg.Server.RequestTimeout = 5 * time.Second
	cfg.Build.Version = "test"
	srv, err := NewServer(cfg, discardLogger())
	require.NoError(t, err)
	return srv
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}
