package core

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"marketingapi/internal/types"
)

const defaultRequestTimeout = 25 * time.Second

// redactedHeaders are masked in request logs.
var redactedHeaders = []string{
	"Authorization",
	"Cookie",
	"Stripe-Signature",
	AdminKeyHeader,
}

// MountRoutes registers the middleware chain and every route group.
//
// Order:
//  1. Recoverer       - outermost, catches panics from everything below.
//  2. ContextTimeout  - soft deadline for handlers.
//  3. RequestID       - correlation ID for logs and outbound calls.
//  4. SecurityHeaders
//  5. RequestLogger   - structured access log with redacted headers.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.requestTimeout()))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, redactedHeaders))

	s.router.Get("/health", s.HandleHealth)

	s.router.Route("/webhooks", func(r chi.Router) {
		for _, registrar := range s.WebhookRouteRegistrars {
			registrar(r)
		}
	})

	s.router.Route("/v1", func(r chi.Router) {
		r.Use(NewCORSMiddleware([]string{"*"}))
		for _, registrar := range s.V1RouteRegistrars {
			registrar(r)
		}
	})
}

func (s *Server) requestTimeout() time.Duration {
	if s.Config != nil && s.Config.Server.RequestTimeout > 0 {
		return s.Config.Server.RequestTimeout
	}
	return defaultRequestTimeout
}

// ContextTimeoutMiddleware sets a deadline on the request context.
func ContextTimeoutMiddleware(duration time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), duration)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDMiddleware reuses an inbound X-Request-Id or generates one, stores
// it in the context and echoes it on the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = generateRequestID()
		}
		w.Header().Set("X-Request-Id", requestID)
		next.ServeHTTP(w, r.WithContext(types.WithRequestID(r.Context(), requestID)))
	})
}

func generateRequestID() string {
	return uuid.NewString()
}
