package core

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"marketingapi/internal/types"
)

// RateLimitByIP limits requests per client IP and route with a sliding-window
// counter. The counter is s.RateLimitCounter when set, otherwise an
// in-process one owned by the returned middleware. A non-positive limit
// disables limiting.
//
// Responses carry X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset; a rejected one also carries Retry-After.
func (s *Server) RateLimitByIP(limit int, window time.Duration) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	opts := []httprate.Option{
		httprate.WithKeyFuncs(httprate.KeyByRealIP, httprate.KeyByEndpoint),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			s.Logger.WarnContext(r.Context(), "rate limit exceeded",
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
			)
			Error(w, r, types.NewAppError(types.ErrCodeRateLimitExceeded, "Too many requests. Please try again later.", nil))
		}),
		httprate.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			s.Logger.ErrorContext(r.Context(), "rate limit counter error", slog.String("error", err.Error()))
			Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected, "An unexpected error occurred.", err))
		}),
	}
	if s.RateLimitCounter != nil {
		opts = append(opts, httprate.WithLimitCounter(s.RateLimitCounter))
	}
	return httprate.Limit(limit, window, opts...)
}
