package core

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"marketingapi/internal/types"
)

// AdminKeyHeader carries the shared admin API key.
const AdminKeyHeader = "X-Admin-Key"

// RequireAdminKey rejects requests whose X-Admin-Key does not match key.
// A blank key locks the route entirely.
func (s *Server) RequireAdminKey(key types.SecretString) func(http.Handler) http.Handler {
	expected := []byte(key.Unmask())

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := []byte(r.Header.Get(AdminKeyHeader))
			if len(expected) == 0 || subtle.ConstantTimeCompare(provided, expected) != 1 {
				s.Logger.WarnContext(r.Context(), "admin key rejected",
					slog.String("path", r.URL.Path),
					slog.Bool("configured", len(expected) > 0),
				)
				Error(w, r, types.NewAppError(types.ErrCodeAuthAdminKeyInvalid, "Invalid admin key.", nil))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
