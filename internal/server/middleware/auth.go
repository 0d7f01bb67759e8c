package middleware

import (
	"log/slog"
	"net/http"

	"github.com/Hz-Lin/transcendence/internal/auth"
)

// NewAuthMiddleware verifies the bearer credential on the upgrade request
// and records the outcome in the request metadata. It never rejects at the
// HTTP layer: a failed verification is surfaced over the socket by the
// upgrade handler, so the client sees an unauthorized event instead of a
// bare HTTP status.
func NewAuthMiddleware(logger *slog.Logger, verifier auth.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			credential := auth.CredentialFrom(r)
			identity, err := verifier.Verify(r.Context(), credential)
			if err != nil {
				logger.Warn("Connection authentication failed",
					slog.String("ip", reqMeta.IP),
					slog.Any("error", err),
				)
				next.ServeHTTP(w, r)
				return
			}

			reqMeta.Identity = identity
			reqMeta.Authenticated = true
			next.ServeHTTP(w, r)
		})
	}
}
