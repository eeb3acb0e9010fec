package dispatch

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/rhuss/gatekeeper/pkg/auth"
	"github.com/rhuss/gatekeeper/pkg/observability"
)

const (
	unauthorizedBody = `{"error":{"type":"invalid_request","message":"authentication required"}}`
	serverErrorBody  = `{"error":{"type":"server_error","message":"internal authentication error"}}`
	rateLimitedBody  = `{"error":{"type":"too_many_requests","message":"rate limit exceeded"}}`
)

// DefaultBypassEndpoints lists endpoints that skip authentication.
var DefaultBypassEndpoints = []string{"/healthz", "/readyz", "/metrics"}

// Middleware creates HTTP middleware from a Chain and optional RateLimiter.
// It checks the bypass list, runs the chain, enforces rate limits and
// stores the identity and deciding strategy label in the request context.
func Middleware(chain *Chain, limiter auth.RateLimiter, bypassEndpoints []string) func(http.Handler) http.Handler {
	bypass := make(map[string]bool, len(bypassEndpoints))
	for _, ep := range bypassEndpoints {
		bypass[ep] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			result := chain.Authenticate(r.Context(), r)

			if result.Decision != auth.Yes || result.Identity == nil {
				slog.Warn("authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"strategy", result.Strategy,
					"error", result.Err,
				)
				if errors.Is(result.Err, ErrUnknownStrategy) {
					writeError(w, http.StatusInternalServerError, serverErrorBody)
					return
				}
				writeError(w, http.StatusUnauthorized, unauthorizedBody)
				return
			}

			if result.Identity.Subject == "" {
				slog.Error("strategy returned identity with empty subject", "strategy", result.Strategy)
				writeError(w, http.StatusInternalServerError, serverErrorBody)
				return
			}

			slog.Debug("authentication succeeded",
				"subject", result.Identity.Subject,
				"strategy", result.Strategy,
				"path", r.URL.Path,
			)

			if limiter != nil {
				if err := limiter.Allow(r.Context(), result.Identity); err != nil {
					slog.Warn("rate limit exceeded",
						"subject", result.Identity.Subject,
						"tier", result.Identity.ServiceTier,
					)
					observability.RateLimitRejectedTotal.WithLabelValues(tierLabel(result.Identity)).Inc()
					writeError(w, http.StatusTooManyRequests, rateLimitedBody)
					return
				}
			}

			ctx := auth.SetIdentity(r.Context(), result.Identity)
			if result.Strategy != "" {
				ctx = auth.SetStrategy(ctx, result.Strategy)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeError(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body + "\n"))
}

func tierLabel(id *auth.Identity) string {
	if id.ServiceTier == "" {
		return "default"
	}
	return id.ServiceTier
}
