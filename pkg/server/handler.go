package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rhuss/gatekeeper/pkg/auth"
	"github.com/rhuss/gatekeeper/pkg/auth/basic"
	"github.com/rhuss/gatekeeper/pkg/config"
	"github.com/rhuss/gatekeeper/pkg/dispatch"
	"github.com/rhuss/gatekeeper/pkg/observability"
	"github.com/rhuss/gatekeeper/pkg/storage"
	"github.com/rhuss/gatekeeper/pkg/transport"
)

// HandlerOption configures NewHandler.
type HandlerOption func(*handlerOptions)

type handlerOptions struct {
	keyStore storage.KeyStore
}

// WithKeyStore exposes the key management API backed by store.
func WithKeyStore(store storage.KeyStore) HandlerOption {
	return func(o *handlerOptions) {
		o.keyStore = store
	}
}

// healthChecker is implemented by key stores that can report on their backend.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// WhoAmI is the body of the whoami endpoints.
type WhoAmI struct {
	Subject     string            `json:"subject"`
	Strategy    string            `json:"strategy"`
	TenantID    string            `json:"tenant_id,omitempty"`
	ServiceTier string            `json:"service_tier,omitempty"`
	Scopes      []string          `json:"scopes,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// NewHandler returns the root handler.
//
// GET /readyz is always unauthenticated and reports 503 while the key store
// backend is unreachable.
//
// Routes under the main chain (with cfg.Auth.Bypass honored):
//
//	GET /healthz
//	GET /metrics        (when enabled)
//	GET /v1/whoami
//
// Routes under a chain of only the basic strategy (when registered):
//
//	GET    /v1/admin/whoami
//	POST   /v1/admin/keys        (with WithKeyStore)
//	GET    /v1/admin/keys
//	DELETE /v1/admin/keys/{id}
func NewHandler(cfg *config.Config, chain *dispatch.Chain, limiter auth.RateLimiter, logger *slog.Logger, opts ...HandlerOption) http.Handler {
	var o handlerOptions
	for _, opt := range opts {
		opt(&o)
	}

	api := http.NewServeMux()
	api.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	if cfg.Observability.Metrics.Enabled {
		api.Handle("GET "+cfg.Observability.Metrics.Path, promhttp.Handler())
	}
	api.HandleFunc("GET /v1/whoami", whoami)

	root := http.NewServeMux()
	root.Handle("/", dispatch.Middleware(chain, limiter, cfg.Auth.Bypass)(api))
	root.HandleFunc("GET /readyz", readyz(o.keyStore))

	if _, ok := chain.Registry.Lookup(basic.Label); ok {
		admin := http.NewServeMux()
		admin.HandleFunc("GET /v1/admin/whoami", whoami)
		if o.keyStore != nil {
			(&keyHandler{store: o.keyStore}).register(admin)
		}
		root.Handle("/v1/admin/", dispatch.Middleware(chain.With(basic.Label), limiter, nil)(tenantScope(admin)))
	}

	return transport.Chain(
		transport.RequestID(),
		transport.Logging(logger),
		transport.Recovery(),
		observability.MetricsMiddleware,
	)(root)
}

func readyz(store storage.KeyStore) http.HandlerFunc {
	checker, _ := store.(healthChecker)
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.HealthCheck(r.Context()); err != nil {
				slog.Warn("key store not ready", "error", err)
				http.Error(w, "key store unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	}
}

func whoami(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(WhoAmI{
		Subject:     id.Subject,
		Strategy:    auth.StrategyFromContext(r.Context()),
		TenantID:    id.TenantID(),
		ServiceTier: id.ServiceTier,
		Scopes:      id.Scopes,
		Metadata:    id.Metadata,
	})
}
