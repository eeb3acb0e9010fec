package server

import (
	"fmt"
	"log/slog"

	"github.com/rhuss/gatekeeper/pkg/auth"
	"github.com/rhuss/gatekeeper/pkg/auth/apikey"
	"github.com/rhuss/gatekeeper/pkg/auth/basic"
	"github.com/rhuss/gatekeeper/pkg/auth/jwt"
	"github.com/rhuss/gatekeeper/pkg/auth/noop"
	"github.com/rhuss/gatekeeper/pkg/auth/strategy"
	"github.com/rhuss/gatekeeper/pkg/config"
	"github.com/rhuss/gatekeeper/pkg/dispatch"
	"github.com/rhuss/gatekeeper/pkg/storage"
)

// NewRegistry registers every builtin strategy that has enough
// configuration to be constructed. The anonymous strategy is always
// available; the others only when their section is filled in. A non-nil
// store enables the apikey strategy even without static keys.
func NewRegistry(cfg config.AuthConfig, store storage.KeyStore) (*strategy.Registry, error) {
	reg := strategy.New()

	if _, err := reg.Add(noop.Label, &noop.Strategy{}); err != nil {
		return nil, err
	}

	if len(cfg.APIKeys) > 0 || store != nil {
		keys := make([]apikey.Key, 0, len(cfg.APIKeys))
		for _, k := range cfg.APIKeys {
			keys = append(keys, apikey.Key{Key: k.Key, Identity: identity(k.Subject, k.TenantID, k.ServiceTier)})
		}
		var opts []apikey.Option
		if store != nil {
			opts = append(opts, apikey.WithStore(store))
		}
		if _, err := reg.Register(apikey.Label, apikey.New(keys, opts...)); err != nil {
			return nil, err
		}
	}

	if len(cfg.Basic.Users) > 0 {
		users := make([]basic.User, 0, len(cfg.Basic.Users))
		for _, u := range cfg.Basic.Users {
			users = append(users, basic.User{
				Username:     u.Username,
				PasswordHash: u.PasswordHash,
				Identity:     identity(u.Subject, u.TenantID, u.ServiceTier),
			})
		}
		s, err := basic.New(users)
		if err != nil {
			return nil, fmt.Errorf("basic strategy: %w", err)
		}
		if _, err := reg.Register(basic.Label, s); err != nil {
			return nil, err
		}
	}

	if cfg.JWT.JWKSURL != "" {
		s := jwt.New(jwt.Config{
			Issuer:      cfg.JWT.Issuer,
			Audience:    cfg.JWT.Audience,
			JWKSURL:     cfg.JWT.JWKSURL,
			UserClaim:   cfg.JWT.UserClaim,
			TenantClaim: cfg.JWT.TenantClaim,
			ScopesClaim: cfg.JWT.ScopesClaim,
			TierClaim:   cfg.JWT.TierClaim,
			CacheTTL:    cfg.JWT.CacheTTL,
			Leeway:      cfg.JWT.Leeway,
		})
		if _, err := reg.Register(jwt.Label, s); err != nil {
			return nil, err
		}
	}

	slog.Info("strategies registered", "labels", reg.Labels())
	return reg, nil
}

// NewChain builds the chain configured in auth.strategies and checks that
// every label resolves.
func NewChain(cfg config.AuthConfig, reg *strategy.Registry) (*dispatch.Chain, error) {
	labels := make([]strategy.Label, 0, len(cfg.Strategies))
	for _, s := range cfg.Strategies {
		labels = append(labels, strategy.Label(s))
	}

	decision := auth.No
	if cfg.DefaultDecision == "accept" {
		decision = auth.Yes
	}

	chain := &dispatch.Chain{Registry: reg, Labels: labels, DefaultDecision: decision}
	if err := chain.Check(); err != nil {
		return nil, err
	}
	return chain, nil
}

// NewLimiter returns nil when no limit is configured.
func NewLimiter(cfg config.RateLimitConfig) auth.RateLimiter {
	if cfg.DefaultRPM == 0 && len(cfg.Tiers) == 0 {
		return nil
	}
	return auth.NewInProcessLimiter(cfg.Tiers, cfg.DefaultRPM)
}

func identity(subject, tenantID, tier string) auth.Identity {
	id := auth.Identity{Subject: subject, ServiceTier: tier}
	if tenantID != "" {
		id.Metadata = map[string]string{"tenant_id": tenantID}
	}
	return id
}
