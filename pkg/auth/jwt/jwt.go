// Package jwt provides a strategy that validates JWT bearer tokens against
// a JWKS (JSON Web Key Set) endpoint.
//
// RSA-signed tokens are accepted with configurable issuer and audience.
// Subject, tenant, service tier and scopes are read from configurable claims.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/rhuss/gatekeeper/pkg/auth"
	"github.com/rhuss/gatekeeper/pkg/auth/strategy"
	"github.com/rhuss/gatekeeper/pkg/debug"
)

// Label is the registry label conventionally used for this strategy.
const Label strategy.Label = "jwt"

// DefaultMinRefreshInterval limits how often the JWKS endpoint is fetched.
const DefaultMinRefreshInterval = 30 * time.Second

// Config holds the JWT strategy configuration.
type Config struct {
	// Issuer is the expected iss claim. Empty disables the check.
	Issuer string

	// Audience is the expected aud claim. Empty disables the check.
	Audience string

	// JWKSURL is where the verification keys are fetched from.
	JWKSURL string

	// UserClaim names the claim used as subject. Default: "sub".
	UserClaim string

	// TenantClaim names the claim copied to the tenant_id metadata. Default: "tenant_id".
	TenantClaim string

	// TierClaim names the claim used as service tier. Default: "tier".
	TierClaim string

	// ScopesClaim names the claim holding scopes, either a space-separated
	// string or an array. Default: "scope".
	ScopesClaim string

	// CacheTTL controls how long fetched keys are trusted. Default: 1 hour.
	CacheTTL time.Duration

	// MinRefreshInterval is the shortest gap between JWKS fetches triggered
	// by unknown kids or failed fetches. Default: 30 seconds. Negative
	// disables the limit.
	MinRefreshInterval time.Duration

	// Leeway tolerates clock skew when checking exp/nbf/iat.
	Leeway time.Duration

	// HTTPClient fetches the JWKS. Default: http.DefaultClient.
	HTTPClient *http.Client
}

func (c *Config) applyDefaults() {
	if c.UserClaim == "" {
		c.UserClaim = "sub"
	}
	if c.TenantClaim == "" {
		c.TenantClaim = "tenant_id"
	}
	if c.TierClaim == "" {
		c.TierClaim = "tier"
	}
	if c.ScopesClaim == "" {
		c.ScopesClaim = "scope"
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = time.Hour
	}
	if c.MinRefreshInterval == 0 {
		c.MinRefreshInterval = DefaultMinRefreshInterval
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
}

// Strategy validates JWT bearer tokens.
type Strategy struct {
	strategy.Base

	config Config
	keys   *keySet
	parser *jwtlib.Parser
}

// New creates a JWT strategy.
func New(cfg Config) *Strategy {
	cfg.applyDefaults()

	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(cfg.Audience))
	}
	if cfg.Leeway > 0 {
		opts = append(opts, jwtlib.WithLeeway(cfg.Leeway))
	}

	return &Strategy{
		config: cfg,
		keys:   newKeySet(cfg.JWKSURL, cfg.CacheTTL, cfg.MinRefreshInterval, cfg.HTTPClient),
		parser: jwtlib.NewParser(opts...),
	}
}

// Valid reports whether the request carries a JWT-shaped bearer token
// (three dot-separated segments).
func (s *Strategy) Valid(r *http.Request) bool {
	token, ok := s.Credentials(r, "Bearer")
	return ok && strings.Count(token, ".") == 2
}

// Authenticate verifies the bearer token.
//
// Decision outcomes:
//   - Abstain: no Authorization header or not a Bearer scheme
//   - No: token present but invalid (expired, wrong issuer, bad signature, ...)
//   - Yes: valid token; Identity is populated from the configured claims
func (s *Strategy) Authenticate(ctx context.Context, r *http.Request) auth.AuthResult {
	raw, ok := s.Credentials(r, "Bearer")
	if !ok {
		return s.Pass()
	}
	if raw == "" {
		return s.Fail(errors.New("empty bearer token"))
	}

	claims := jwtlib.MapClaims{}
	token, err := s.parser.ParseWithClaims(raw, claims, func(token *jwtlib.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token missing kid header")
		}
		return s.keys.get(ctx, kid)
	})
	if err != nil {
		debug.Log("jwt", "JWT validation failed", "error", err)
		return s.Fail(fmt.Errorf("invalid JWT: %w", err))
	}
	if !token.Valid {
		return s.Fail(errors.New("invalid JWT"))
	}

	subject := claimString(claims, s.config.UserClaim)
	if subject == "" {
		return s.Fail(fmt.Errorf("JWT missing %q claim", s.config.UserClaim))
	}

	id := &auth.Identity{
		Subject:     subject,
		ServiceTier: claimString(claims, s.config.TierClaim),
		Scopes:      claimScopes(claims, s.config.ScopesClaim),
		Metadata:    map[string]string{},
	}
	if tenant := claimString(claims, s.config.TenantClaim); tenant != "" {
		id.Metadata["tenant_id"] = tenant
	}

	return s.Success(id)
}

// claimString returns the claim as a string, or empty string if it is
// missing or not a string.
func claimString(claims jwtlib.MapClaims, key string) string {
	s, _ := claims[key].(string)
	return s
}

// claimScopes accepts a space-separated string ("read write") or an
// array (["read", "write"]).
func claimScopes(claims jwtlib.MapClaims, key string) []string {
	var scopes []string
	switch v := claims[key].(type) {
	case string:
		scopes = strings.Fields(v)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				scopes = append(scopes, s)
			}
		}
	}
	if len(scopes) == 0 {
		return nil
	}
	return scopes
}
