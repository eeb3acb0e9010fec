package auth

import (
	"context"
	"errors"
	"net/http"
)

// AuthDecision represents the three possible outcomes of authentication.
type AuthDecision int

const (
	// Yes means credentials are valid. Dispatch stops and the identity is used.
	Yes AuthDecision = iota

	// No means credentials are present but invalid. Dispatch stops and the
	// request is rejected.
	No

	// Abstain means the strategy cannot handle the credentials type.
	// Dispatch continues with the next strategy.
	Abstain
)

// String returns the lowercase name of the decision, used as a metric label.
func (d AuthDecision) String() string {
	switch d {
	case Yes:
		return "yes"
	case No:
		return "no"
	case Abstain:
		return "abstain"
	default:
		return "unknown"
	}
}

// AuthResult carries the outcome of an authentication attempt.
type AuthResult struct {
	Decision AuthDecision
	Identity *Identity // populated only when Decision == Yes
	Err      error     // populated only when Decision == No

	// Strategy is the label of the strategy that produced the decision.
	// Set by the dispatcher; empty when the default decision applied.
	Strategy string
}

// Identity represents an authenticated caller.
type Identity struct {
	// Subject is the unique identifier (required, non-empty).
	Subject string `json:"subject"`

	// ServiceTier determines rate limits.
	ServiceTier string `json:"service_tier,omitempty"`

	// Scopes lists the authorization scopes granted.
	Scopes []string `json:"scopes,omitempty"`

	// Metadata carries strategy-specific data.
	// The key "tenant_id" names the caller's tenant.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// TenantID returns the tenant identifier from metadata, or empty string.
func (id *Identity) TenantID() string {
	if id == nil || id.Metadata == nil {
		return ""
	}
	return id.Metadata["tenant_id"]
}

// Anonymous returns the identity used when no credentials were required.
func Anonymous() *Identity {
	return &Identity{Subject: "anonymous", ServiceTier: "default"}
}

// Authenticator examines request credentials and returns a three-outcome vote.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) AuthResult
}

// Sentinel errors.
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("access denied")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)
