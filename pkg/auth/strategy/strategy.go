package strategy

import (
	"context"
	"net/http"
	"strings"

	"github.com/rhuss/gatekeeper/pkg/auth"
)

// Label names a strategy in a Registry.
type Label string

// Strategy is a unit of authentication logic that can be stored in a
// Registry. Implementations embed Base, which supplies the default Valid
// hook and the family marker, and declare Authenticate themselves.
//
// Strategies are shared between requests and must be safe for concurrent use.
type Strategy interface {
	auth.Authenticator

	// Valid reports whether the strategy applies to the request. The
	// dispatcher skips strategies that are not valid for a request.
	Valid(r *http.Request) bool

	isStrategy()
}

// Base is the common capability set of every strategy. Embed it in a
// strategy type to join the family:
//
//	type Token struct {
//		strategy.Base
//	}
//
//	func (t *Token) Authenticate(ctx context.Context, r *http.Request) auth.AuthResult {
//		...
//	}
type Base struct{}

func (Base) isStrategy() {}

// Valid returns true. Strategies override it to restrict themselves to
// requests carrying the credentials they understand.
func (Base) Valid(*http.Request) bool { return true }

// Success returns a Yes result for the identity.
func (Base) Success(id *auth.Identity) auth.AuthResult {
	return auth.AuthResult{Decision: auth.Yes, Identity: id}
}

// Fail returns a No result. A nil err is reported as auth.ErrUnauthenticated.
func (Base) Fail(err error) auth.AuthResult {
	if err == nil {
		err = auth.ErrUnauthenticated
	}
	return auth.AuthResult{Decision: auth.No, Err: err}
}

// Pass returns an Abstain result.
func (Base) Pass() auth.AuthResult {
	return auth.AuthResult{Decision: auth.Abstain}
}

// Credentials returns the Authorization header value following the given
// scheme, e.g. "Bearer" or "Basic". The scheme match is case-insensitive.
// ok is false when the header is absent or uses another scheme.
func (Base) Credentials(r *http.Request, scheme string) (credentials string, ok bool) {
	header := r.Header.Get("Authorization")
	if len(header) <= len(scheme) || header[len(scheme)] != ' ' {
		return "", false
	}
	if !strings.EqualFold(header[:len(scheme)], scheme) {
		return "", false
	}
	return strings.TrimSpace(header[len(scheme)+1:]), true
}

// AuthenticateFunc is the behaviour of an inline strategy.
type AuthenticateFunc func(ctx context.Context, r *http.Request) auth.AuthResult

// ValidFunc is the optional applicability hook of an inline strategy.
type ValidFunc func(r *http.Request) bool

// Func adapts plain functions to the Strategy interface.
type Func struct {
	Base

	authenticate AuthenticateFunc
	valid        ValidFunc
}

// FuncOption configures a Func.
type FuncOption func(*Func)

// WithValid sets the applicability hook of a Func.
func WithValid(fn ValidFunc) FuncOption {
	return func(f *Func) {
		f.valid = fn
	}
}

// NewFunc wraps fn in a strategy. fn must not be nil; Registry.AddFunc
// rejects a nil fn before calling NewFunc.
func NewFunc(fn AuthenticateFunc, opts ...FuncOption) *Func {
	f := &Func{authenticate: fn}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Authenticate calls the wrapped function.
func (f *Func) Authenticate(ctx context.Context, r *http.Request) auth.AuthResult {
	return f.authenticate(ctx, r)
}

// Valid calls the hook set by WithValid, falling back to Base.Valid.
func (f *Func) Valid(r *http.Request) bool {
	if f.valid == nil {
		return f.Base.Valid(r)
	}
	return f.valid(r)
}
